// Package state implements watched state containers: in-memory values whose
// mutation implicitly schedules a throttled full-state broadcast, so handler
// code cannot mutate and forget to notify.
package state

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Publisher is the broadcast surface a container needs. The realtime
// Broadcaster satisfies it.
type Publisher interface {
	Broadcast(topic string, payload any)
}

// Container wraps a value tree and binds it to a topic and throttle
// interval. Mutations go through Mutate, which applies the change under the
// container lock and arms a trailing-edge flush: the first mutation of a
// quiet window starts the interval timer, further mutations within the
// window coalesce, and the flush carries the state as of fire time. At most
// one broadcast per interval; the final state is never dropped.
type Container[T any] struct {
	pub      Publisher
	topic    string
	interval time.Duration

	mu    sync.Mutex
	value T
	timer *time.Timer
}

// New binds initial to topic with the given throttle interval. The interval
// is a required parameter; no default is substituted. A non-positive
// interval disables coalescing and flushes right after every mutation.
func New[T any](pub Publisher, topic string, interval time.Duration, initial T) *Container[T] {
	return &Container[T]{
		pub:      pub,
		topic:    topic,
		interval: interval,
		value:    initial,
	}
}

// Topic returns the broadcast topic this container is bound to.
func (c *Container[T]) Topic() string {
	return c.topic
}

// View runs fn with read access to the current value. fn must not retain
// references into the value past its return.
func (c *Container[T]) View(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.value)
}

// Snapshot returns the current value encoded as JSON.
func (c *Container[T]) Snapshot() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.value)
}

// Mutate applies fn to the value under the lock and schedules the throttled
// broadcast.
func (c *Container[T]) Mutate(fn func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.value)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.flush)
	}
}

func (c *Container[T]) flush() {
	c.mu.Lock()
	c.timer = nil
	raw, err := json.Marshal(c.value)
	c.mu.Unlock()
	if err != nil {
		// Abandon this cycle; the next mutation re-arms the timer and
		// retries.
		log.Printf("watched state %s: encode: %v", c.topic, err)
		return
	}
	c.pub.Broadcast(c.topic, json.RawMessage(raw))
}
