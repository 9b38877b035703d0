package realtime

import (
	"encoding/json"
	"log"
)

// Broadcaster delivers event envelopes to every current subscriber of a
// topic. Individual send failures never abort the pass: failing connections
// are collected and evicted from the registry after the loop, which is also
// how dead sockets get cleaned up lazily.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast sends payload to all subscribers of topic. It never returns an
// error to the caller: a payload that cannot be serialized is logged and the
// cycle abandoned, and per-connection failures are handled by eviction.
func (b *Broadcaster) Broadcast(topic string, payload any) {
	env, err := newEvent(topic, payload)
	if err != nil {
		log.Printf("broadcast %s: %v", topic, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("broadcast %s: encode envelope: %v", topic, err)
		return
	}

	var dead []*Conn
	for _, c := range b.registry.ConnectionsFor(topic) {
		if err := c.SendRaw(raw); err != nil {
			dead = append(dead, c)
		}
	}
	// Eviction always runs after the delivery loop, even when empty.
	for _, c := range dead {
		c.Close()
		b.registry.Remove(c.ID)
	}
}

// EmitEvent is Broadcast under its discrete-event name: used for one-off
// notifications as opposed to full-state snapshots. Same failure isolation.
func (b *Broadcaster) EmitEvent(topic string, payload any) {
	b.Broadcast(topic, payload)
}
