package realtime

import "sync"

// Registry is the single source of truth for live connections and their
// topic subscriptions. All mutations go through the mutex; readers get
// copy-on-read snapshots so no lock is ever held across a network send.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	topics map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  map[string]*Conn{},
		topics: map[string]map[string]struct{}{},
	}
}

// Register adds a connection with an empty subscription set.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Subscribe adds the connection to a topic. Idempotent; unknown connection
// ids are a no-op.
func (r *Registry) Subscribe(connID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	set, ok := r.topics[topic]
	if !ok {
		set = map[string]struct{}{}
		r.topics[topic] = set
	}
	set[connID] = struct{}{}
}

// Unsubscribe removes the connection from a topic. No-op if either side of
// the mapping does not exist.
func (r *Registry) Unsubscribe(connID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.topics[topic]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
}

// Remove drops the connection and every subscription-index entry pointing at
// it. Idempotent.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for topic, set := range r.topics {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
}

// Connection looks up a live connection by id.
func (r *Registry) Connection(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// ConnectionsFor returns a snapshot of the connections subscribed to a
// topic. Safe to iterate while concurrent subscribe/unsubscribe/remove calls
// run on other goroutines.
func (r *Registry) ConnectionsFor(topic string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.topics[topic]
	if !ok {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for id := range set {
		if c, ok := r.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Stats is a point-in-time view of the registry for the stats endpoint and
// the janitor log line.
type Stats struct {
	Connections int            `json:"connections"`
	Topics      map[string]int `json:"topics"`
}

func (r *Registry) Snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make(map[string]int, len(r.topics))
	for topic, set := range r.topics {
		topics[topic] = len(set)
	}
	return Stats{Connections: len(r.conns), Topics: topics}
}
