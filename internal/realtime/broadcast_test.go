package realtime

import (
	"encoding/json"
	"testing"
)

func TestBroadcastDeliversToSubscribers(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	c1, s1 := newTestConn("c1")
	c2, s2 := newTestConn("c2")
	c3, _ := newTestConn("c3")
	for _, c := range []*Conn{c1, c2, c3} {
		r.Register(c)
	}
	r.Subscribe("c1", "/tickets")
	r.Subscribe("c2", "/tickets")
	// c3 is connected but not subscribed.

	b.Broadcast("/tickets", map[string]any{"type": "ticket:created", "id": "t1"})

	for name, sock := range map[string]*fakeSocket{"c1": s1, "c2": s2} {
		if sock.frameCount() != 1 {
			t.Fatalf("%s: expected 1 frame, got %d", name, sock.frameCount())
		}
		var env Envelope
		if err := json.Unmarshal(sock.frames[0], &env); err != nil {
			t.Fatalf("%s: decode frame: %v", name, err)
		}
		if env.Type != TypeEvent || env.Topic != "/tickets" {
			t.Fatalf("%s: unexpected frame: %+v", name, env)
		}
		var payload map[string]any
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload["id"] != "t1" {
			t.Fatalf("%s: unexpected payload: %s", name, env.Payload)
		}
	}
}

func TestBroadcastIsolatesSendFailures(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	healthy := map[string]*fakeSocket{}
	failing := map[string]*fakeSocket{}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		c, sock := newTestConn(id)
		r.Register(c)
		r.Subscribe(id, "/tickets")
		if id == "c2" || id == "c4" {
			sock.fail = true
			failing[id] = sock
		} else {
			healthy[id] = sock
		}
	}

	b.Broadcast("/tickets", map[string]any{"n": 1})

	for id, sock := range healthy {
		if sock.frameCount() != 1 {
			t.Fatalf("%s: expected delivery, got %d frames", id, sock.frameCount())
		}
	}
	for id, sock := range failing {
		if !sock.wasClosed() {
			t.Fatalf("%s: failing socket not closed", id)
		}
		if _, ok := r.Connection(id); ok {
			t.Fatalf("%s: still registered after failed send", id)
		}
	}
	if got := len(r.ConnectionsFor("/tickets")); got != 3 {
		t.Fatalf("expected 3 surviving subscribers, got %d", got)
	}

	// The survivors keep receiving on the next pass.
	b.Broadcast("/tickets", map[string]any{"n": 2})
	for id, sock := range healthy {
		if sock.frameCount() != 2 {
			t.Fatalf("%s: expected 2 frames, got %d", id, sock.frameCount())
		}
	}
}

func TestBroadcastDoubleSubscribeSingleDelivery(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	c, sock := newTestConn("c1")
	r.Register(c)
	r.Subscribe("c1", "/tickets")
	r.Subscribe("c1", "/tickets")

	b.Broadcast("/tickets", "hello")
	if sock.frameCount() != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", sock.frameCount())
	}
}

func TestBroadcastNoSubscribers(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	b.Broadcast("/nothing", "payload") // must not panic
}

func TestBroadcastUnserializablePayload(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	c, sock := newTestConn("c1")
	r.Register(c)
	r.Subscribe("c1", "/tickets")

	b.Broadcast("/tickets", func() {}) // logged, cycle abandoned

	if sock.frameCount() != 0 {
		t.Fatalf("expected no frames, got %d", sock.frameCount())
	}
	if _, ok := r.Connection("c1"); !ok {
		t.Fatal("subscriber evicted on serialization failure")
	}

	// The channel stays usable afterwards.
	b.EmitEvent("/tickets", "ok")
	if sock.frameCount() != 1 {
		t.Fatalf("expected 1 frame after recovery, got %d", sock.frameCount())
	}
}
