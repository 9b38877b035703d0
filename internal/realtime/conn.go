package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("connection closed")

// State tracks the connection lifecycle: connecting → open → closing →
// closed. Closed is terminal; a reconnect is a new Conn with a new id.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// socket is the write surface a Conn needs from the underlying transport.
// *gorilla/websocket.Conn satisfies it; tests inject fakes.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live client connection. The registry owns it; other components
// only touch it for the duration of a single send. Writes are serialized by
// writeMu so concurrent handler responses and broadcasts interleave at frame
// granularity, preserving per-socket write order.
type Conn struct {
	ID string

	sock         socket
	writeTimeout time.Duration
	writeMu      sync.Mutex
	state        atomic.Int32
}

func NewConn(id string, sock socket, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	c := &Conn{ID: id, sock: sock, writeTimeout: writeTimeout}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// markOpen is called once the handshake completed and the connection is
// registered.
func (c *Conn) markOpen() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// beginClose moves an open connection to closing. Safe to call repeatedly
// and from concurrent sends.
func (c *Conn) beginClose() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// Close tears the socket down and finalizes the state machine.
func (c *Conn) Close() {
	c.beginClose()
	if c.state.Swap(int32(StateClosed)) != int32(StateClosed) {
		_ = c.sock.Close()
	}
}

// Send marshals v and writes it as a single text frame.
func (c *Conn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.SendRaw(b)
}

// SendRaw writes one pre-encoded frame. A write failure moves the connection
// to closing so the registry can evict it; the error is returned for the
// caller (the broadcast loop) to act on.
func (c *Conn) SendRaw(b []byte) error {
	if s := c.State(); s == StateClosing || s == StateClosed {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.sock.WriteMessage(gws.TextMessage, b); err != nil {
		c.beginClose()
		return err
	}
	return nil
}
