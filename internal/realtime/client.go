package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
)

var (
	ErrCallTimeout  = errors.New("request timed out")
	ErrClientClosed = errors.New("client closed")
)

// RemoteError carries the error string of an ok:false response.
type RemoteError string

func (e RemoteError) Error() string { return string(e) }

type ClientOptions struct {
	// CallTimeout bounds each outstanding request. Must be finite; zero
	// means the 10s default.
	CallTimeout time.Duration
	// EventBuffer is the capacity of the events channel. When the consumer
	// lags behind, further events are dropped, matching the best-effort
	// delivery contract.
	EventBuffer int
}

// Client is the caller side of the protocol: it assigns a fresh correlation
// id to each request, keys a pending wait on it, and resolves that wait when
// the matching response arrives or the timeout fires. Late responses for
// timed-out ids are discarded silently.
type Client struct {
	conn    *gws.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	err     error

	events chan Envelope
	done   chan struct{}
}

// Dial connects to a relay websocket endpoint and starts the read loop.
func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	conn, _, err := gws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		timeout: opts.CallTimeout,
		pending: map[string]chan Envelope{},
		events:  make(chan Envelope, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events streams event and standalone error envelopes received on this
// connection. The channel is closed when the connection goes away.
func (c *Client) Events() <-chan Envelope {
	return c.events
}

// Call sends a request and waits for the correlated response. Returns the
// response data on success, a RemoteError for ok:false responses, and
// ErrCallTimeout when no response arrives within the call timeout.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		raw = b
	}

	id := uuid.NewString()
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	env := Envelope{Type: TypeRequest, ID: id, Method: method, Path: path, Body: raw}
	if err := c.write(env); err != nil {
		c.forget(id)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.OK != nil && *resp.OK {
			return resp.Data, nil
		}
		return nil, RemoteError(resp.Error)
	case <-timer.C:
		c.forget(id)
		return nil, ErrCallTimeout
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		c.forget(id)
		return nil, c.readError()
	}
}

// Subscribe registers this connection for a topic's broadcasts.
func (c *Client) Subscribe(ctx context.Context, topic string) error {
	_, err := c.Call(ctx, MethodSubscribe, topic, nil)
	return err
}

// Unsubscribe removes this connection from a topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	_, err := c.Call(ctx, MethodUnsubscribe, topic, nil)
	return err
}

// Send writes a fire-and-forget request (no correlation id, no response).
func (c *Client) Send(ctx context.Context, method, path string, body any) error {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		raw = b
	}
	return c.write(Envelope{Type: TypeRequest, Method: method, Path: path, Body: raw})
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClientClosed
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClientClosed, err))
			return
		}
		switch env.Type {
		case TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			if ok {
				delete(c.pending, env.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- env
			}
			// Unknown correlation id: the wait already timed out.
			// Discard, not an error.
		case TypeEvent, TypeError:
			select {
			case c.events <- env:
			default:
			}
		}
	}
}

// fail rejects every pending wait and marks the client dead.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.pending = map[string]chan Envelope{}
	c.mu.Unlock()
	close(c.done)
}
