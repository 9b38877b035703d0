package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
)

// Methods the hub serves itself, before the router sees the request. The
// path is the topic.
const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

type HubOptions struct {
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Hub owns the upgrade path and the per-connection read loop, and wires the
// registry, router and broadcaster together. Handler dispatch runs on its
// own goroutine per request so a suspended handler (db call, upstream HTTP)
// never blocks the connection's read loop or other connections.
type Hub struct {
	Registry    *Registry
	Router      *Router
	Broadcaster *Broadcaster

	// Optional lifecycle hooks, invoked after register / after remove.
	OnConnect    func(*Conn)
	OnDisconnect func(*Conn)

	upgrader       gws.Upgrader
	writeTimeout   time.Duration
	maxMessageSize int64
}

func NewHub(opts HubOptions) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 512 * 1024
	}
	registry := NewRegistry()
	return &Hub{
		Registry:    registry,
		Router:      NewRouter(),
		Broadcaster: NewBroadcaster(registry),
		upgrader: gws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout:   opts.WriteTimeout,
		maxMessageSize: opts.MaxMessageSize,
	}
}

// ServeWS upgrades the HTTP request and runs the connection until the peer
// goes away. Every failure mode below the upgrade is answered on the wire;
// nothing terminates the read loop except a transport-level read error.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := NewConn(uuid.NewString(), sock, h.writeTimeout)
	h.Registry.Register(c)
	c.markOpen()
	if h.OnConnect != nil {
		h.OnConnect(c)
	}
	defer func() {
		c.beginClose()
		h.Registry.Remove(c.ID)
		c.Close()
		if h.OnDisconnect != nil {
			h.OnDisconnect(c)
		}
	}()

	sock.SetReadLimit(h.maxMessageSize)
	ctx := r.Context()
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			return
		}
		env, err := Decode(raw)
		if err != nil {
			_ = c.Send(errorEvent(err.Error()))
			continue
		}
		switch env.Type {
		case TypeRequest:
			h.handleRequest(ctx, env, c)
		default:
			// Clients only send requests; anything else is a protocol
			// error answered in place.
			_ = c.Send(errorEvent("unexpected " + env.Type + " frame"))
		}
	}
}

func (h *Hub) handleRequest(ctx context.Context, env Envelope, c *Conn) {
	switch strings.ToUpper(env.Method) {
	case MethodSubscribe:
		topic := strings.TrimSpace(env.Path)
		if topic == "" || topic == "/" {
			h.replyErr(c, env.ID, CodeValidation+": topic required")
			return
		}
		h.Registry.Subscribe(c.ID, topic)
		h.replyOK(c, env.ID)
	case MethodUnsubscribe:
		h.Registry.Unsubscribe(c.ID, strings.TrimSpace(env.Path))
		h.replyOK(c, env.ID)
	default:
		go func() {
			if reply, send := h.Router.Dispatch(ctx, env, c); send {
				_ = c.Send(reply)
			}
		}()
	}
}

func (h *Hub) replyOK(c *Conn, id string) {
	if id == "" {
		return
	}
	_ = c.Send(okResponse(id, nil))
}

func (h *Hub) replyErr(c *Conn, id, message string) {
	if id == "" {
		_ = c.Send(errorEvent(message))
		return
	}
	_ = c.Send(errResponse(id, message))
}
