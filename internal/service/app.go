package service

import (
	"time"

	"github.com/garage44/codebrew-sub002/internal/config"
	"github.com/garage44/codebrew-sub002/internal/model"
	"github.com/garage44/codebrew-sub002/internal/realtime"
	"github.com/garage44/codebrew-sub002/internal/state"
	"github.com/garage44/codebrew-sub002/internal/storage/repos"
)

// Topics the domain layer publishes on.
const (
	TopicTickets  = "/tickets"
	TopicPresence = "/presence"
)

// App wires the realtime hub to the domain layer: the registry and
// broadcaster are constructed once here and handed to handlers by reference,
// never reached through package-level state.
type App struct {
	Config   config.Config
	Store    *repos.Store
	Hub      *realtime.Hub
	Presence *state.Container[model.Presence]
}

func New(cfg config.Config, store *repos.Store) *App {
	hub := realtime.NewHub(realtime.HubOptions{
		WriteTimeout:   config.WSWriteTimeout(cfg),
		MaxMessageSize: int64(cfg.WS.MaxMessageSizeKB) * 1024,
	})
	app := &App{
		Config: cfg,
		Store:  store,
		Hub:    hub,
		Presence: state.New(hub.Broadcaster, TopicPresence, config.StateThrottle(cfg),
			model.Presence{UpdatedAt: time.Now().UTC()}),
	}
	hub.OnConnect = func(*realtime.Conn) { app.trackPresence(1) }
	hub.OnDisconnect = func(*realtime.Conn) { app.trackPresence(-1) }
	app.registerRoutes()
	return app
}

func (a *App) trackPresence(delta int) {
	a.Presence.Mutate(func(p *model.Presence) {
		p.Connections += delta
		if p.Connections < 0 {
			p.Connections = 0
		}
		p.UpdatedAt = time.Now().UTC()
	})
}
