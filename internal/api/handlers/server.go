package handlers

import (
	"net/http"

	"github.com/garage44/codebrew-sub002/internal/config"
	"github.com/garage44/codebrew-sub002/internal/model"
	"github.com/garage44/codebrew-sub002/internal/service"
)

type Server struct {
	App    *service.App
	Config config.Config
}

func New(app *service.App, cfg config.Config) *Server {
	return &Server{App: app, Config: cfg}
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Stats exposes a point-in-time view of the registry and the presence
// container for operators.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	var presence model.Presence
	s.App.Presence.View(func(p model.Presence) { presence = p })
	writeJSON(w, http.StatusOK, map[string]any{
		"registry": s.App.Hub.Registry.Snapshot(),
		"presence": presence,
	})
}
