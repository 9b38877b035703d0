package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/garage44/codebrew-sub002/internal/api/handlers"
	apimw "github.com/garage44/codebrew-sub002/internal/api/middleware"
	"github.com/garage44/codebrew-sub002/internal/service"
)

func NewRouter(server *handlers.Server, app *service.App) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logging)

	r.Get("/healthz", server.Health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(apimw.NewRateLimiter(app.Config.RateLimit.PerMinute, app.Config.RateLimit.Burst).Middleware)
		api.Get("/ws", app.Hub.ServeWS)
		api.Get("/stats", server.Stats)
	})

	return r
}
