package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/dashboard"
	"github.com/DoyleJ11/hacksail-client/internal/ws"
)

func SetupRoutes(d *dashboard.Dashboard, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/state", State(d))
	r.Post("/actions", Action(d))
	r.Get("/ws", ws.Handler(d, log))
	return r
}
