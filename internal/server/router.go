package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iotserver24/xibe-review/internal/server/handler"
)

const requestTimeout = 60 * time.Second

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(webhooks *handler.WebhookHandler, status *handler.StatusHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/webhook", webhooks.Handle)
	r.Post("/api/v1/webhook/github", webhooks.Handle)

	status.Routes(r)

	return r
}
