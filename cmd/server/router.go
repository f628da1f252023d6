package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/handler"
	"github.com/duli-labs/wa-gateway/internal/middleware"
)

func setupRouter(h *handler.Handler, appSecret string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)

	r.Route("/webhook", func(r chi.Router) {
		r.Get("/", h.VerifyWebhook)

		// Signature verification applies only to provider callbacks.
		r.With(middleware.VerifySignature(appSecret, logger)).Post("/", h.ReceiveWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/messages", h.GetMessages)
		r.Post("/messages", h.SendMessage)
	})

	return r
}
