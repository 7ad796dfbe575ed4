// Package router provides HTTP routing configuration using Chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/api/handler"
	"github.com/verapki/ocspd/internal/api/middleware"
	"github.com/verapki/ocspd/internal/responder"
)

// Config holds router configuration.
type Config struct {
	Responder *responder.Responder
	Logger    *zap.Logger
	Version   string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// RFC 6960 OCSP endpoint: POST body, or GET with the base64
	// request in the path.
	ocspHandler := handler.NewOCSPHandler(cfg.Responder, logger)
	r.Post("/ocsp", ocspHandler.ServeHTTP)
	r.Get("/ocsp", ocspHandler.ServeHTTP)
	r.Get("/ocsp/*", ocspHandler.ServeHTTP)

	return r
}
