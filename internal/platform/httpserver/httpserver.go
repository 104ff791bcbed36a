package httpserver

import (
	"net/http"
	"time"

	"onboarding-gateway/internal/platform/config"
)

// New builds an HTTP server with sane defaults for this project.
func New(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
