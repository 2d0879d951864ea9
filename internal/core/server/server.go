// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feathergis/queryfront/internal/core/config"
	"github.com/feathergis/queryfront/internal/core/health"
	"github.com/feathergis/queryfront/internal/core/middleware"
	"github.com/feathergis/queryfront/internal/core/router"
)

// Deps are the constructed handlers and probes the server exposes.
type Deps struct {
	Features *router.FeaturesHandler
	Views    *router.ViewsHandler
	Store    health.Pinger
	Consumer health.ConsumerReporter
}

// Run sets up routing and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Store, deps.Consumer))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/features/{database}/{collection}", deps.Features.ServeHTTP)
	r.Post("/features/{database}/{collection}", deps.Features.ServeHTTP)

	if deps.Views != nil {
		r.Get("/views/{database}/{collection}/{view}", deps.Views.Get)
		r.Put("/views/{database}/{collection}/{view}", deps.Views.Put)
		r.Delete("/views/{database}/{collection}/{view}", deps.Views.Delete)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
