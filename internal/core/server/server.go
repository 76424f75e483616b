package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/config"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/health"
	middleware "github.com/mohammed-shakir/city-indicators-api/internal/core/middleware"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/router"
)

type Deps struct {
	Handlers *router.Handlers
	// Metrics serves /metrics on the API listener; nil leaves it unmounted.
	Metrics http.Handler
	Ready   map[string]health.Pinger
}

func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.StripPrefix(cfg.APIPrefix))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, d.Ready))
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.HTTPRateRequests, cfg.HTTPRateWindow))
		d.Handlers.Mount(r)
	})
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr, "prefix", cfg.APIPrefix)
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
