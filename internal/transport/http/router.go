package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eventstudy/internal/middleware"
)

// RouterConfig holds the handlers mounted by NewRouter. Nil handlers are not mounted.
type RouterConfig struct {
	Metrics   http.Handler
	Health    *HealthHandler
	Runs      *RunsHandler
	// RunsLimit guards the database-backed routes; nil means unlimited
	RunsLimit *middleware.RateLimiter
	Logger    *slog.Logger
}

// NewRouter builds the observability router
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.HealthCheck)
		r.Get("/version", cfg.Health.Version)
	}
	if cfg.Runs != nil {
		r.Group(func(r chi.Router) {
			r.Use(cfg.RunsLimit.Handler)
			r.Mount("/runs", cfg.Runs.Routes())
		})
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteProblem(w, req, http.StatusNotFound, "no route for "+req.URL.Path)
	})
	return r
}

// Serve serves handler on addr until ctx is done, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
