// Package httpserver exposes a read-only HTTP view of alerts and their history.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"marketwatch/internal/alerts"
	"marketwatch/internal/history"
	"marketwatch/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

// Deps are the components the handlers read from.
type Deps struct {
	Registry   *alerts.Registry
	History    *history.Cache
	Supervisor *scheduler.Supervisor
	Logger     *slog.Logger
	StartTime  time.Time
}

// Server wraps the HTTP server and its router.
type Server struct {
	http *http.Server
	log  *slog.Logger
}

// New builds the server listening on addr.
func New(addr string, d Deps) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Server{http: s, log: d.Logger}
}

// NewRouter registers middlewares and routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(accessLog(d.Logger))

	r.Get("/healthz", healthz(d))
	r.Route("/api/alerts/{subscriber}", func(r chi.Router) {
		r.Get("/", listAlerts(d))
		r.Get("/history", alertHistory(d))
		r.Get("/export", exportHistory(d))
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.http.Addr)
		err := s.http.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
