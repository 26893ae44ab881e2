package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is satisfied by *sql.DB; health checks the State Store connection
// without importing database/sql here, keeping this package free of a
// driver dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the ambient HTTP surface every Talemon binary exposes:
// /healthz for liveness/readiness probes, /metrics for Prometheus scrape.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds the health/metrics HTTP server. db may be nil if the
// binary has no State Store connection to probe (none of Talemon's
// binaries currently qualify, but extractor plugins built as separate
// processes might).
func NewServer(addr string, reg *prometheus.Registry, db Pinger, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status = fmt.Sprintf("store unreachable: %v", err)
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	handler := promhttp.Handler()
	if reg != nil {
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	r.Handle("/metrics", handler)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        log,
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully. It blocks; callers typically run it in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("observability server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("observability server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("observability server: shutdown: %w", err)
		}
		return nil
	}
}
