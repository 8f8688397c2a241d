// Package server exposes a running analysis over HTTP: Prometheus metrics
// and the health and readiness probes.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/health"
	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/pipeline"
)

// DefaultShutdownTimeout bounds how long Serve waits for in-flight scrapes.
const DefaultShutdownTimeout = 5 * time.Second

// StatusServer wraps an HTTP server with graceful shutdown.
type StatusServer struct {
	server       *http.Server
	logger       logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewStatusServer creates a server for handler on addr.
func NewStatusServer(addr string, handler http.Handler, logger logging.Logger) *StatusServer {
	return &StatusServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:     logging.OrNop(logger).With(logging.Component("status-server")),
		shutdownCh: make(chan struct{}),
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving status", logging.String("addr", ln.Addr().String()))
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(DefaultShutdownTimeout)
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *StatusServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Shutdown stops the server, waiting at most timeout for open requests.
// Only the first call has an effect.
func (s *StatusServer) Shutdown(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err = s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("status server shutdown", logging.Error(err))
			return
		}
		s.logger.Debug("status server stopped")
	})
	return err
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *StatusServer) IsShuttingDown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// StatusHandler serves /metrics, /healthz and /readyz for the run tracked
// by tracker.
func StatusHandler(reg *metrics.Registry, tracker *pipeline.Tracker, started time.Time) http.Handler {
	mux := http.NewServeMux()
	handler := reg.Handler()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		reg.UpdateSystemMetrics(started)
		handler.ServeHTTP(w, r)
	})

	monitor := health.NewMonitor(started)
	monitor.Add(health.Liveness, "pipeline", health.RunCheck(tracker.Status))
	monitor.Add(health.Liveness, "memory", health.HeapCheck(health.RuntimeHeap))
	monitor.Add(health.Readiness, "results", health.ResultsCheck(tracker.Status))
	monitor.Register(mux)
	return mux
}
