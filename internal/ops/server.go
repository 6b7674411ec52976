// Package ops serves Prometheus metrics and liveness and readiness checks on a
// side listener.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/tempmailbot/core/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the ops server.
type Options struct {
	// Listen is the host:port to bind; empty disables the server.
	Listen   string
	Registry *prometheus.Registry
	// Journal, when set, becomes a readiness check.
	Journal      Pinger
	PingTimeout  time.Duration
	MaxGoroutine int
}

// Server exposes /metrics, /live and /ready.
type Server struct {
	opts    Options
	handler http.Handler
}

// New builds the handler tree. Health check results are exported on the
// same registry.
func New(opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	if opts.MaxGoroutine <= 0 {
		opts.MaxGoroutine = 10000
	}

	health := healthcheck.NewMetricsHandler(opts.Registry, "tempmailbot")
	health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutine))
	if opts.Journal != nil {
		journal := opts.Journal
		health.AddReadinessCheck("journal", healthcheck.Timeout(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
			defer cancel()
			return journal.Ping(ctx)
		}, opts.PingTimeout))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	return &Server{opts: opts, handler: mux}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully. With no listen
// address it only waits for ctx.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.Listen == "" {
		logger.Info(ctx, "ops", "ops.disabled", slog.String("status", "skip"))
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		logger.Error(ctx, "ops", "ops.listen", slog.String("status", "fail"), slog.String("listen", s.opts.Listen), slog.String("err", err.Error()))
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info(ctx, "ops", "ops.listen", slog.String("status", "ok"), slog.String("listen", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "ops", "ops.shutdown", slog.String("status", "fail"), slog.String("err", err.Error()))
		return err
	}
	logger.Info(ctx, "ops", "ops.shutdown", slog.String("status", "ok"))
	return nil
}
