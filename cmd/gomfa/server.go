package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// readinessChecker reports whether the backing database is reachable.
type readinessChecker func(ctx context.Context) bool

// metricsServer serves /metrics from a private registry plus liveness and
// readiness probes.
type metricsServer struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	isReady    readinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

func newMetricsServer(addr string, ready readinessChecker, logger *slog.Logger) *metricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if logger == nil {
		logger = slog.Default()
	}
	return &metricsServer{
		addr:     addr,
		registry: registry,
		isReady:  ready,
		logger:   logger,
	}
}

func (s *metricsServer) Register(c prometheus.Collector) error {
	if err := s.registry.Register(c); err != nil {
		return oops.Code("METRICS_REGISTER_FAILED").Wrap(err)
	}
	return nil
}

// Start listens on addr. The returned channel carries a serve failure and is
// closed once the server stops.
func (s *metricsServer) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("METRICS_SERVER_RUNNING").Errorf("metrics server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("METRICS_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("metrics server started", "addr", listener.Addr().String())
	return errCh, nil
}

func (s *metricsServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("METRICS_SHUTDOWN_FAILED").Wrap(err)
		}
	}
	s.logger.Info("metrics server stopped")
	return nil
}

func (s *metricsServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *metricsServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *metricsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady(r.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}
