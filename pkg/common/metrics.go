package common

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

// MetricsServer exposes a Prometheus registry over HTTP for the lifetime of
// a run.
type MetricsServer struct {
	srv *http.Server
	log *logger.Logger
}

// NewMetricsServer serves gatherer at /metrics on addr.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, log *logger.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With("component", "metrics_server"),
	}
}

// Handler returns the server's HTTP handler.
func (m *MetricsServer) Handler() http.Handler { return m.srv.Handler }

// Start listens in the background. Listen errors are logged.
func (m *MetricsServer) Start(ctx context.Context) {
	go func() {
		m.log.Info(ctx, "Metrics server listening", "addr", m.srv.Addr)
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error(ctx, "metrics server error", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) {
	if err := m.srv.Shutdown(ctx); err != nil {
		m.log.Warn(ctx, "Error shutting down metrics server", "error", err)
	}
}
