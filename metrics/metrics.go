// Package metrics exposes Prometheus metrics for publisher operations on a
// dedicated HTTP listener.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates a metrics server listening on addr. Metric names are prefixed
// with the package name made safe for Prometheus.
func New(packageName, addr string) (*MetricsServer, error) {
	namespace := strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(packageName)

	m := &MetricsServer{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publisher_operations_total",
			Help:      "Publisher operations by backend, operation and outcome.",
		}, []string{"backend", "op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publisher_operation_duration_seconds",
			Help:      "Latency of publisher operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
	}

	for _, c := range []prometheus.Collector{
		m.operations,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", m.Handler())
	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

func (m *MetricsServer) observe(backend, op, status string, elapsed time.Duration) {
	m.operations.WithLabelValues(backend, op, status).Inc()
	m.duration.WithLabelValues(backend, op).Observe(elapsed.Seconds())
}
