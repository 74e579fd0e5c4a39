// Package observability wires Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's Prometheus registry
type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cascadeSize       prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewCollector registers all metrics on a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackture",
			Name:      "operations_total",
			Help:      "Structural operations by kind and outcome",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackture",
			Name:      "operation_duration_seconds",
			Help:      "Structural operation latency including lock wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cascadeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stackture",
			Name:      "cascade_deleted_nodes",
			Help:      "Nodes removed per cascading delete",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackture",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackture",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.operations, c.operationDuration, c.cascadeSize,
		c.httpRequests, c.httpDuration,
	)
	return c
}

// RecordOperation implements ports.OperationMetrics
func (c *Collector) RecordOperation(operation, result string, duration time.Duration) {
	c.operations.WithLabelValues(operation, result).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCascade implements ports.OperationMetrics
func (c *Collector) RecordCascade(deleted int) {
	c.cascadeSize.Observe(float64(deleted))
}

// Registry exposes the registry for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
