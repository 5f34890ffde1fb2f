package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concerts"

// Collector exposes Prometheus metrics for the engine, its collaborators and the HTTP API.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry          *prometheus.Registry
	intents           *prometheus.CounterVec
	collaboratorCalls *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
}

// NewCollector constructs a collector on its own registry
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "intents_total",
		Help:      "Classified inbound messages by intent.",
	}, []string{"intent"})

	collaboratorCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_calls_total",
		Help:      "Calls to external collaborators by service and outcome.",
	}, []string{"service", "outcome"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	for _, c := range []prometheus.Collector{intents, collaboratorCalls, requestDuration, requestTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:          registry,
		intents:           intents,
		collaboratorCalls: collaboratorCalls,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
	}, nil
}

// Intent counts one classified message
func (c *Collector) Intent(intent string) {
	if c == nil {
		return
	}
	c.intents.WithLabelValues(intent).Inc()
}

// Collaborator counts one call to an external service
func (c *Collector) Collaborator(service string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.collaboratorCalls.WithLabelValues(service, outcome).Inc()
}

// Handler returns an HTTP handler for exposing Prometheus metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		// Route pattern keeps label cardinality bounded for /api/events/{id}
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
