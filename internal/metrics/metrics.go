// Package metrics exposes Prometheus collectors for the HTTP layer and the
// domain events, served on /metrics.
//
// Collectors live on a private registry owned by Metrics instead of the
// global default registry, so tests can build as many instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/minitwit/internal/events"
)

const namespace = "minitwit"

type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	Events          *prometheus.CounterVec
	Signups         prometheus.Counter
	SigninFailures  *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published, by kind.",
		}, []string{"kind"}),
		Signups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signups_total",
			Help:      "Accounts created.",
		}),
		SigninFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_failures_total",
			Help:      "Failed sign-in attempts, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.Events,
		m.Signups,
		m.SigninFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SignedUp counts a new account.
func (m *Metrics) SignedUp() {
	m.Signups.Inc()
}

// SignInFailed counts a rejected sign-in.
func (m *Metrics) SignInFailed(reason string) {
	m.SigninFailures.WithLabelValues(reason).Inc()
}

// Publisher wraps next so every published event is also counted.
func (m *Metrics) Publisher(next events.Publisher) events.Publisher {
	return &countingPublisher{next: next, counter: m.Events}
}

type countingPublisher struct {
	next    events.Publisher
	counter *prometheus.CounterVec
}

func (p *countingPublisher) Publish(e events.Event) {
	p.counter.WithLabelValues(string(e.Kind)).Inc()
	p.next.Publish(e)
}

// statusRecordingWriter captures the status code written by the handler.
type statusRecordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers push data through the wrapper.
func (rw *statusRecordingWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecordingWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Instrument observes request durations labelled with the matched chi route
// pattern (e.g. "/api/tweets/{id}") rather than the raw path, which keeps
// the label set bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}
