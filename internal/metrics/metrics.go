// Package metrics exposes Prometheus instrumentation for HTTP traffic and
// interview activity.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview_engine"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Interview sessions created, by difficulty",
	}, []string{"difficulty"})

	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_closed_total",
		Help:      "Interview sessions reaching a terminal state",
	}, []string{"status"})

	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Candidate turns processed, by interviewer role",
	}, []string{"role"})

	generationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_fallbacks_total",
		Help:      "Generator calls replaced by fallback content",
	}, []string{"op", "role", "reason"})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Duration of generator calls in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"op"})

	reports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_total",
		Help:      "Assessment reports generated, by recommendation",
	}, []string{"recommendation", "degraded"})

	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Current number of transcript stream subscribers",
	})

	laggedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_subscribers_lagged_total",
		Help:      "Subscribers dropped because their buffer overflowed",
	})
)

// SessionCreated counts a new session
func SessionCreated(difficulty string) {
	sessionsCreated.WithLabelValues(difficulty).Inc()
}

// SessionClosed counts a session reaching status
func SessionClosed(status string) {
	sessionsClosed.WithLabelValues(status).Inc()
}

// Turn counts a processed candidate turn
func Turn(role string) {
	turns.WithLabelValues(role).Inc()
}

// Fallback counts a generator call replaced by fallback content
func Fallback(op, role, reason string) {
	generationFallbacks.WithLabelValues(op, role, reason).Inc()
}

// ObserveGeneration records how long a generator call took
func ObserveGeneration(op string, d time.Duration) {
	generationLatency.WithLabelValues(op).Observe(d.Seconds())
}

// Report counts a generated assessment report
func Report(recommendation string, degraded bool) {
	reports.WithLabelValues(recommendation, strconv.FormatBool(degraded)).Inc()
}

// SubscriberAdded increments the live subscriber gauge
func SubscriberAdded() {
	subscribers.Inc()
}

// SubscriberRemoved decrements the live subscriber gauge
func SubscriberRemoved() {
	subscribers.Dec()
}

// SubscriberLagged counts a subscriber closed for falling behind
func SubscriberLagged() {
	laggedSubscribers.Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by chi route pattern, so path
// parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
