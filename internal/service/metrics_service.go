package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the department directory cache and a few domain counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	logins          *prometheus.CounterVec
	questionsFiled  prometheus.Counter
	repliesFiled    prometheus.Counter
	questionsClosed prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "department_cache_latency_seconds",
		Help:    "Latency of department directory cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "department_cache_hits_total",
		Help: "Department directory cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "department_cache_misses_total",
		Help: "Department directory cache misses",
	})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Successful sign-ins by method",
	}, []string{"method"})

	questionsFiled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "questions_filed_total",
		Help: "Questions created",
	})

	repliesFiled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "question_replies_total",
		Help: "Replies filed by answer departments",
	})

	questionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "questions_closed_total",
		Help: "Questions closed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, logins, questionsFiled, repliesFiled, questionsClosed, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		logins:          logins,
		questionsFiled:  questionsFiled,
		repliesFiled:    repliesFiled,
		questionsClosed: questionsClosed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a department directory cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordLogin records a successful sign-in.
func (m *MetricsService) RecordLogin(method string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method).Inc()
}

// RecordQuestionFiled increments the filed questions counter.
func (m *MetricsService) RecordQuestionFiled() {
	if m == nil {
		return
	}
	m.questionsFiled.Inc()
}

// RecordReplyFiled increments the replies counter.
func (m *MetricsService) RecordReplyFiled() {
	if m == nil {
		return
	}
	m.repliesFiled.Inc()
}

// RecordQuestionClosed increments the closed questions counter.
func (m *MetricsService) RecordQuestionClosed() {
	if m == nil {
		return
	}
	m.questionsClosed.Inc()
}
