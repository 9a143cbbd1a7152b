package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Provider call duration in seconds, including streaming",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
	AIFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallbacks_total",
			Help: "Fallback attempts by origin provider, target provider and reason",
		},
		[]string{"from", "to", "reason"},
	)
	AIRefusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_refusals_total",
			Help: "Responses classified as refusals by responding provider",
		},
		[]string{"provider"},
	)
	StreamChunksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_stream_chunks_dropped_total",
			Help: "Malformed stream chunks skipped while decoding",
		},
		[]string{"format"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		},
		[]string{"provider"},
	)

	TasksAddedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_added_total",
			Help: "Total number of tasks added to the ledger",
		},
		[]string{"type"},
	)
	TasksProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_processing",
			Help: "Number of tasks currently processing",
		},
		[]string{"type"},
	)
	TasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_finished_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"type", "status"},
	)

	ServiceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_service_up",
			Help: "1 when the last health probe found the backend online",
		},
		[]string{"service"},
	)
	ServiceLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_service_latency_seconds",
			Help: "Latency of the last successful health probe",
		},
		[]string{"service"},
	)
	DiagnosticsRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diagnostics_run_duration_seconds",
			Help:    "Duration of a full diagnostics fan-out",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	PersistWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persist_writes_total",
			Help: "Snapshot writes to the persistence port by key and result",
		},
		[]string{"key", "result"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIFallbacksTotal,
			AIRefusalsTotal,
			StreamChunksDroppedTotal,
			CircuitBreakerState,
			TasksAddedTotal,
			TasksProcessing,
			TasksFinishedTotal,
			ServiceUp,
			ServiceLatency,
			DiagnosticsRunDuration,
			PersistWritesTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider call. outcome is ok, refused, transport or provider.
func ObserveAIRequest(provider, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func RecordFallback(from, to, reason string) {
	AIFallbacksTotal.WithLabelValues(from, to, reason).Inc()
}

func RecordRefusal(provider string) {
	AIRefusalsTotal.WithLabelValues(provider).Inc()
}

func RecordStreamDrop(format string) {
	StreamChunksDroppedTotal.WithLabelValues(format).Inc()
}

func RecordCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

func AddTask(taskType string) {
	TasksAddedTotal.WithLabelValues(taskType).Inc()
}

func StartTask(taskType string) {
	TasksProcessing.WithLabelValues(taskType).Inc()
}

// FinishTask records a terminal transition. wasProcessing tells whether the
// processing gauge must be decremented (pending tasks can be failed or cancelled too).
func FinishTask(taskType, status string, wasProcessing bool) {
	if wasProcessing {
		TasksProcessing.WithLabelValues(taskType).Dec()
	}
	TasksFinishedTotal.WithLabelValues(taskType, status).Inc()
}

// ObserveService records the outcome of one health probe.
func ObserveService(service string, online bool, latency time.Duration) {
	if online {
		ServiceUp.WithLabelValues(service).Set(1)
		ServiceLatency.WithLabelValues(service).Set(latency.Seconds())
		return
	}
	ServiceUp.WithLabelValues(service).Set(0)
}

func ObserveDiagnosticsRun(d time.Duration) {
	DiagnosticsRunDuration.Observe(d.Seconds())
}

func RecordPersistWrite(key string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PersistWritesTotal.WithLabelValues(key, result).Inc()
}
