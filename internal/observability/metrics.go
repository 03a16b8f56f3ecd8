package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stt_arena_active_sessions",
		Help: "Number of active transcription sessions",
	}, []string{"backend"})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_sessions_total",
		Help: "Total number of transcription sessions started",
	}, []string{"backend"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stt_arena_session_duration_seconds",
		Help:    "Duration of transcription sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"backend"})

	// Recognition metrics
	recognitionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_results_total",
		Help: "Total number of recognition results received",
	}, []string{"backend", "kind"}) // kind: "interim" or "final"

	recognitionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stt_arena_recognition_latency_seconds",
		Help:    "Per-utterance recognition latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"backend"})

	transportOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_transport_opens_total",
		Help: "Total number of transport open attempts",
	}, []string{"backend", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stt_arena_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_audio_bytes_total",
		Help: "Total audio bytes submitted to transports",
	}, []string{"backend"})

	audioSecondsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_arena_audio_seconds_total",
		Help: "Total seconds of audio submitted to transports",
	}, []string{"backend"})
)

// SessionMetrics tracks Prometheus metrics for one transcription session
type SessionMetrics struct {
	backend   string
	startTime time.Time
	mu        sync.Mutex
	started   bool
}

// NewSessionMetrics creates a metrics tracker for a session against one backend
func NewSessionMetrics(backend string) *SessionMetrics {
	return &SessionMetrics{backend: backend}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.startTime = time.Now()
	activeSessions.WithLabelValues(m.backend).Inc()
	totalSessions.WithLabelValues(m.backend).Inc()
}

// RecordSessionEnd records the end of a session
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	activeSessions.WithLabelValues(m.backend).Dec()
	sessionDuration.WithLabelValues(m.backend).Observe(time.Since(m.startTime).Seconds())
}

// RecordResult records one recognition result and its latency when known
func (m *SessionMetrics) RecordResult(isFinal bool, latencyMs float64) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	recognitionResults.WithLabelValues(m.backend, kind).Inc()
	if latencyMs > 0 {
		recognitionLatency.WithLabelValues(m.backend).Observe(latencyMs / 1000.0)
	}
}

// RecordTransportOpen records a transport open attempt
func (m *SessionMetrics) RecordTransportOpen(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	transportOpens.WithLabelValues(m.backend, status).Inc()
}

// RecordAudioChunk records one submitted audio chunk
func (m *SessionMetrics) RecordAudioChunk(bytes int, durationSeconds float64) {
	audioBytesProcessed.WithLabelValues(m.backend).Add(float64(bytes))
	audioSecondsSubmitted.WithLabelValues(m.backend).Add(durationSeconds)
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
