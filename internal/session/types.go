package session

// ConnectionStatus describes the transport connection as seen by subscribers
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// State is the lifecycle state of a transcription session
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateStopping   State = "stopping"
	StateError      State = "error"
)

// TranscriptionResult is one recognized fragment, interim or final.
// Results are append-only within a session and ordered by arrival.
type TranscriptionResult struct {
	// Text is the recognized text fragment, never empty
	Text string

	// Timestamp is the wall-clock time the result was received, in ms since epoch
	Timestamp int64

	// IsFinal indicates a finalized utterance (true) or an interim revision (false)
	IsFinal bool

	// Confidence is the backend-reported confidence in [0,1]; valid only
	// when HasConfidence is true
	Confidence    float64
	HasConfidence bool

	// LatencyMs is the computed delay between audio submission and
	// recognition; valid only when HasLatency is true. Zero with
	// HasLatency set means true zero latency, not "unknown".
	LatencyMs  float64
	HasLatency bool
}

// TranscriptionMetrics are aggregate figures over the finalized results of a session
type TranscriptionMetrics struct {
	// LatencyMs is the rounded mean of positive per-result latencies
	LatencyMs int

	// Accuracy is the mean reported confidence scaled to [0,100], one
	// decimal place. This is a confidence proxy, not a comparison against
	// reference text.
	Accuracy float64

	// WordCount is the total whitespace-delimited tokens across final texts
	WordCount int
}

// ResultSink receives session output. Callbacks are invoked from the
// session's event-handling path and must not block.
type ResultSink interface {
	// OnTranscriptionResult is called once per recognized fragment
	OnTranscriptionResult(result TranscriptionResult)

	// OnMetricsUpdate is called after every finalization and once at session end
	OnMetricsUpdate(metrics TranscriptionMetrics)

	// OnConnectionStatusChange is called on every status transition
	OnConnectionStatusChange(status ConnectionStatus)
}
