package gateway

// ClientMessage is one inbound frame from the browser
type ClientMessage struct {
	Event      string        `json:"event"` // start, media, stop, reset
	Language   string        `json:"language,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Format     string        `json:"format,omitempty"` // pcm16 (default) or f32
	Media      *MediaPayload `json:"media,omitempty"`
}

// MediaPayload carries one base64-encoded audio chunk
type MediaPayload struct {
	Payload string `json:"payload"`
}

// ServerFrame is one outbound frame to the browser. Exactly one of Result,
// Metrics, Status or Message is set depending on Event.
type ServerFrame struct {
	Event   string        `json:"event"` // result, metrics, status, error
	Backend string        `json:"backend,omitempty"`
	Result  *ResultFrame  `json:"result,omitempty"`
	Metrics *MetricsFrame `json:"metrics,omitempty"`
	Status  string        `json:"status,omitempty"`
	Message string        `json:"message,omitempty"`
}

// ResultFrame is one recognized fragment. Confidence and LatencyMs are
// omitted when the backend did not report them.
type ResultFrame struct {
	Text       string   `json:"text"`
	Timestamp  int64    `json:"timestamp"`
	IsFinal    bool     `json:"isFinal"`
	Confidence *float64 `json:"confidence,omitempty"`
	LatencyMs  *float64 `json:"latencyMs,omitempty"`
}

// MetricsFrame is the aggregate view over a backend's finalized results
type MetricsFrame struct {
	LatencyMs int     `json:"latencyMs"`
	Accuracy  float64 `json:"accuracy"`
	WordCount int     `json:"wordCount"`
}
