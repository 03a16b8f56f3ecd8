package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the transcription arena service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when proxied).
	// Used for logging the WebSocket endpoint; browsers connect to ws://<this-host>/streams/mic.
	// Optional; if unset, logs ws://localhost:PORT/streams/mic.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// AssemblyAI realtime STT configuration
	AssemblyAIAPIKey string `envconfig:"ASSEMBLYAI_API_KEY" required:"true"`
	AssemblyAIURL    string `envconfig:"ASSEMBLYAI_URL" default:"wss://api.assemblyai.com/v2/realtime/ws"`

	// Local on-device recognizer fallback (used when a streaming backend fails to open).
	// Command is executed with PCM16 audio streamed to stdin; it must emit one JSON
	// object per line on stdout: {"text": "...", "final": bool, "confidence": 0.9}
	LocalSTTCommand string `envconfig:"LOCAL_STT_COMMAND" default:""`

	// Audio processing configuration
	SampleRate           int     `envconfig:"SAMPLE_RATE" default:"16000"`            // Input PCM sample rate in Hz
	EncodedChunkSeconds  float64 `envconfig:"ENCODED_CHUNK_SECONDS" default:"0.02"`   // Cursor advance per encoded chunk (20ms timeslice)
	ActivityRMSThreshold float64 `envconfig:"ACTIVITY_RMS_THRESHOLD" default:"500.0"` // RMS energy threshold for PCM speech detection
	ActivityByteFraction float64 `envconfig:"ACTIVITY_BYTE_FRACTION" default:"0.10"`  // Fraction of loud bytes for encoded speech detection
	AudioBufferSize      int     `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"`       // Ring buffer size in bytes
	LatencyWindowMs      int     `envconfig:"LATENCY_WINDOW_MS" default:"3000"`       // Window for chunk-submission latency fallback

	// Session configuration
	ConnectTimeoutSeconds int     `envconfig:"CONNECT_TIMEOUT_SECONDS" default:"10"` // Transport open timeout
	DefaultAccuracy       float64 `envconfig:"DEFAULT_ACCURACY" default:"95.0"`      // Accuracy when no confidences reported

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum dial retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.AssemblyAIAPIKey == "" {
		return nil, fmt.Errorf("ASSEMBLYAI_API_KEY is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EncodedChunkSeconds <= 0 {
		return nil, fmt.Errorf("ENCODED_CHUNK_SECONDS must be positive, got %f", cfg.EncodedChunkSeconds)
	}

	return &cfg, nil
}

// WebSocketEndpoint returns the address browsers connect to for the mic
// stream, preferring the public URL when one is configured
func (c *Config) WebSocketEndpoint() string {
	if c.PublicURL != "" {
		return strings.TrimSuffix(c.PublicURL, "/") + "/streams/mic"
	}
	return fmt.Sprintf("ws://localhost:%s/streams/mic", c.Port)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
