package config

import (
	"os"
	"testing"
)

func setRequiredKeys(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("ASSEMBLYAI_API_KEY", "test-assemblyai-key")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("ASSEMBLYAI_API_KEY")
	})
}

func TestLoad(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.AssemblyAIAPIKey != "test-assemblyai-key" {
		t.Errorf("Expected AssemblyAIAPIKey 'test-assemblyai-key', got '%s'", cfg.AssemblyAIAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("ASSEMBLYAI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}

	if cfg.AssemblyAIURL != "wss://api.assemblyai.com/v2/realtime/ws" {
		t.Errorf("Expected default AssemblyAIURL, got '%s'", cfg.AssemblyAIURL)
	}

	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}

	if cfg.EncodedChunkSeconds != 0.02 {
		t.Errorf("Expected default EncodedChunkSeconds 0.02, got %f", cfg.EncodedChunkSeconds)
	}

	if cfg.ActivityRMSThreshold != 500.0 {
		t.Errorf("Expected default ActivityRMSThreshold 500.0, got %f", cfg.ActivityRMSThreshold)
	}

	if cfg.ActivityByteFraction != 0.10 {
		t.Errorf("Expected default ActivityByteFraction 0.10, got %f", cfg.ActivityByteFraction)
	}

	if cfg.AudioBufferSize != 8192 {
		t.Errorf("Expected default AudioBufferSize 8192, got %d", cfg.AudioBufferSize)
	}

	if cfg.LatencyWindowMs != 3000 {
		t.Errorf("Expected default LatencyWindowMs 3000, got %d", cfg.LatencyWindowMs)
	}

	if cfg.ConnectTimeoutSeconds != 10 {
		t.Errorf("Expected default ConnectTimeoutSeconds 10, got %d", cfg.ConnectTimeoutSeconds)
	}

	if cfg.DefaultAccuracy != 95.0 {
		t.Errorf("Expected default DefaultAccuracy 95.0, got %f", cfg.DefaultAccuracy)
	}
}

func TestLoad_InvalidSampleRate(t *testing.T) {
	setRequiredKeys(t)
	os.Setenv("SAMPLE_RATE", "0")
	defer os.Unsetenv("SAMPLE_RATE")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_WebSocketEndpoint(t *testing.T) {
	cfg := &Config{Port: "9090"}
	if got := cfg.WebSocketEndpoint(); got != "ws://localhost:9090/streams/mic" {
		t.Errorf("Expected local endpoint, got '%s'", got)
	}

	cfg.PublicURL = "wss://arena.example.dev/"
	if got := cfg.WebSocketEndpoint(); got != "wss://arena.example.dev/streams/mic" {
		t.Errorf("Expected public endpoint, got '%s'", got)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequiredKeys(t)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check observability defaults
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
