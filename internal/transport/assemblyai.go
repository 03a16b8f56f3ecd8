package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/echolabs/stt-arena/internal/config"
	"github.com/echolabs/stt-arena/internal/observability"
	"github.com/echolabs/stt-arena/internal/resilience"
)

// assemblyAIMessage is the union of inbound realtime message shapes
type assemblyAIMessage struct {
	MessageType string  `json:"message_type"`
	SessionID   string  `json:"session_id,omitempty"`
	Text        string  `json:"text,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	AudioStart  int     `json:"audio_start,omitempty"` // milliseconds from session start
	AudioEnd    int     `json:"audio_end,omitempty"`   // milliseconds from session start
	Error       string  `json:"error,omitempty"`
}

// assemblyAIAudioFrame carries one outbound audio chunk
type assemblyAIAudioFrame struct {
	AudioData string `json:"audio_data"`
}

// assemblyAITerminate requests a graceful session shutdown
type assemblyAITerminate struct {
	TerminateSession bool `json:"terminate_session"`
}

// AssemblyAITransport streams audio to AssemblyAI's realtime API over a
// raw WebSocket connection
type AssemblyAITransport struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	open         bool
	eventHandler EventHandler
	errorHandler ErrorHandler
	done         chan struct{}
}

// NewAssemblyAITransport creates an AssemblyAI transport from configuration
func NewAssemblyAITransport(cfg *config.Config) *AssemblyAITransport {
	return &AssemblyAITransport{
		cfg:    cfg,
		logger: observability.WithBackend("assemblyai"),
	}
}

// Name returns the backend identifier
func (a *AssemblyAITransport) Name() string {
	return "assemblyai"
}

// OnEvent registers the recognition event handler. Must be called before Open.
func (a *AssemblyAITransport) OnEvent(handler EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventHandler = handler
}

// OnError registers the stream error handler. Must be called before Open.
func (a *AssemblyAITransport) OnError(handler ErrorHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorHandler = handler
}

// Open dials the realtime endpoint and waits for the session to begin.
// Transient dial failures are retried within the caller's deadline.
func (a *AssemblyAITransport) Open(ctx context.Context, language string) error {
	a.mu.Lock()
	if a.open {
		a.mu.Unlock()
		return ErrAlreadyOpen
	}
	if a.cfg.AssemblyAIAPIKey == "" {
		a.mu.Unlock()
		return ErrNotConfigured
	}
	a.mu.Unlock()

	url := fmt.Sprintf("%s?sample_rate=%d", a.cfg.AssemblyAIURL, a.cfg.SampleRate)
	header := http.Header{}
	header.Set("Authorization", a.cfg.AssemblyAIAPIKey)

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       a.cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(a.cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	var conn *websocket.Conn
	err := resilience.Retry(ctx, func() error {
		c, resp, dialErr := websocket.DefaultDialer.DialContext(ctx, url, header)
		if dialErr != nil {
			if resp != nil {
				return fmt.Errorf("assemblyai dial failed (status %d): %w", resp.StatusCode, dialErr)
			}
			return fmt.Errorf("assemblyai dial failed: %w", dialErr)
		}
		conn = c
		return nil
	}, retryCfg, resilience.IsRetryableNetworkError)
	if err != nil {
		return err
	}

	// The server confirms the session before transcripts flow
	var begin assemblyAIMessage
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.ReadJSON(&begin); err != nil {
		conn.Close()
		return fmt.Errorf("assemblyai session handshake failed: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if begin.MessageType != "SessionBegins" {
		conn.Close()
		return fmt.Errorf("assemblyai handshake: unexpected message type %q", begin.MessageType)
	}

	a.mu.Lock()
	a.conn = conn
	a.open = true
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.readLoop(conn)

	a.logger.Info().
		Str("session_id", begin.SessionID).
		Int("sample_rate", a.cfg.SampleRate).
		Msg("AssemblyAI realtime session started")
	return nil
}

// readLoop consumes transcript messages until the connection closes
func (a *AssemblyAITransport) readLoop(conn *websocket.Conn) {
	defer close(a.done)

	for {
		var msg assemblyAIMessage
		if err := conn.ReadJSON(&msg); err != nil {
			a.mu.Lock()
			stillOpen := a.open
			handler := a.errorHandler
			a.mu.Unlock()

			if stillOpen && handler != nil {
				handler(fmt.Errorf("assemblyai read failed: %w", err))
			}
			return
		}

		switch msg.MessageType {
		case "PartialTranscript", "FinalTranscript":
			if msg.Text == "" {
				continue
			}

			offsetSec := float64(msg.AudioStart) / 1000.0
			durationSec := float64(msg.AudioEnd-msg.AudioStart) / 1000.0

			event := Event{
				Text:        msg.Text,
				IsFinal:     msg.MessageType == "FinalTranscript",
				Confidence:  msg.Confidence,
				OffsetSec:   offsetSec,
				DurationSec: durationSec,
				HasTiming:   msg.AudioEnd > msg.AudioStart,
			}

			a.mu.Lock()
			handler := a.eventHandler
			a.mu.Unlock()
			if handler != nil {
				handler(event)
			}

		case "SessionTerminated":
			a.logger.Debug().Msg("AssemblyAI session terminated by server")
			return

		default:
			if msg.Error != "" {
				a.mu.Lock()
				handler := a.errorHandler
				a.mu.Unlock()
				if handler != nil {
					handler(fmt.Errorf("assemblyai error: %s", msg.Error))
				}
			}
		}
	}
}

// Send encodes a chunk as base64 and writes it as an audio frame
func (a *AssemblyAITransport) Send(chunk []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open || a.conn == nil {
		return ErrNotOpen
	}

	frame := assemblyAIAudioFrame{
		AudioData: base64.StdEncoding.EncodeToString(chunk),
	}
	if err := a.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send audio to AssemblyAI: %w", err)
	}
	return nil
}

// Close terminates the session gracefully. Safe to call twice.
func (a *AssemblyAITransport) Close() error {
	a.mu.Lock()
	if !a.open {
		a.mu.Unlock()
		return nil
	}
	a.open = false
	conn := a.conn
	a.conn = nil
	done := a.done
	a.mu.Unlock()

	// Ask the server to flush remaining transcripts before closing.
	// A write failure here means the connection is already gone.
	if err := conn.WriteJSON(assemblyAITerminate{TerminateSession: true}); err == nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			a.logger.Warn().Msg("timed out waiting for AssemblyAI session to terminate")
		}
	}

	err := conn.Close()
	a.logger.Info().Msg("AssemblyAI realtime session closed")
	return err
}

// marshalAudioFrame is exposed for tests of the wire format
func marshalAudioFrame(chunk []byte) ([]byte, error) {
	return json.Marshal(assemblyAIAudioFrame{
		AudioData: base64.StdEncoding.EncodeToString(chunk),
	})
}
