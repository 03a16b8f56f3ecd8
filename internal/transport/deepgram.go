package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/echolabs/stt-arena/internal/config"
	"github.com/echolabs/stt-arena/internal/observability"
	"github.com/echolabs/stt-arena/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.onMessage(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.onError != nil {
		return m.onError(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramTransport streams audio to Deepgram's live transcription API
type DeepgramTransport struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu     sync.RWMutex
	client *listenClient.WSCallback
	open   bool
	cancel context.CancelFunc

	// Handlers live under their own lock so SDK callbacks firing during the
	// handshake cannot contend with Open holding mu
	handlerMu    sync.RWMutex
	eventHandler EventHandler
	errorHandler ErrorHandler

	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramTransport creates a Deepgram transport from configuration.
// The returned transport is not connected until Open is called.
func NewDeepgramTransport(cfg *config.Config) *DeepgramTransport {
	return &DeepgramTransport{
		cfg:    cfg,
		logger: observability.WithBackend("deepgram"),
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Name returns the backend identifier
func (d *DeepgramTransport) Name() string {
	return "deepgram"
}

// OnEvent registers the recognition event handler. Must be called before Open.
func (d *DeepgramTransport) OnEvent(handler EventHandler) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.eventHandler = handler
}

// OnError registers the stream error handler. Must be called before Open.
func (d *DeepgramTransport) OnError(handler ErrorHandler) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.errorHandler = handler
}

// Open establishes the streaming connection to Deepgram
func (d *DeepgramTransport) Open(ctx context.Context, language string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return ErrAlreadyOpen
	}
	if d.cfg.DeepgramAPIKey == "" {
		return ErrNotConfigured
	}

	if language == "" {
		language = d.cfg.DeepgramLanguage
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000", // end utterance after 1s of silence (string in v3)
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onError: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Error().
				Str("error_code", errorResponse.ErrCode).
				Str("description", errorResponse.Description).
				Msg("Deepgram stream error")

			d.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.State()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			d.handlerMu.RLock()
			handler := d.errorHandler
			d.handlerMu.RUnlock()
			if handler != nil {
				handler(fmt.Errorf("deepgram stream error: %s (%s)", errorResponse.Description, errorResponse.ErrCode))
			}
			return nil
		},
	}

	// The connection's lifetime is owned by connCtx so it survives past the
	// caller's open deadline; the handshake itself is still bounded by ctx
	// via the select below.
	connCtx, cancel := context.WithCancel(context.Background())

	type dialResult struct {
		client *listenClient.WSCallback
		err    error
	}
	dialDone := make(chan dialResult, 1)
	go func() {
		c, err := listenClient.NewWSUsingCallback(
			connCtx,
			d.cfg.DeepgramAPIKey,
			nil, // ClientOptions, nil uses defaults
			tOptions,
			callback,
		)
		dialDone <- dialResult{client: c, err: err}
	}()

	var client *listenClient.WSCallback
	select {
	case res := <-dialDone:
		if res.err != nil {
			cancel()
			return fmt.Errorf("failed to create Deepgram client: %w", res.err)
		}
		client = res.client
	case <-ctx.Done():
		// Tear down the in-flight dial and release a late success
		cancel()
		go func() {
			if res := <-dialDone; res.err == nil {
				res.client.Finish()
			}
		}()
		return ctx.Err()
	}

	d.client = client
	d.cancel = cancel
	d.open = true

	d.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.State()))

	d.logger.Info().
		Str("model", d.cfg.DeepgramModel).
		Str("language", language).
		Int("sample_rate", d.cfg.SampleRate).
		Msg("Deepgram streaming connection opened")
	return nil
}

// handleMessage maps Deepgram messages to recognition events
func (d *DeepgramTransport) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Metadata":
		d.logger.Debug().Msg("Deepgram metadata received")

	case "SpeechStarted":
		d.logger.Debug().Msg("Deepgram: speech started")

	case "UtteranceEnd":
		d.logger.Debug().Msg("Deepgram: utterance ended")

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}

		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		startTime := msg.Start
		duration := msg.Duration
		if duration == 0 && len(alt.Words) > 0 {
			// Fallback: derive timing from the word list
			startTime = alt.Words[0].Start
			lastWord := alt.Words[len(alt.Words)-1]
			duration = lastWord.End - startTime
		}

		event := Event{
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			Confidence:  alt.Confidence,
			OffsetSec:   startTime,
			DurationSec: duration,
			HasTiming:   duration > 0,
		}

		d.handlerMu.RLock()
		handler := d.eventHandler
		d.handlerMu.RUnlock()
		if handler != nil {
			handler(event)
		}

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Deepgram: unhandled message type")
	}
}

// Send writes an audio chunk to the open stream under circuit breaker protection
func (d *DeepgramTransport) Send(chunk []byte) error {
	err := d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		open := d.open
		client := d.client
		d.mu.RUnlock()

		if !open || client == nil {
			return ErrNotOpen
		}

		if _, err := client.Write(chunk); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.State()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

// Close finishes the stream and releases the connection. Safe to call twice.
func (d *DeepgramTransport) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}

	d.open = false
	// Finish flushes any buffered audio and closes the socket
	d.client.Finish()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.client = nil

	d.logger.Info().Msg("Deepgram streaming connection closed")
	return nil
}
