package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/echolabs/stt-arena/internal/audio"
	"github.com/echolabs/stt-arena/internal/observability"
	"github.com/echolabs/stt-arena/internal/transport"
)

// ErrNotIdle is returned by Reset when the session is still running
var ErrNotIdle = errors.New("session is not idle")

// Config holds per-session tuning
type Config struct {
	// Backend names the primary STT backend (used for logging and metrics)
	Backend string

	// PCMInput declares the submitted chunks as 16-bit LE PCM; when false
	// chunks are treated as opaque encoded timeslices
	PCMInput bool

	// SampleRate of PCM input in Hz; used to derive per-chunk durations
	SampleRate int

	// EncodedChunkSeconds is the cursor advance per encoded chunk
	// (e.g. 0.02 for a 20ms encoder timeslice)
	EncodedChunkSeconds float64

	// ConnectTimeout bounds the transport handshake; open attempts that
	// exceed it are treated as open failures
	ConnectTimeout time.Duration

	// LatencyWindow bounds the chunk-submission fallback used when a
	// recognition event carries no usable timing
	LatencyWindow time.Duration

	// DefaultAccuracy is reported when finalized results exist but none
	// carry a confidence score
	DefaultAccuracy float64

	// Activity tunes speech energy detection; nil uses defaults
	Activity *audio.ActivityConfig
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.EncodedChunkSeconds <= 0 {
		c.EncodedChunkSeconds = 0.02
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = 3 * time.Second
	}
	if c.DefaultAccuracy <= 0 {
		c.DefaultAccuracy = 95.0
	}
}

// Session drives one STT backend through its lifecycle: it owns the audio
// cursor, utterance timer and transcript accumulator, forwards captured audio
// chunks to the transport, and reconciles the transport's recognition events
// into results and metrics for a subscriber.
//
// Lifecycle: idle -> connecting -> streaming -> stopping -> idle, with error
// reachable from connecting and streaming. Exactly one transport connection
// exists per session at any time.
type Session struct {
	cfg      Config
	primary  transport.Transport
	fallback transport.Transport
	logger   zerolog.Logger
	obs      *observability.SessionMetrics

	cursor    AudioCursor
	utterance UtteranceTimer
	window    *submissionWindow
	acc       *TranscriptAccumulator
	detector  *audio.ActivityDetector

	mu     sync.Mutex
	state  State
	status ConnectionStatus
	active transport.Transport
	sink   ResultSink

	nowMs func() int64
}

// New creates a session for one backend. fallback may be nil; when present
// it is attempted once if the primary transport fails to open.
func New(cfg Config, primary, fallback transport.Transport) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:      cfg,
		primary:  primary,
		fallback: fallback,
		logger:   observability.WithBackend(cfg.Backend),
		obs:      observability.NewSessionMetrics(cfg.Backend),
		window:   newSubmissionWindow(cfg.LatencyWindow.Milliseconds()),
		acc:      NewTranscriptAccumulator(),
		detector: audio.NewActivityDetector(cfg.Activity),
		state:    StateIdle,
		status:   StatusDisconnected,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Start opens the transport and begins streaming. Calling Start while the
// session is already connecting or streaming is a no-op; the guard keeps
// repeated triggers from creating redundant backend connections.
//
// On an open failure (including the connect timeout) the fallback transport
// is attempted once; if both fail the error is returned and the session is
// left in the error state.
func (s *Session) Start(ctx context.Context, language string, sink ResultSink) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateStreaming, StateStopping:
		s.mu.Unlock()
		s.logger.Debug().Str("state", string(s.state)).Msg("Start ignored, session already running")
		return nil
	}

	s.state = StateConnecting
	s.sink = sink
	s.active = nil
	s.mu.Unlock()

	// Fresh counters for the new recording
	s.cursor.Reset()
	s.utterance.Reset()
	s.window.Reset()

	s.setStatus(StatusConnecting)

	opened, err := s.openTransport(ctx, language)
	if err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		s.setStatus(StatusError)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Stop raced the handshake; release the connection we just made
		s.mu.Unlock()
		_ = opened.Close()
		return nil
	}
	s.active = opened
	s.state = StateStreaming
	s.mu.Unlock()

	s.obs.RecordSessionStart()
	s.setStatus(StatusConnected)
	s.logger.Info().Str("transport", opened.Name()).Str("language", language).Msg("Transcription session streaming")
	return nil
}

func (s *Session) openTransport(ctx context.Context, language string) (transport.Transport, error) {
	s.primary.OnEvent(s.handleEvent)
	s.primary.OnError(s.handleTransportError)

	primaryErr := s.openWithin(ctx, s.primary, language)
	s.obs.RecordTransportOpen(primaryErr == nil)
	if primaryErr == nil {
		return s.primary, nil
	}

	s.logger.Warn().Err(primaryErr).Str("transport", s.primary.Name()).Msg("Transport open failed")
	s.obs.RecordError("transport_open", s.primary.Name())

	if s.fallback == nil {
		return nil, fmt.Errorf("open %s: %w", s.primary.Name(), primaryErr)
	}

	s.fallback.OnEvent(s.handleEvent)
	s.fallback.OnError(s.handleTransportError)

	fallbackErr := s.openWithin(ctx, s.fallback, language)
	s.obs.RecordTransportOpen(fallbackErr == nil)
	if fallbackErr == nil {
		s.logger.Info().Str("transport", s.fallback.Name()).Msg("Fallback transport opened")
		return s.fallback, nil
	}

	s.obs.RecordError("transport_open", s.fallback.Name())
	return nil, fmt.Errorf("open %s: %v; fallback %s: %w",
		s.primary.Name(), primaryErr, s.fallback.Name(), fallbackErr)
}

// openWithin runs t.Open under the connect timeout and enforces the deadline
// even against a transport that ignores its context. Each attempt gets its
// own timeout window so a primary that timed out does not starve the
// fallback. An open that only completes after the deadline is treated as an
// open failure and the late connection is released.
func (s *Session) openWithin(ctx context.Context, t transport.Transport, language string) error {
	openCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.Open(openCtx, language)
	}()

	select {
	case err := <-done:
		if err == nil && openCtx.Err() != nil {
			_ = t.Close()
			return openCtx.Err()
		}
		return err
	case <-openCtx.Done():
		// The handshake is still in flight; release the connection if it
		// eventually succeeds
		go func() {
			if err := <-done; err == nil {
				_ = t.Close()
			}
		}()
		return openCtx.Err()
	}
}

// ProcessChunk submits one captured audio chunk. The audio cursor advances at
// submission time, in submission order, so out-of-order completion of the
// underlying sends cannot corrupt cursor accounting. Chunks arriving while
// the session is not streaming are dropped.
func (s *Session) ProcessChunk(chunk []byte) {
	s.mu.Lock()
	if s.state != StateStreaming || s.active == nil {
		s.mu.Unlock()
		return
	}
	active := s.active
	s.mu.Unlock()

	now := s.nowMs()

	var duration float64
	if s.cfg.PCMInput {
		duration = audio.PCM16DurationSeconds(len(chunk), s.cfg.SampleRate)
	} else {
		duration = s.cfg.EncodedChunkSeconds
	}

	hasActivity := s.detector.Detect(chunk, s.cfg.PCMInput)
	s.utterance.OnChunk(hasActivity, now)

	s.cursor.Advance(duration)
	s.window.Record(now)
	s.obs.RecordAudioChunk(len(chunk), duration)

	if err := active.Send(chunk); err != nil {
		// Steady-state failures surface via status, never by failing the
		// audio-processing path
		s.logger.Error().Err(err).Msg("Failed to send audio chunk")
		s.obs.RecordError("transport_send", active.Name())
		s.setStatus(StatusError)
	}
}

// MarkActivity arms the utterance timer without submitting audio. Callers use
// it when a captured chunk is dropped before submission (e.g. a corrupt
// buffer) so a possible utterance start is not silently lost.
func (s *Session) MarkActivity() {
	s.mu.Lock()
	streaming := s.state == StateStreaming
	s.mu.Unlock()
	if !streaming {
		return
	}
	s.utterance.OnChunk(true, s.nowMs())
}

// handleEvent reconciles one recognition event into the accumulated state.
// Invoked asynchronously by the transport whenever the backend produces a
// result.
func (s *Session) handleEvent(ev transport.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		// Whitespace-only payloads are discarded, not errors
		return
	}

	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	sink := s.sink
	s.mu.Unlock()

	now := s.nowMs()

	result := TranscriptionResult{
		Text:          text,
		Timestamp:     now,
		IsFinal:       ev.IsFinal,
		Confidence:    ev.Confidence,
		HasConfidence: ev.Confidence > 0,
	}
	result.LatencyMs, result.HasLatency = s.computeLatency(ev, now)

	if ev.IsFinal {
		// The timer resets on every finalization, whichever branch
		// computed the latency
		s.utterance.OnFinalResult()
	}

	s.acc.AddResult(result)
	s.obs.RecordResult(result.IsFinal, result.LatencyMs)

	if sink != nil {
		sink.OnTranscriptionResult(result)
		if result.IsFinal {
			sink.OnMetricsUpdate(s.Metrics())
		}
	}
}

// computeLatency derives the per-utterance delay between audio submission
// and recognition.
//
// The primary measurement compares the audio cursor (how much audio the
// transport has been handed) against the transcript cursor (how far the
// backend reports having understood). Wall-clock fallbacks are degraded
// approximations used only when the backend omits positional metadata.
func (s *Session) computeLatency(ev transport.Event, nowMs int64) (float64, bool) {
	if ev.HasTiming {
		transcriptCursor := ev.OffsetSec + ev.DurationSec
		latency := (s.cursor.Current() - transcriptCursor) * 1000
		if latency < 0 {
			latency = 0
		}
		return latency, true
	}

	if ev.IsFinal {
		if start := s.utterance.StartTime(); start > 0 {
			latency := float64(nowMs - start)
			if latency < 0 {
				latency = 0
			}
			return latency, true
		}
	}

	if submitted, ok := s.window.Latest(nowMs); ok {
		latency := float64(nowMs - submitted)
		if latency < 0 {
			latency = 0
		}
		return latency, true
	}

	// Unset, not zero: zero would read as true zero latency
	return 0, false
}

// handleTransportError records a mid-stream transport failure. The session
// does not reconnect; accumulated results and metrics stay queryable and the
// user-initiated stop/restart is the recovery path.
func (s *Session) handleTransportError(err error) {
	s.mu.Lock()
	if s.state != StateStreaming && s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("Transport error")
	s.obs.RecordError("transport_stream", s.cfg.Backend)
	s.setStatus(StatusError)
}

// Stop ends the session. It is idempotent and safe to call from any state:
// chunk intake halts synchronously, the transport close may complete
// asynchronously in the background, and final metrics are published when any
// results were accumulated.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateStopping {
		s.mu.Unlock()
		return
	}
	wasStreaming := s.state == StateStreaming
	s.state = StateStopping
	active := s.active
	s.active = nil
	sink := s.sink
	s.mu.Unlock()

	if active != nil {
		if err := active.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Transport close failed")
		}
	}

	if wasStreaming {
		s.obs.RecordSessionEnd()
	}

	if sink != nil && s.acc.Len() > 0 {
		sink.OnMetricsUpdate(s.Metrics())
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.setStatus(StatusDisconnected)
	s.logger.Info().Msg("Transcription session stopped")
}

// Reset clears accumulated results and metrics. Only valid from idle;
// independent of Stop.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	sink := s.sink
	s.mu.Unlock()

	s.acc.Clear()
	s.cursor.Reset()
	s.utterance.Reset()
	s.window.Reset()

	if sink != nil {
		sink.OnMetricsUpdate(TranscriptionMetrics{})
	}
	return nil
}

func (s *Session) setStatus(status ConnectionStatus) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.OnConnectionStatusChange(status)
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current connection status
func (s *Session) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AudioCursorSeconds returns cumulative seconds of audio submitted
func (s *Session) AudioCursorSeconds() float64 {
	return s.cursor.Current()
}

// FinalText returns the stable finalized transcript
func (s *Session) FinalText() string {
	return s.acc.FinalText()
}

// DisplayText returns the live transcript including a trailing interim result
func (s *Session) DisplayText() string {
	return s.acc.DisplayText()
}

// Results returns a copy of all accumulated results in arrival order
func (s *Session) Results() []TranscriptionResult {
	return s.acc.Results()
}

// Metrics computes aggregate metrics over the full accumulated result set
func (s *Session) Metrics() TranscriptionMetrics {
	return CalculateMetrics(s.acc.Results(), s.cfg.DefaultAccuracy)
}
