package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/echolabs/stt-arena/internal/audio"
	"github.com/echolabs/stt-arena/internal/config"
	"github.com/echolabs/stt-arena/internal/observability"
	"github.com/echolabs/stt-arena/internal/session"
	"github.com/echolabs/stt-arena/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against the allowed frontend hosts
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// StreamSession bridges one browser WebSocket connection to the backend
// transcription sessions being compared. Incoming media frames fan out to
// every session; results, metrics and status changes fan back in as labeled
// JSON frames on the same socket.
type StreamSession struct {
	conn *websocket.Conn
	cfg  *config.Config

	correlationID string
	logger        zerolog.Logger

	mu         sync.RWMutex
	writeMu    sync.Mutex
	isActive   bool
	started    bool
	format     string
	clientRate int

	sessions map[string]*session.Session

	// Incoming audio path: decoded chunks queue on audioIn, the pump
	// goroutine reassembles them into uniform frames via the ring buffer
	audioIn    chan []byte
	inBuffer   *audio.RingBuffer
	frameBytes int

	done chan struct{}
}

// NewStreamSession creates the per-connection state and its backend sessions
func NewStreamSession(conn *websocket.Conn, cfg *config.Config) *StreamSession {
	correlationID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(correlationID)

	s := &StreamSession{
		conn:          conn,
		cfg:           cfg,
		correlationID: correlationID,
		logger:        logger,
		sessions:      make(map[string]*session.Session),
		audioIn:       make(chan []byte, 100),
		inBuffer:      audio.NewRingBuffer(cfg.AudioBufferSize),
		done:          make(chan struct{}),
		isActive:      true,
	}

	sessionCfg := session.Config{
		PCMInput:            true,
		SampleRate:          cfg.SampleRate,
		EncodedChunkSeconds: cfg.EncodedChunkSeconds,
		ConnectTimeout:      time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		LatencyWindow:       time.Duration(cfg.LatencyWindowMs) * time.Millisecond,
		DefaultAccuracy:     cfg.DefaultAccuracy,
		Activity: &audio.ActivityConfig{
			RMSThreshold: cfg.ActivityRMSThreshold,
			ByteFraction: cfg.ActivityByteFraction,
		},
	}

	// Both cloud backends share the on-device recognizer as their one-shot
	// fallback when the primary connection cannot be opened
	deepgramCfg := sessionCfg
	deepgramCfg.Backend = "deepgram"
	s.sessions["deepgram"] = session.New(
		deepgramCfg,
		transport.NewDeepgramTransport(cfg),
		transport.NewLocalExecTransport(cfg),
	)

	assemblyCfg := sessionCfg
	assemblyCfg.Backend = "assemblyai"
	s.sessions["assemblyai"] = session.New(
		assemblyCfg,
		transport.NewAssemblyAITransport(cfg),
		transport.NewLocalExecTransport(cfg),
	)

	return s
}

// HandleMicStream is the entry point for browser microphone WebSocket connections
func HandleMicStream(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		stream := NewStreamSession(conn, cfg)
		stream.logger.Info().Msg("mic stream connection established")

		go stream.processIncomingAudio()

		stream.processIncomingMessages()
	}
}

// processIncomingMessages handles all inbound WebSocket frames until the
// connection closes
func (s *StreamSession) processIncomingMessages() {
	defer func() {
		s.stopSessions()
		close(s.done)
		s.logger.Info().Msg("mic stream connection closed")
	}()

	for {
		s.mu.RLock()
		active := s.isActive
		s.mu.RUnlock()
		if !active {
			return
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			s.mu.Lock()
			s.isActive = false
			s.mu.Unlock()
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("failed to parse client message")
			s.sendError("", "malformed message")
			continue
		}

		switch msg.Event {
		case "start":
			s.handleStart(&msg)

		case "media":
			if msg.Media != nil {
				s.handleMediaEvent(msg.Media)
			}

		case "stop":
			s.logger.Info().Msg("stop requested by client")
			s.stopSessions()

		case "reset":
			s.handleReset()

		default:
			s.logger.Warn().Str("event", msg.Event).Msg("unknown client event")
			s.sendError("", "unknown event: "+msg.Event)
		}
	}
}

// handleStart starts every backend session. A start while sessions are
// already running is ignored by the sessions themselves.
func (s *StreamSession) handleStart(msg *ClientMessage) {
	format := msg.Format
	if format == "" {
		format = "pcm16"
	}
	if format != "pcm16" && format != "f32" {
		s.sendError("", "unsupported audio format: "+format)
		return
	}

	sampleRate := msg.SampleRate
	if sampleRate <= 0 {
		sampleRate = s.cfg.SampleRate
	}

	// Frame size for reassembly: 20ms of 16-bit mono PCM at the backend rate
	frameBytes := s.cfg.SampleRate / 50 * 2

	s.mu.Lock()
	s.format = format
	s.clientRate = sampleRate
	s.frameBytes = frameBytes
	s.started = true
	s.mu.Unlock()

	s.logger.Info().
		Str("language", msg.Language).
		Str("format", format).
		Int("sample_rate", sampleRate).
		Msg("starting transcription sessions")

	for backend, sess := range s.sessions {
		sink := &wsSink{stream: s, backend: backend}
		if err := sess.Start(context.Background(), msg.Language, sink); err != nil {
			s.logger.Error().Err(err).Str("backend", backend).Msg("failed to start session")
			s.sendError(backend, err.Error())
		}
	}
}

// handleMediaEvent decodes one media frame and queues it for the audio pump
func (s *StreamSession) handleMediaEvent(media *MediaPayload) {
	if media.Payload == "" {
		s.logger.Warn().Msg("media event missing payload")
		return
	}

	audioData, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode base64 audio")
		return
	}

	s.mu.RLock()
	format := s.format
	started := s.started
	clientRate := s.clientRate
	s.mu.RUnlock()
	if !started {
		return
	}

	if format == "f32" {
		converted, err := audio.ConvertFloat32ToPCM16(audioData)
		if err != nil {
			// The chunk is dropped, but a corrupt buffer may still mark the
			// start of speech; arm the utterance timers conservatively
			s.logger.Error().Err(err).Msg("failed to convert float32 audio")
			for _, sess := range s.sessions {
				sess.MarkActivity()
			}
			return
		}
		audioData = converted
	}

	// Browsers often capture at 44.1/48kHz; bring the audio to the rate
	// the backends were opened with
	if clientRate != s.cfg.SampleRate && len(audioData)%2 == 0 {
		samples := audio.DecodePCM16(audioData)
		audioData = audio.EncodePCM16(audio.Resample(samples, clientRate, s.cfg.SampleRate))
	}

	select {
	case s.audioIn <- audioData:
	default:
		s.logger.Warn().Msg("audioIn channel full, dropping audio chunk")
	}
}

// processIncomingAudio reassembles queued chunks into uniform frames and
// fans them out to every backend session
func (s *StreamSession) processIncomingAudio() {
	frame := make([]byte, 0)

	for {
		select {
		case chunk := <-s.audioIn:
			if written := s.inBuffer.Write(chunk); written < len(chunk) {
				s.logger.Warn().
					Int("dropped", len(chunk)-written).
					Msg("audio buffer overflow")
			}

			s.mu.RLock()
			frameBytes := s.frameBytes
			s.mu.RUnlock()
			if frameBytes <= 0 {
				continue
			}

			if cap(frame) < frameBytes {
				frame = make([]byte, frameBytes)
			}
			frame = frame[:frameBytes]

			for s.inBuffer.Available() >= frameBytes {
				n := s.inBuffer.Read(frame)
				if n == 0 {
					break
				}
				for _, sess := range s.sessions {
					sess.ProcessChunk(frame[:n])
				}
			}

		case <-s.done:
			return
		}
	}
}

// handleReset clears accumulated transcripts; sessions refuse the reset
// unless they are idle
func (s *StreamSession) handleReset() {
	for backend, sess := range s.sessions {
		if err := sess.Reset(); err != nil {
			s.logger.Warn().Err(err).Str("backend", backend).Msg("reset refused")
			s.sendError(backend, err.Error())
		}
	}
	s.inBuffer.Clear()
}

// stopSessions stops every backend session and discards any partial frame
// still queued for reassembly, so a later start on the same connection does
// not begin with stale audio. Stops are idempotent.
func (s *StreamSession) stopSessions() {
	for _, sess := range s.sessions {
		sess.Stop()
	}
	s.inBuffer.Clear()
}

// writeFrame serializes one outbound frame. Writes are serialized because
// sinks for different backends fire concurrently.
func (s *StreamSession) writeFrame(frame *ServerFrame) {
	s.mu.RLock()
	active := s.isActive
	s.mu.RUnlock()
	if !active {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(frame); err != nil {
		s.logger.Error().Err(err).Str("event", frame.Event).Msg("failed to write frame")
	}
}

func (s *StreamSession) sendError(backend, message string) {
	s.writeFrame(&ServerFrame{
		Event:   "error",
		Backend: backend,
		Message: message,
	})
}

// wsSink forwards one backend session's output to the browser connection
type wsSink struct {
	stream  *StreamSession
	backend string
}

func (w *wsSink) OnTranscriptionResult(result session.TranscriptionResult) {
	frame := &ServerFrame{
		Event:   "result",
		Backend: w.backend,
		Result: &ResultFrame{
			Text:      result.Text,
			Timestamp: result.Timestamp,
			IsFinal:   result.IsFinal,
		},
	}
	if result.HasConfidence {
		c := result.Confidence
		frame.Result.Confidence = &c
	}
	if result.HasLatency {
		l := result.LatencyMs
		frame.Result.LatencyMs = &l
	}
	w.stream.writeFrame(frame)
}

func (w *wsSink) OnMetricsUpdate(metrics session.TranscriptionMetrics) {
	w.stream.writeFrame(&ServerFrame{
		Event:   "metrics",
		Backend: w.backend,
		Metrics: &MetricsFrame{
			LatencyMs: metrics.LatencyMs,
			Accuracy:  metrics.Accuracy,
			WordCount: metrics.WordCount,
		},
	})
}

func (w *wsSink) OnConnectionStatusChange(status session.ConnectionStatus) {
	w.stream.writeFrame(&ServerFrame{
		Event:   "status",
		Backend: w.backend,
		Status:  string(status),
	})
}
