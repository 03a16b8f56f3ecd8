package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/echolabs/stt-arena/internal/config"
	"github.com/echolabs/stt-arena/internal/observability"
)

// localExecResult is one JSON line emitted by the recognizer process
type localExecResult struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
}

// LocalExecTransport runs an on-device recognizer as a subprocess. Raw PCM
// is streamed to its stdin and results are read as JSON lines from stdout.
// It serves as the fallback when no cloud backend can be reached.
type LocalExecTransport struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	open         bool
	eventHandler EventHandler
	errorHandler ErrorHandler
	cancel       context.CancelFunc
	readDone     chan struct{}
}

// NewLocalExecTransport creates the subprocess transport from configuration
func NewLocalExecTransport(cfg *config.Config) *LocalExecTransport {
	return &LocalExecTransport{
		cfg:    cfg,
		logger: observability.WithBackend("local"),
	}
}

// Name returns the backend identifier
func (l *LocalExecTransport) Name() string {
	return "local"
}

// OnEvent registers the recognition event handler. Must be called before Open.
func (l *LocalExecTransport) OnEvent(handler EventHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eventHandler = handler
}

// OnError registers the stream error handler. Must be called before Open.
func (l *LocalExecTransport) OnError(handler ErrorHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorHandler = handler
}

// Open starts the recognizer process
func (l *LocalExecTransport) Open(ctx context.Context, language string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open {
		return ErrAlreadyOpen
	}
	if l.cfg.LocalSTTCommand == "" {
		return ErrNotConfigured
	}

	parser := shellwords.NewParser()
	args, err := parser.Parse(l.cfg.LocalSTTCommand)
	if err != nil {
		return fmt.Errorf("parse local stt command: %w", err)
	}
	if len(args) == 0 {
		return ErrNotConfigured
	}

	cmdArgs := append(args[1:], "--sample-rate", fmt.Sprint(l.cfg.SampleRate))
	if language != "" {
		cmdArgs = append(cmdArgs, "--language", language)
	}

	// The process outlives the open deadline; it is stopped by Close
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, args[0], cmdArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("local stt stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("local stt stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start local stt command: %w", err)
	}

	l.cmd = cmd
	l.stdin = stdin
	l.cancel = cancel
	l.open = true
	l.readDone = make(chan struct{})

	go l.readLoop(stdout, l.readDone)

	l.logger.Info().
		Str("command", args[0]).
		Str("language", language).
		Msg("local recognizer process started")
	return nil
}

// readLoop decodes JSON-line results from the recognizer process
func (l *LocalExecTransport) readLoop(stdout io.Reader, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var res localExecResult
		if err := json.Unmarshal(line, &res); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed recognizer output line")
			continue
		}
		if res.Text == "" {
			continue
		}

		// The subprocess protocol carries no audio timestamps
		event := Event{
			Text:       res.Text,
			IsFinal:    res.Final,
			Confidence: res.Confidence,
		}

		l.mu.Lock()
		handler := l.eventHandler
		l.mu.Unlock()
		if handler != nil {
			handler(event)
		}
	}

	if err := scanner.Err(); err != nil {
		l.mu.Lock()
		stillOpen := l.open
		handler := l.errorHandler
		l.mu.Unlock()

		if stillOpen && handler != nil {
			handler(fmt.Errorf("local recognizer output read failed: %w", err))
		}
	}
}

// Send streams a PCM chunk to the recognizer's stdin
func (l *LocalExecTransport) Send(chunk []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open || l.stdin == nil {
		return ErrNotOpen
	}

	if _, err := l.stdin.Write(chunk); err != nil {
		return fmt.Errorf("failed to write audio to local recognizer: %w", err)
	}
	return nil
}

// Close signals end of audio and waits for the process to exit.
// Safe to call twice.
func (l *LocalExecTransport) Close() error {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return nil
	}
	l.open = false
	stdin := l.stdin
	cmd := l.cmd
	cancel := l.cancel
	readDone := l.readDone
	l.stdin = nil
	l.cmd = nil
	l.cancel = nil
	l.readDone = nil
	l.mu.Unlock()

	// Closing stdin tells a well-behaved recognizer to flush and exit
	if stdin != nil {
		_ = stdin.Close()
	}

	// Wait must not run while the read loop still owns the stdout pipe, or
	// a final flushed result can be lost when Wait closes it
	if readDone != nil {
		<-readDone
	}

	var err error
	if cmd != nil {
		err = cmd.Wait()
	}
	if cancel != nil {
		cancel()
	}

	if err != nil {
		l.logger.Warn().Err(err).Msg("local recognizer process exited with error")
		return fmt.Errorf("local recognizer exit: %w", err)
	}
	l.logger.Info().Msg("local recognizer process stopped")
	return nil
}
