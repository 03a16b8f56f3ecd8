// Package transport contains the pluggable STT backend adapters. Each
// adapter encapsulates one backend's wire protocol and session handshake
// behind a common streaming interface.
package transport

import (
	"context"
	"errors"
)

// Event is one recognition event delivered by a backend
type Event struct {
	// Text is the recognized fragment; may be empty for housekeeping
	// events, which consumers discard
	Text string

	// IsFinal marks a committed, non-revisable utterance
	IsFinal bool

	// Confidence is the backend-reported score in [0,1]; 0 when the
	// backend does not report one
	Confidence float64

	// OffsetSec and DurationSec locate this event within the audio
	// stream as reported by the backend; valid only when HasTiming is true
	OffsetSec   float64
	DurationSec float64
	HasTiming   bool
}

// EventHandler receives recognition events from a transport
type EventHandler func(Event)

// ErrorHandler receives mid-stream transport failures (socket drops,
// protocol errors after a successful open)
type ErrorHandler func(error)

var (
	// ErrAlreadyOpen is returned by Open on a transport that is already connected
	ErrAlreadyOpen = errors.New("transport is already open")

	// ErrNotOpen is returned by Send before a successful Open or after Close
	ErrNotOpen = errors.New("transport is not open")

	// ErrNotConfigured is returned by Open when the backend has no usable configuration
	ErrNotConfigured = errors.New("transport is not configured")
)

// Transport is the contract each STT backend adapter implements.
//
// OnEvent and OnError register the sole subscribers and must be called
// before Open. Send is only valid between a successful Open and Close.
// Close is idempotent and also usable to force-terminate a failed transport.
type Transport interface {
	// Name identifies the backend for logging and metrics
	Name() string

	// Open establishes the backend session. The context bounds the
	// handshake; expiry is reported as an error like any other open failure.
	Open(ctx context.Context, language string) error

	// Send submits one audio chunk
	Send(chunk []byte) error

	// OnEvent registers the recognition-event subscriber
	OnEvent(handler EventHandler)

	// OnError registers the mid-stream error subscriber
	OnError(handler ErrorHandler)

	// Close shuts the session down gracefully
	Close() error
}
