package session

import (
	"sync"
)

// AudioCursor is a monotonic clock measuring total audio-seconds handed to a
// transport, independent of wall-clock drift from buffering or jitter.
type AudioCursor struct {
	mu      sync.Mutex
	seconds float64
}

// Reset sets the cumulative total back to zero; called at session start
func (c *AudioCursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds = 0
}

// Advance adds durationSeconds to the cumulative total; called once per
// audio chunk submitted to the transport. Negative durations are ignored
// to keep the cursor monotonic.
func (c *AudioCursor) Advance(durationSeconds float64) {
	if durationSeconds < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds += durationSeconds
}

// Current returns the cumulative total in seconds
func (c *AudioCursor) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seconds
}

// UtteranceTimer tracks the wall-clock start of the current unresolved
// utterance for fallback latency computation.
//
// idle (start=0) -> armed on first detected activity -> idle on finalization.
type UtteranceTimer struct {
	mu      sync.Mutex
	startMs int64
}

// OnChunk arms the timer with now when activity is first detected while idle
func (t *UtteranceTimer) OnChunk(hasActivity bool, nowMs int64) {
	if !hasActivity {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startMs == 0 {
		t.startMs = nowMs
	}
}

// OnFinalResult returns the timer to idle, clearing the recorded start
func (t *UtteranceTimer) OnFinalResult() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startMs = 0
}

// StartTime returns the recorded utterance start in ms; 0 means no active
// utterance is being tracked.
func (t *UtteranceTimer) StartTime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startMs
}

// Reset is equivalent to OnFinalResult; named for session start clarity
func (t *UtteranceTimer) Reset() {
	t.OnFinalResult()
}

// submissionWindow keeps a bounded record of recent chunk submission times,
// used as the last-resort latency estimate when a recognition event carries
// no positional metadata and no utterance start was observed.
type submissionWindow struct {
	mu       sync.Mutex
	windowMs int64
	times    []int64
}

func newSubmissionWindow(windowMs int64) *submissionWindow {
	return &submissionWindow{windowMs: windowMs}
}

// Record notes one chunk submission and prunes entries older than the window
func (w *submissionWindow) Record(nowMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.times = append(w.times, nowMs)

	cutoff := nowMs - w.windowMs
	firstValid := 0
	for firstValid < len(w.times) && w.times[firstValid] < cutoff {
		firstValid++
	}
	if firstValid > 0 {
		w.times = append(w.times[:0], w.times[firstValid:]...)
	}
}

// Latest returns the most recent submission within the window relative to nowMs
func (w *submissionWindow) Latest(nowMs int64) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := len(w.times) - 1; i >= 0; i-- {
		if nowMs-w.times[i] <= w.windowMs {
			return w.times[i], true
		}
	}
	return 0, false
}

// Reset discards all recorded submissions
func (w *submissionWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = w.times[:0]
}
