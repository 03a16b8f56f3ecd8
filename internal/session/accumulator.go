package session

import (
	"strings"
	"sync"
)

// TranscriptAccumulator merges the ordered result sequence into two derived
// text views: the stable finalized record and a volatile display string that
// includes a trailing interim result.
type TranscriptAccumulator struct {
	mu          sync.Mutex
	results     []TranscriptionResult
	finalText   string
	displayText string
}

// NewTranscriptAccumulator creates an empty accumulator
func NewTranscriptAccumulator() *TranscriptAccumulator {
	return &TranscriptAccumulator{}
}

// AddResult appends one result and recomputes both views. Recomputation is
// O(n) per call, which is fine for session-bounded result counts.
func (a *TranscriptAccumulator) AddResult(r TranscriptionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, r)
	a.recompute()
}

func (a *TranscriptAccumulator) recompute() {
	finals := make([]string, 0, len(a.results))
	for _, r := range a.results {
		if r.IsFinal {
			finals = append(finals, r.Text)
		}
	}
	a.finalText = strings.TrimSpace(strings.Join(finals, " "))

	a.displayText = a.finalText
	if n := len(a.results); n > 0 && !a.results[n-1].IsFinal {
		if a.finalText == "" {
			a.displayText = a.results[n-1].Text
		} else {
			a.displayText = a.finalText + " " + a.results[n-1].Text
		}
	}
}

// Clear empties the sequence and both views; used on reset, not on
// normal finalization.
func (a *TranscriptAccumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = nil
	a.finalText = ""
	a.displayText = ""
}

// FinalText returns the space-joined text of all finalized results, trimmed
func (a *TranscriptAccumulator) FinalText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalText
}

// DisplayText returns FinalText plus the most recent interim result, if the
// most recently arrived result is interim
func (a *TranscriptAccumulator) DisplayText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayText
}

// Results returns a copy of the accumulated result sequence in arrival order
func (a *TranscriptAccumulator) Results() []TranscriptionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]TranscriptionResult, len(a.results))
	copy(out, a.results)
	return out
}

// Len returns the number of accumulated results
func (a *TranscriptAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}
