package audio

// ActivityConfig holds configuration for speech activity detection
type ActivityConfig struct {
	RMSThreshold float64 // RMS energy threshold for PCM speech detection
	ByteFraction float64 // Fraction of loud bytes for encoded speech detection
	LoudByte     byte    // Unsigned byte value above which an encoded byte counts as loud
}

// DefaultActivityConfig returns a default activity detection configuration
func DefaultActivityConfig() *ActivityConfig {
	return &ActivityConfig{
		RMSThreshold: 500.0, // Tuned for normalized 16-bit PCM
		ByteFraction: 0.10,
		LoudByte:     10,
	}
}

// ActivityDetector decides whether an audio chunk contains speech energy.
// It is stateless and safe for concurrent use.
type ActivityDetector struct {
	config *ActivityConfig
}

// NewActivityDetector creates a new activity detector
func NewActivityDetector(config *ActivityConfig) *ActivityDetector {
	if config == nil {
		config = DefaultActivityConfig()
	}
	return &ActivityDetector{config: config}
}

// Detect reports whether chunk contains speech energy. When isPCM is true the
// chunk is interpreted as 16-bit signed little-endian PCM and its RMS is
// compared against the threshold; otherwise the chunk is treated as an opaque
// encoded byte stream and the fraction of loud bytes is compared instead.
//
// Empty chunks report no activity. A chunk asserted as PCM but with an odd
// byte length cannot be framed into samples; it reports activity so an
// utterance start is never silently lost.
func (d *ActivityDetector) Detect(chunk []byte, isPCM bool) bool {
	if len(chunk) == 0 {
		return false
	}

	if isPCM {
		if len(chunk)%2 != 0 {
			// Corrupt framing, assume speech rather than dropping the boundary
			return true
		}
		samples := DecodePCM16(chunk)
		return CalculateRMS(samples) > d.config.RMSThreshold
	}

	loud := 0
	for _, b := range chunk {
		if b > d.config.LoudByte {
			loud++
		}
	}
	return float64(loud)/float64(len(chunk)) > d.config.ByteFraction
}
