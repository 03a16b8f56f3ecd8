package audio

import (
	"math"
	"testing"
)

func float32Bytes(values ...float32) []byte {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		bits := math.Float32bits(v)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func TestDecodePCM16(t *testing.T) {
	// 0x0102 little-endian, then -1 (0xFFFF)
	data := []byte{0x02, 0x01, 0xFF, 0xFF}
	samples := DecodePCM16(data)

	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 0x0102 {
		t.Errorf("Expected sample 0x0102, got 0x%04X", samples[0])
	}
	if samples[1] != -1 {
		t.Errorf("Expected sample -1, got %d", samples[1])
	}
}

func TestEncodePCM16_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	decoded := DecodePCM16(EncodePCM16(samples))

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestConvertFloat32ToPCM16(t *testing.T) {
	data := float32Bytes(0.0, 1.0, -1.0, 0.5)

	pcm, err := ConvertFloat32ToPCM16(data)
	if err != nil {
		t.Fatalf("ConvertFloat32ToPCM16 failed: %v", err)
	}

	samples := DecodePCM16(pcm)
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}

	if samples[0] != 0 {
		t.Errorf("Expected 0.0 to map to 0, got %d", samples[0])
	}
	if samples[1] != 32767 {
		t.Errorf("Expected 1.0 to map to 32767, got %d", samples[1])
	}
	if samples[2] != -32768 {
		t.Errorf("Expected -1.0 to map to -32768, got %d", samples[2])
	}
	if samples[3] < 16000 || samples[3] > 16500 {
		t.Errorf("Expected 0.5 to map near 16383, got %d", samples[3])
	}
}

func TestConvertFloat32ToPCM16_Clipping(t *testing.T) {
	data := float32Bytes(2.5, -3.0)

	pcm, err := ConvertFloat32ToPCM16(data)
	if err != nil {
		t.Fatalf("ConvertFloat32ToPCM16 failed: %v", err)
	}

	samples := DecodePCM16(pcm)
	if samples[0] != 32767 {
		t.Errorf("Expected out-of-range positive to clip to 32767, got %d", samples[0])
	}
	if samples[1] != -32768 {
		t.Errorf("Expected out-of-range negative to clip to -32768, got %d", samples[1])
	}
}

func TestConvertFloat32ToPCM16_Invalid(t *testing.T) {
	if _, err := ConvertFloat32ToPCM16(nil); err == nil {
		t.Error("Expected error for empty input")
	}
	if _, err := ConvertFloat32ToPCM16([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for misaligned input")
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	out := Resample(samples, 16000, 16000)
	if len(out) != len(samples) {
		t.Errorf("Expected unchanged length, got %d", len(out))
	}
}

func TestResample_Downsample(t *testing.T) {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	out := Resample(samples, 16000, 8000)
	if len(out) != 80 {
		t.Errorf("Expected 80 samples after 2:1 downsample, got %d", len(out))
	}
}

func TestResample_Upsample(t *testing.T) {
	samples := []int16{0, 100, 200, 300}
	out := Resample(samples, 8000, 16000)
	if len(out) != 8 {
		t.Errorf("Expected 8 samples after 1:2 upsample, got %d", len(out))
	}
}

func TestPCM16DurationSeconds(t *testing.T) {
	// 4096 samples at 16kHz = 0.256s; 8192 bytes = 4096 samples
	d := PCM16DurationSeconds(8192, 16000)
	if math.Abs(d-0.256) > 1e-9 {
		t.Errorf("Expected 0.256s, got %f", d)
	}

	if PCM16DurationSeconds(100, 0) != 0 {
		t.Error("Expected 0 duration for zero sample rate")
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	// Expected RMS: sqrt((1000^2 + 1000^2 + 2000^2 + 2000^2) / 4)
	expected := 1581.14
	tolerance := 1.0

	if rms < expected-tolerance || rms > expected+tolerance {
		t.Errorf("Expected RMS around %.2f, got %.2f", expected, rms)
	}
}

func TestCalculateRMS_Empty(t *testing.T) {
	if CalculateRMS(nil) != 0.0 {
		t.Error("Expected RMS 0 for empty samples")
	}
}
