package audio

import (
	"fmt"
	"math"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte, if any, is ignored; callers validating framing
// should check length parity first.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// EncodePCM16 converts samples to little-endian 16-bit PCM bytes
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// ConvertFloat32ToPCM16 converts 32-bit float PCM (little-endian, [-1,1])
// to 16-bit signed PCM bytes. Browser capture pipelines deliver float32
// frames; streaming STT backends expect linear16.
func ConvertFloat32ToPCM16(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty float32 PCM data")
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 PCM data length must be a multiple of 4, got %d", len(data))
	}

	samples := make([]int16, len(data)/4)
	for i := 0; i < len(samples); i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		f := float64(math.Float32frombits(bits))

		// Clip to [-1, 1] before scaling
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}

		if f < 0 {
			samples[i] = int16(f * 32768)
		} else {
			samples[i] = int16(f * 32767)
		}
	}

	return EncodePCM16(samples), nil
}

// Resample performs simple linear interpolation resampling.
// This is a basic implementation; sinc interpolation would be higher
// quality but is unnecessary for speech recognition input.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// PCM16DurationSeconds returns the duration represented by byteLen bytes of
// 16-bit mono PCM at the given sample rate
func PCM16DurationSeconds(byteLen, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(byteLen/2) / float64(sampleRate)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples.
// Useful for detecting audio levels and silence.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
