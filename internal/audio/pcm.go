package audio

import (
	"encoding/base64"
	"fmt"
)

// Fixed audio format contract with the agent platform: raw little-endian
// signed 16-bit PCM, mono, 24000 Hz. Not negotiated; a mismatch is a
// configuration error.
const (
	SampleRate     = 24000
	BitDepth       = 16
	NumChannels    = 1
	bytesPerSample = 2
)

// DecodePCM16 decodes one base64 audio chunk into normalized float samples
// in [-1.0, 1.0). Chunks are not frame-aligned across network boundaries; a
// trailing unpaired byte is dropped.
func DecodePCM16(base64Content string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Content)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 audio chunk: %w", err)
	}

	n := len(raw) / bytesPerSample * bytesPerSample
	samples := make([]float32, 0, n/bytesPerSample)
	for i := 0; i < n; i += bytesPerSample {
		s := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		samples = append(samples, float32(s)/32768.0)
	}
	return samples, nil
}

// EncodePCM16 converts normalized float samples back to little-endian
// 16-bit PCM bytes, clamping out-of-range values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, f := range samples {
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		s := int16(f * 32767.0)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
