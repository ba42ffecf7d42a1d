// Package audio provides helpers for the G.711 µ-law audio the carrier
// streams: payload decoding and frame level metering.
//
// The bridge forwards audio untouched; these helpers only observe it.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// Carrier stream format: 8 kHz mono µ-law in 20 ms frames.
const (
	SampleRate      = 8000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = 160
)

// DecodePayload decodes one base64 µ-law payload into 16-bit linear PCM
// samples.
func DecodePayload(payload string) ([]int16, error) {
	ulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("audio: decode payload: %w", err)
	}
	return Samples(g711.DecodeUlaw(ulaw)), nil
}

// Samples reinterprets little-endian 16-bit LPCM bytes as samples. A
// trailing odd byte is dropped.
func Samples(lpcm []byte) []int16 {
	samples := make([]int16, len(lpcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(lpcm[2*i:]))
	}
	return samples
}

// Level returns the peak amplitude of samples, normalized to [0, 1].
func Level(samples []int16) float64 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / 32768
}

// PayloadLevel meters one base64 µ-law payload.
func PayloadLevel(payload string) (float64, error) {
	samples, err := DecodePayload(payload)
	if err != nil {
		return 0, err
	}
	return Level(samples), nil
}
