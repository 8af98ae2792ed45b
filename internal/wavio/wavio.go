// Package wavio loads recognition input audio into normalized float32 sample
// buffers. It only accepts the engine's fixed input format (16 kHz mono 16-bit
// PCM); anything else is rejected with ErrFormat so the caller can route the
// file through a decoder pass instead.
package wavio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Fixed recognition input format.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// ErrFormat reports a WAV that decoded fine but does not match the
// recognition input format.
var ErrFormat = errors.New("not 16 kHz mono 16-bit PCM")

// ReadFile decodes a WAV file into float32 samples in [-1, 1].
func ReadFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.SampleRate != SampleRate || dec.NumChans != Channels || dec.BitDepth != BitDepth {
		return nil, 0, fmt.Errorf("%w (got %d Hz, %d ch, %d bit)",
			ErrFormat, dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, SampleRate, nil
}

// FromF32LE reinterprets raw little-endian 32-bit float PCM as samples.
// A trailing partial frame is dropped.
func FromF32LE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Duration reports the playing time of n samples at the given rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}
