// Package whispercpp wraps the whisper.cpp Go bindings behind a small Engine
// interface. The real implementation requires cgo and the `whisper` build tag;
// without the tag, New fails with ErrNotBuilt and the caller falls back to the
// remote recognition path.
package whispercpp

import (
	"errors"
	"time"
)

// ErrNotBuilt is returned by New when the binary was compiled without the
// `whisper` build tag.
var ErrNotBuilt = errors.New("whispercpp: built without whisper support")

// Options control a single transcription pass.
type Options struct {
	// Language is a two-letter code, or "auto" for detection.
	Language string
	// Threads caps decoder parallelism. Zero picks a default capped at 8.
	Threads int
	// Progress, when set, receives coarse progress in percent (0..100).
	Progress func(pct int)
	// EncoderBegin, when set, is polled before each encoder window.
	// Returning false aborts the pass.
	EncoderBegin func() bool
}

// Segment is one timed span of recognized speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcription is the result of one pass over a sample buffer.
type Transcription struct {
	Text     string
	Segments []Segment
}

// Engine runs speech recognition over 16 kHz mono float32 samples.
// Transcribe must not be called concurrently; the orchestrator serializes
// jobs, so a single engine instance is reused across them.
type Engine interface {
	Transcribe(samples []float32, opts Options) (*Transcription, error)
	Close() error
}
