package recognize

import (
	"context"
	"time"
)

// Request carries one transcription attempt's input. AudioPath always names
// a readable audio file; Samples, when set, holds its decoded mono PCM so a
// backend that consumes memory buffers can skip decoding.
type Request struct {
	AudioPath  string
	Samples    []float32
	SampleRate int
	Language   string
	ModelSize  string
}

// Segment is a timed span of recognized text.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result is a completed transcription. Segments are present only when the
// backend produces timings.
type Result struct {
	Text     string
	Segments []Segment
}

// Backend turns audio into text. Implementations classify their failures as
// *Error so the orchestrator can report them and decide on fallback, and
// return the context error unchanged when the attempt was cancelled.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

const (
	backendLocal  = "local"
	backendRemote = "remote"
)
