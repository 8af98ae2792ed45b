//go:build whisper

package whispercpp

import (
	"fmt"
	"runtime"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type engine struct {
	model whisper.Model
}

// New loads a ggml model from disk.
func New(modelPath string) (Engine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &engine{model: model}, nil
}

func (e *engine) Transcribe(samples []float32, opts Options) (*Transcription, error) {
	ctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads > 8 {
		threads = 8
	}
	ctx.SetThreads(uint(threads))

	if lang := strings.TrimSpace(opts.Language); lang != "" {
		if err := ctx.SetLanguage(lang); err != nil {
			return nil, fmt.Errorf("set language %q: %w", lang, err)
		}
	}

	var encoderBegin whisper.EncoderBeginCallback
	if opts.EncoderBegin != nil {
		encoderBegin = opts.EncoderBegin
	}
	var progress whisper.ProgressCallback
	if opts.Progress != nil {
		progress = opts.Progress
	}

	if err := ctx.Process(samples, encoderBegin, nil, progress); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	var (
		b        strings.Builder
		segments []Segment
	)
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		segments = append(segments, Segment{Start: seg.Start, End: seg.End, Text: text})
	}

	return &Transcription{Text: b.String(), Segments: segments}, nil
}

func (e *engine) Close() error {
	return e.model.Close()
}
