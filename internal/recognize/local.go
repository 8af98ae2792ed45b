package recognize

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/enplayer/sr-engine/internal/whispercpp"
)

// localBackend runs in-process inference over decoded PCM. Decoding is
// deferred until the attempt actually runs, so a job served by the remote
// backend never pays for it.
type localBackend struct {
	engine   whispercpp.Engine
	decode   func(ctx context.Context, path string) ([]float32, error)
	progress func(pct int)
	log      zerolog.Logger
}

func (b *localBackend) Name() string { return backendLocal }

func (b *localBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	samples := req.Samples
	if len(samples) == 0 {
		var err error
		samples, err = b.decode(ctx, req.AudioPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, newError(CategoryLocalInference, "failed to decode audio", err)
		}
	}
	if len(samples) == 0 {
		return nil, newError(CategoryLocalInference, "no audio samples decoded", nil)
	}

	tr, err := b.engine.Transcribe(samples, whispercpp.Options{
		Language: req.Language,
		Progress: b.progress,
		// Polled between encoder windows; returning false aborts the run.
		EncoderBegin: func() bool { return ctx.Err() == nil },
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(CategoryLocalInference, "speech model inference failed", err)
	}

	res := &Result{Text: tr.Text}
	if len(tr.Segments) > 0 {
		res.Segments = make([]Segment, len(tr.Segments))
		for i, s := range tr.Segments {
			res.Segments[i] = Segment{Start: s.Start, End: s.End, Text: s.Text}
		}
	}
	return res, nil
}
