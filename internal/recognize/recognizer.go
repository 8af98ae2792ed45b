// Package recognize orchestrates speech recognition jobs. A job takes one
// media file through audio extraction and transcription by one of two
// interchangeable backends, in-process model inference or a remote HTTP
// API, with at most one automatic fallback hop between them. At most one
// job runs at a time; a second submission is rejected, never queued.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/enplayer/sr-engine/internal/extract"
	"github.com/enplayer/sr-engine/internal/metrics"
	"github.com/enplayer/sr-engine/internal/settings"
	"github.com/enplayer/sr-engine/internal/subtitle"
	"github.com/enplayer/sr-engine/internal/wavio"
	"github.com/enplayer/sr-engine/internal/whispercpp"
)

const (
	defaultStopWait = 2 * time.Second
	closeWait       = 5 * time.Second

	// Progress checkpoints. Local inference reports its own percentage,
	// mapped onto the span between recognizing and done.
	progressExtracted   = 20
	progressRecognizing = 30
	progressRemoteSent  = 40
	localProgressSpan   = 69
)

// Callbacks receive job lifecycle notifications. All fields are optional.
// They run on the worker goroutine and must not block; anything slow
// belongs behind a buffered channel.
type Callbacks struct {
	OnState    func(jobID string, state State)
	OnProgress func(jobID string, pct int)
	OnFinished func(jobID string, text, subtitlePath string)
	OnError    func(jobID string, cat Category, msg string)
}

// Extractor is the slice of internal/extract the orchestrator needs.
type Extractor interface {
	Extract(ctx context.Context, mediaPath string, sink extract.Sink) (*extract.Result, error)
	SetCommand(command string) error
}

// Options configures a Recognizer.
type Options struct {
	Settings  *settings.Manager
	Extractor Extractor
	Callbacks Callbacks
	// StopWait bounds how long Stop waits for the worker to wind down
	// before abandoning it. Zero means 2s.
	StopWait time.Duration
	Log      zerolog.Logger
}

// Recognizer runs recognition jobs. All methods are safe for concurrent
// use.
type Recognizer struct {
	log       zerolog.Logger
	settings  *settings.Manager
	extractor Extractor
	cb        Callbacks
	stopWait  time.Duration

	// newEngine is swapped in tests.
	newEngine func(modelPath string) (whispercpp.Engine, error)

	jobSeq atomic.Uint64

	mu           sync.Mutex
	engine       whispercpp.Engine
	modelPath    string
	pendingModel *string
	cur          *job
	last         *JobSnapshot
	closed       bool
}

// New creates a Recognizer. Call Initialize to load the local model; until
// then only the remote backend can serve jobs.
func New(opts Options) *Recognizer {
	r := &Recognizer{
		log:       opts.Log.With().Str("component", "recognizer").Logger(),
		settings:  opts.Settings,
		extractor: opts.Extractor,
		cb:        opts.Callbacks,
		stopWait:  opts.StopWait,
		newEngine: whispercpp.New,
	}
	if r.stopWait <= 0 {
		r.stopWait = defaultStopWait
	}
	return r
}

// Initialize loads the local speech model. A non-empty modelOverride wins
// over the configured model path. Returns whether the local backend is
// ready; the remote backend needs no initialization.
func (r *Recognizer) Initialize(modelOverride string) bool {
	path := modelOverride
	if path == "" {
		path = r.settings.Current().ModelPath
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		p := path
		r.pendingModel = &p
		r.log.Info().Str("model", p).Msg("model load deferred until current job ends")
		return false
	}
	r.reloadModelLocked(path)
	return r.engine != nil
}

// LocalReady reports whether the local model is loaded.
func (r *Recognizer) LocalReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine != nil
}

// Busy reports whether a job is in flight.
func (r *Recognizer) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Current returns a snapshot of the in-flight job, or of the last finished
// one, or nil when nothing has run yet.
func (r *Recognizer) Current() *JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		s := r.cur.snapshot()
		return &s
	}
	if r.last != nil {
		s := *r.last
		return &s
	}
	return nil
}

// ApplySettings reacts to a profile change. The decoder command takes
// effect immediately; a model change waits for any in-flight job to end
// before the engine handle is swapped.
func (r *Recognizer) ApplySettings(s settings.Settings) {
	if err := r.extractor.SetCommand(s.DecoderCommand); err != nil {
		r.log.Warn().Err(err).Msg("ignoring invalid decoder command")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch {
	case s.ModelPath == r.modelPath && r.pendingModel == nil:
		// model unchanged
	case r.cur != nil:
		p := s.ModelPath
		r.pendingModel = &p
		r.log.Info().Str("model", p).Msg("model change deferred until current job ends")
	default:
		r.pendingModel = nil
		r.reloadModelLocked(s.ModelPath)
	}
}

// reloadModelLocked swaps the engine handle. Callers hold r.mu and must
// ensure no worker is using the old handle.
func (r *Recognizer) reloadModelLocked(path string) {
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.modelPath = path
	if path == "" {
		r.log.Info().Msg("no local model configured, local backend disabled")
		return
	}
	eng, err := r.newEngine(path)
	if err != nil {
		r.log.Warn().Err(err).Str("model", path).Msg("failed to load local model")
		return
	}
	r.engine = eng
	r.log.Info().Str("model", path).Msg("local model loaded")
}

// RecognizeFile starts recognition of an audio file and returns the job ID.
// A job already in flight means ErrBusy; the running job is untouched.
func (r *Recognizer) RecognizeFile(path string) (string, error) {
	return r.start(path, false, "")
}

// RecognizeFromVideo starts recognition of a video file, extracting its
// audio track first. An empty audioOutput extracts into a scratch WAV that
// is deleted when the job ends; a non-empty one names a file to extract
// into and keep.
func (r *Recognizer) RecognizeFromVideo(path, audioOutput string) (string, error) {
	return r.start(path, true, audioOutput)
}

func (r *Recognizer) start(input string, video bool, audioOut string) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	if r.cur != nil {
		r.mu.Unlock()
		return "", ErrBusy
	}
	r.mu.Unlock()

	id := r.nextJobID()
	if rerr := validateInput(input); rerr != nil {
		r.reject(id, rerr)
		return id, rerr
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:       id,
		input:    input,
		video:    video,
		audioOut: audioOut,
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
		state:    StateIdle,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return "", ErrClosed
	}
	if r.cur != nil {
		r.mu.Unlock()
		cancel()
		return "", ErrBusy
	}
	snap := r.settings.Current()
	engine := r.engine
	if engine == nil && snap.APIURL == "" {
		r.mu.Unlock()
		cancel()
		rerr := newError(CategoryBackendUnavailable, "no recognition backend is configured", nil)
		r.reject(id, rerr)
		return id, rerr
	}
	r.cur = j
	r.mu.Unlock()

	r.log.Info().
		Str("job_id", id).
		Str("input", input).
		Bool("video", video).
		Bool("prefer_remote", snap.PreferRemote).
		Msg("recognition job started")

	go r.runJob(j, engine, snap)
	return id, nil
}

func validateInput(path string) *Error {
	if strings.TrimSpace(path) == "" {
		return newError(CategoryInvalidInput, "empty media path", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return newError(CategoryInvalidInput, fmt.Sprintf("media file not accessible: %v", err), nil)
	}
	if info.IsDir() {
		return newError(CategoryInvalidInput, "media path is a directory", nil)
	}
	return nil
}

// reject reports a submission that never became a job. The error event
// carries the would-be job ID so clients can correlate it.
func (r *Recognizer) reject(id string, rerr *Error) {
	metrics.JobsTotal.WithLabelValues("rejected").Inc()
	r.log.Warn().Str("job_id", id).Str("category", string(rerr.Category)).Msg(rerr.Message)
	if r.cb.OnError != nil {
		r.cb.OnError(id, rerr.Category, rerr.Message)
	}
}

func (r *Recognizer) nextJobID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), r.jobSeq.Add(1))
}

func (r *Recognizer) runJob(j *job, engine whispercpp.Engine, snap settings.Settings) {
	defer close(j.doneCh)
	defer r.finishJob(j)

	// 1. Extract audio. Video inputs always go through the decoder; audio
	// inputs reach the backends as-is.
	r.setState(j, StateExtracting)
	r.emitProgress(j, 0)

	audioPath := j.input
	if j.video {
		start := time.Now()
		res, err := r.extractor.Extract(j.ctx, j.input, extract.ToFile(j.audioOut))
		if err != nil {
			if j.ctx.Err() != nil {
				r.markCancelled(j)
				return
			}
			r.finishError(j, classifyExtract(err))
			return
		}
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
		if j.audioOut == "" {
			j.mu.Lock()
			j.tempWav = res.Path
			j.mu.Unlock()
		}
		audioPath = res.Path
	}
	r.setProgress(j, progressExtracted)

	if j.ctx.Err() != nil {
		r.markCancelled(j)
		return
	}

	// 2. Build the attempt order from the settings snapshot taken at
	// submission; mid-job settings changes affect only later jobs.
	r.setState(j, StateRecognizing)
	r.setProgress(j, progressRecognizing)

	backends := r.backendsFor(j, engine, snap)
	req := Request{
		AudioPath:  audioPath,
		SampleRate: wavio.SampleRate,
		Language:   snap.Language,
		ModelSize:  snap.ModelSize,
	}

	// 3. Try each backend, falling back at most once.
	var lastErr *Error
	for i, b := range backends {
		if j.ctx.Err() != nil {
			r.markCancelled(j)
			return
		}
		if i > 0 {
			metrics.BackendFallbacksTotal.Inc()
			r.log.Warn().
				Str("job_id", j.id).
				Str("backend", b.Name()).
				Msg("falling back to secondary backend")
		}
		if b.Name() == backendRemote {
			r.setProgress(j, progressRemoteSent)
		}

		res, err := b.Transcribe(j.ctx, req)
		if err == nil {
			metrics.BackendAttemptsTotal.WithLabelValues(b.Name(), "ok").Inc()
			r.finishSuccess(j, b.Name(), res, snap)
			return
		}
		if j.ctx.Err() != nil {
			r.markCancelled(j)
			return
		}
		metrics.BackendAttemptsTotal.WithLabelValues(b.Name(), "error").Inc()
		lastErr = asError(err, b.Name())
		r.log.Warn().
			Str("job_id", j.id).
			Str("backend", b.Name()).
			Str("category", string(lastErr.Category)).
			Err(err).
			Msg("backend attempt failed")
	}

	// 4. Nothing left to try.
	r.finishError(j, lastErr)
}

// backendsFor builds per-job backend instances from the settings snapshot,
// preferred one first.
func (r *Recognizer) backendsFor(j *job, engine whispercpp.Engine, snap settings.Settings) []Backend {
	var local, remote Backend
	if engine != nil {
		local = &localBackend{
			engine: engine,
			decode: r.decodeSamples,
			progress: func(pct int) {
				r.setProgress(j, progressRecognizing+pct*localProgressSpan/100)
			},
			log: r.log,
		}
	}
	if snap.APIURL != "" {
		remote = newRemoteBackend(snap.APIURL, time.Duration(snap.APITimeoutSeconds)*time.Second)
	}

	var out []Backend
	first, second := local, remote
	if snap.PreferRemote {
		first, second = remote, local
	}
	if first != nil {
		out = append(out, first)
	}
	if second != nil {
		out = append(out, second)
	}
	return out
}

// decodeSamples turns an audio file into mono 16 kHz samples. Strict WAV
// reading covers our own extraction output; anything else goes through the
// decoder's raw float pipe.
func (r *Recognizer) decodeSamples(ctx context.Context, path string) ([]float32, error) {
	samples, _, err := wavio.ReadFile(path)
	if err == nil {
		r.log.Debug().Str("path", path).Dur("audio", wavio.Duration(len(samples), wavio.SampleRate)).Msg("decoded WAV")
		return samples, nil
	}
	r.log.Debug().Err(err).Str("path", path).Msg("not plain 16k WAV, using decoder pipe")

	res, exErr := r.extractor.Extract(ctx, path, extract.ToBuffer())
	if exErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("wav read: %v; decoder pipe: %w", err, exErr)
	}
	r.log.Debug().Str("path", path).Dur("audio", wavio.Duration(len(res.Samples), wavio.SampleRate)).Msg("decoded via pipe")
	return res.Samples, nil
}

func (r *Recognizer) finishSuccess(j *job, backend string, res *Result, snap settings.Settings) {
	subPath := r.exportSubtitle(j, res, snap)

	j.mu.Lock()
	if j.state == StateCompleted || j.state == StateFailed {
		j.mu.Unlock()
		return
	}
	j.state = StateCompleted
	j.text = res.Text
	j.subPath = subPath
	j.finished = time.Now()
	j.mu.Unlock()

	r.setProgress(j, 100)

	j.terminal.Do(func() {
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		metrics.JobDuration.Observe(time.Since(j.started).Seconds())
		r.log.Info().
			Str("job_id", j.id).
			Str("backend", backend).
			Int("chars", len(res.Text)).
			Dur("elapsed", time.Since(j.started)).
			Msg("recognition finished")
		j.deliver(func() {
			if r.cb.OnState != nil {
				r.cb.OnState(j.id, StateCompleted)
			}
			if r.cb.OnFinished != nil {
				r.cb.OnFinished(j.id, res.Text, subPath)
			}
		})
	})
}

func (r *Recognizer) finishError(j *job, rerr *Error) {
	if rerr == nil {
		rerr = newError(CategoryBackendUnavailable, "no recognition backend produced a result", nil)
	}

	j.mu.Lock()
	if j.state == StateCompleted || j.state == StateFailed {
		j.mu.Unlock()
		return
	}
	j.state = StateFailed
	j.errCat = rerr.Category
	j.errMsg = rerr.Message
	j.finished = time.Now()
	j.mu.Unlock()

	j.terminal.Do(func() {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		r.log.Error().
			Str("job_id", j.id).
			Str("category", string(rerr.Category)).
			Err(rerr.Err).
			Msg(rerr.Message)
		j.deliver(func() {
			if r.cb.OnState != nil {
				r.cb.OnState(j.id, StateFailed)
			}
			if r.cb.OnError != nil {
				r.cb.OnError(j.id, rerr.Category, rerr.Message)
			}
		})
	})
}

// markCancelled moves a non-terminal job to Failed with the cancelled
// category. Both the worker and Stop may call it; the terminal once keeps
// the event single.
func (r *Recognizer) markCancelled(j *job) {
	j.mu.Lock()
	if j.state == StateCompleted || j.state == StateFailed {
		j.mu.Unlock()
		return
	}
	j.state = StateFailed
	j.errCat = CategoryCancelled
	j.errMsg = "stopped by request"
	j.finished = time.Now()
	j.mu.Unlock()

	j.terminal.Do(func() {
		metrics.JobsTotal.WithLabelValues("cancelled").Inc()
		r.log.Info().Str("job_id", j.id).Msg("recognition cancelled")
		j.deliver(func() {
			if r.cb.OnState != nil {
				r.cb.OnState(j.id, StateFailed)
			}
			if r.cb.OnError != nil {
				r.cb.OnError(j.id, CategoryCancelled, "stopped by request")
			}
		})
	})
}

func (r *Recognizer) exportSubtitle(j *job, res *Result, snap settings.Settings) string {
	if snap.SubtitleDir == "" {
		return ""
	}
	if strings.TrimSpace(res.Text) == "" && len(res.Segments) == 0 {
		return ""
	}

	cues := make([]subtitle.Cue, len(res.Segments))
	for i, s := range res.Segments {
		cues[i] = subtitle.Cue{Start: s.Start, End: s.End, Text: s.Text}
	}
	exp := subtitle.Exporter{Dir: snap.SubtitleDir}
	path, err := exp.Export(j.input, res.Text, cues)
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", j.id).Msg("subtitle export failed")
		return ""
	}
	r.log.Info().Str("job_id", j.id).Str("path", path).Msg("transcript exported")
	return path
}

// finishJob runs when the worker exits. It removes the scratch WAV and,
// when the slot is still this job's, records the final snapshot and applies
// any deferred model change.
func (r *Recognizer) finishJob(j *job) {
	r.removeTemp(j)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != j {
		return
	}
	r.cur = nil
	snap := j.snapshot()
	r.last = &snap
	if r.pendingModel != nil && !r.closed {
		path := *r.pendingModel
		r.pendingModel = nil
		r.reloadModelLocked(path)
	}
}

func (r *Recognizer) removeTemp(j *job) {
	j.mu.Lock()
	temp := j.tempWav
	j.tempWav = ""
	j.mu.Unlock()
	if temp == "" {
		return
	}
	if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
		r.log.Warn().Err(err).Str("path", temp).Msg("failed to remove temp audio")
		return
	}
	r.log.Debug().Str("path", temp).Msg("removed temp audio")
}

// Stop cancels the in-flight job, if any. It waits up to StopWait for the
// worker to wind down; a worker stuck past that, typically deep in native
// inference, is silenced and its slot freed. After Stop returns no further
// events for the job are delivered.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	j := r.cur
	r.mu.Unlock()
	if j == nil {
		return
	}

	r.log.Info().Str("job_id", j.id).Msg("stop requested")
	j.cancel()

	select {
	case <-j.doneCh:
		// Worker emitted its terminal event and released the slot.
		return
	case <-time.After(r.stopWait):
	}

	r.log.Warn().
		Str("job_id", j.id).
		Dur("waited", r.stopWait).
		Msg("worker did not stop in time, abandoning it")

	r.markCancelled(j)
	j.abandon()
	r.removeTemp(j)

	r.mu.Lock()
	if r.cur == j {
		r.cur = nil
		snap := j.snapshot()
		r.last = &snap
	}
	r.mu.Unlock()
}

// Close stops any in-flight job and releases the model handle. No new jobs
// are accepted afterwards.
func (r *Recognizer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	j := r.cur
	r.mu.Unlock()

	if j != nil {
		r.Stop()
		select {
		case <-j.doneCh:
		case <-time.After(closeWait):
			// Closing the model under a running worker would crash; the
			// handle is left for process exit to reclaim.
			r.log.Warn().Str("job_id", j.id).Msg("worker still running at close, model handle left open")
			return
		}
	}

	r.mu.Lock()
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.mu.Unlock()
}

func (r *Recognizer) setState(j *job, st State) {
	j.mu.Lock()
	j.state = st
	j.mu.Unlock()
	j.deliver(func() {
		if r.cb.OnState != nil {
			r.cb.OnState(j.id, st)
		}
	})
}

// setProgress raises the job's progress. Regressions are dropped so the
// reported value is monotonic even across a backend fallback.
func (r *Recognizer) setProgress(j *job, pct int) {
	if pct > 100 {
		pct = 100
	}
	j.mu.Lock()
	if pct <= j.progress {
		j.mu.Unlock()
		return
	}
	j.progress = pct
	j.mu.Unlock()
	r.emitProgress(j, pct)
}

func (r *Recognizer) emitProgress(j *job, pct int) {
	j.deliver(func() {
		if r.cb.OnProgress != nil {
			r.cb.OnProgress(j.id, pct)
		}
	})
}

func classifyExtract(err error) *Error {
	switch {
	case errors.Is(err, extract.ErrToolMissing):
		return newError(CategoryExtractionToolMissing, "audio decoder is not installed", err)
	case errors.Is(err, extract.ErrTimeout):
		return newError(CategoryExtractionTimeout, "audio extraction timed out", err)
	default:
		return newError(CategoryExtractionFailed, "audio extraction failed", err)
	}
}

// asError coerces a backend failure into a classified Error.
func asError(err error, backend string) *Error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	cat := CategoryLocalInference
	if backend == backendRemote {
		cat = CategoryRemoteTransport
	}
	return newError(cat, err.Error(), err)
}
