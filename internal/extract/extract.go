// Package extract turns arbitrary media files into the engine's recognition
// input format (mono 16 kHz PCM) by driving an external decoder, ffmpeg by
// default. One routine handles both output sinks: a 16-bit WAV on disk for
// file-based jobs, or 32-bit float samples captured from the decoder's stdout
// for in-memory decoding.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"github.com/enplayer/sr-engine/internal/wavio"
)

const (
	defaultCommand  = "ffmpeg"
	defaultBaseWait = 30 * time.Second
	defaultMaxWait  = 2 * time.Minute
	probeTimeout    = 2 * time.Second

	// tempSuffix marks scratch files owned by this package, for the sweeper.
	tempSuffix = "_16k.wav"

	// Outputs below this are logged as suspicious; some valid clips really
	// are this short, so it is not fatal.
	minOutputBytes = 1024

	// Completion deadline grows by one second per this many input bytes.
	sizeRateBytes = 10 << 20
)

var (
	// ErrToolMissing means the decoder binary is absent or unusable.
	ErrToolMissing = errors.New("decoder not found")
	// ErrTimeout means the decoder exceeded its completion deadline.
	ErrTimeout = errors.New("extraction timed out")
	// ErrFailed means the decoder exited non-zero or produced no output.
	ErrFailed = errors.New("extraction failed")
)

// Sink selects where extracted PCM goes.
type Sink struct {
	path   string
	buffer bool
}

// ToFile extracts into a 16-bit PCM WAV at path. An empty path generates a
// unique scratch path from the media base name.
func ToFile(path string) Sink { return Sink{path: path} }

// ToBuffer captures 32-bit float PCM from the decoder's stdout.
func ToBuffer() Sink { return Sink{buffer: true} }

// Path reports the requested output path, empty for buffer sinks and for
// file sinks that generate their own.
func (s Sink) Path() string { return s.path }

// Result is the outcome of one extraction pass. Path is set for file sinks,
// Samples for buffer sinks.
type Result struct {
	Path    string
	Samples []float32
	Size    int64
	Elapsed time.Duration
}

type commandResult struct {
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args []string, stdout io.Writer) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res, err
}

// Config configures an Extractor.
type Config struct {
	// Command is the decoder invocation, e.g. "ffmpeg" or
	// "ffmpeg -hwaccel auto". The first token is the binary; the rest are
	// prepended to every run. Empty means plain ffmpeg.
	Command string
	// TempDir receives generated scratch files. Empty means os.TempDir.
	TempDir string
	// BaseWait is the completion deadline for tiny inputs; the deadline
	// grows with input size up to MaxWait.
	BaseWait time.Duration
	MaxWait  time.Duration
	Log      zerolog.Logger
}

// Extractor runs the external decoder. Safe for concurrent use.
type Extractor struct {
	log      zerolog.Logger
	tempDir  string
	baseWait time.Duration
	maxWait  time.Duration
	run      commandRunner

	mu      sync.Mutex
	bin     string
	preArgs []string
	probed  map[string]error
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	bin, preArgs, err := parseCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		log:      cfg.Log,
		tempDir:  cfg.TempDir,
		baseWait: cfg.BaseWait,
		maxWait:  cfg.MaxWait,
		run:      execRunner{},
		bin:      bin,
		preArgs:  preArgs,
		probed:   make(map[string]error),
	}
	if e.tempDir == "" {
		e.tempDir = os.TempDir()
	}
	if e.baseWait <= 0 {
		e.baseWait = defaultBaseWait
	}
	if e.maxWait <= 0 {
		e.maxWait = defaultMaxWait
	}
	if e.maxWait < e.baseWait {
		e.maxWait = e.baseWait
	}
	return e, nil
}

// SetCommand replaces the decoder invocation, e.g. after a settings change.
func (e *Extractor) SetCommand(command string) error {
	bin, preArgs, err := parseCommand(command)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.bin, e.preArgs = bin, preArgs
	e.mu.Unlock()
	return nil
}

// Command reports the current decoder binary.
func (e *Extractor) Command() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bin
}

// TempDir reports the resolved scratch directory.
func (e *Extractor) TempDir() string {
	return e.tempDir
}

func parseCommand(command string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return defaultCommand, nil, nil
	}
	parts, err := shlex.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("invalid decoder command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("invalid decoder command %q", command)
	}
	return parts[0], parts[1:], nil
}

// Probe checks that the decoder is present and answers a -version call.
// The verdict is cached per binary; a decoder does not appear mid-flight.
func (e *Extractor) Probe(ctx context.Context) error {
	e.mu.Lock()
	bin := e.bin
	if err, ok := e.probed[bin]; ok {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	err := e.probeBinary(ctx, bin)

	e.mu.Lock()
	e.probed[bin] = err
	e.mu.Unlock()
	return err
}

func (e *Extractor) probeBinary(ctx context.Context, bin string) error {
	if _, err := e.run.LookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not in PATH", ErrToolMissing, bin)
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out bytes.Buffer
	if _, err := e.run.Run(ctx, bin, []string{"-version"}, &out); err != nil {
		return fmt.Errorf("%w: %s -version: %v", ErrToolMissing, bin, err)
	}
	if !strings.Contains(out.String(), "ffmpeg version") {
		return fmt.Errorf("%w: %s -version produced unexpected output", ErrToolMissing, bin)
	}
	return nil
}

// TempPath generates a collision-safe scratch path for mediaPath's audio.
func (e *Extractor) TempPath(mediaPath string) string {
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	base = sanitizeBase(base)
	if base == "" {
		base = "audio"
	}
	name := fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), tempSuffix)
	return filepath.Join(e.tempDir, name)
}

func sanitizeBase(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// deadlineFor scales the completion deadline with input size, capped at maxWait.
func (e *Extractor) deadlineFor(size int64) time.Duration {
	d := e.baseWait + time.Duration(size/sizeRateBytes)*time.Second
	if d > e.maxWait {
		return e.maxWait
	}
	return d
}

// Extract runs the decoder over mediaPath into the given sink.
// Caller cancellation is returned as the context error, distinct from the
// extraction error classes.
func (e *Extractor) Extract(ctx context.Context, mediaPath string, sink Sink) (*Result, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: input not readable: %v", ErrFailed, err)
	}

	e.mu.Lock()
	bin := e.bin
	preArgs := e.preArgs
	e.mu.Unlock()

	if _, err := e.run.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %s not in PATH", ErrToolMissing, bin)
	}

	outPath := sink.path
	if !sink.buffer && outPath == "" {
		outPath = e.TempPath(mediaPath)
	}
	args := buildArgs(preArgs, mediaPath, outPath, sink.buffer)

	wait := e.deadlineFor(info.Size())
	runCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var pcm bytes.Buffer
	var stdout io.Writer = io.Discard
	if sink.buffer {
		stdout = &pcm
	}

	e.log.Debug().Str("bin", bin).Strs("args", args).Dur("deadline", wait).Msg("running decoder")
	start := time.Now()
	res, err := e.run.Run(runCtx, bin, args, stdout)
	elapsed := time.Since(start)

	if err != nil {
		if !sink.buffer {
			os.Remove(outPath)
		}
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case runCtx.Err() == context.DeadlineExceeded:
			e.log.Warn().Str("input", mediaPath).Dur("deadline", wait).Msg("decoder killed after deadline")
			return nil, fmt.Errorf("%w after %s", ErrTimeout, wait)
		default:
			e.log.Warn().
				Str("input", mediaPath).
				Int("exit_code", res.ExitCode).
				Str("stderr", tail(res.Stderr, 2048)).
				Msg("decoder failed")
			return nil, fmt.Errorf("%w: exit code %d", ErrFailed, res.ExitCode)
		}
	}

	out := &Result{Elapsed: elapsed}
	if sink.buffer {
		out.Samples = wavio.FromF32LE(pcm.Bytes())
		out.Size = int64(pcm.Len())
	} else {
		fi, err := os.Stat(outPath)
		if err != nil {
			return nil, fmt.Errorf("%w: no output produced: %v", ErrFailed, err)
		}
		out.Path = outPath
		out.Size = fi.Size()
	}

	if out.Size < minOutputBytes {
		e.log.Warn().
			Str("input", mediaPath).
			Int64("bytes", out.Size).
			Msg("extraction output suspiciously small")
	}

	e.log.Debug().
		Str("input", mediaPath).
		Int64("bytes", out.Size).
		Dur("elapsed", elapsed).
		Msg("extraction complete")
	return out, nil
}

func buildArgs(preArgs []string, mediaPath, outPath string, buffer bool) []string {
	args := append([]string{}, preArgs...)
	if buffer {
		return append(args,
			"-i", mediaPath,
			"-vn", "-f", "f32le", "-acodec", "pcm_f32le", "-ar", "16000", "-ac", "1",
			"pipe:1")
	}
	return append(args,
		"-y", "-i", mediaPath,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		outPath)
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
