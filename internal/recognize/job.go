package recognize

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is a job lifecycle phase. Terminal states are Completed and Failed;
// a job reaches exactly one of them.
type State string

const (
	StateIdle        State = "idle"
	StateExtracting  State = "extracting_audio"
	StateRecognizing State = "recognizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// job is one in-flight recognition. The worker goroutine owns the flow;
// Stop and snapshot readers touch only the mutex-guarded fields, the gate
// and the terminal once.
type job struct {
	id       string
	input    string
	video    bool
	// audioOut is a caller-requested extraction target. Empty means a
	// generated scratch path, which is deleted when the job ends; a
	// caller-supplied file is kept.
	audioOut string
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	// gate silences every callback once the job has been abandoned by
	// Stop. The worker may still be running; its events must not surface.
	gate atomic.Bool
	// emitMu serializes callback delivery with abandonment, so abandon
	// doubles as a barrier: after it returns, no callback is running or
	// can start.
	emitMu sync.Mutex

	// terminal guarantees exactly one finished or error emission per job,
	// whether the worker or Stop gets there first.
	terminal sync.Once

	mu       sync.Mutex
	state    State
	progress int
	text     string
	subPath  string
	errCat   Category
	errMsg   string
	tempWav  string
	finished time.Time
}

// JobSnapshot is a point-in-time copy of a job for API consumers.
type JobSnapshot struct {
	ID            string     `json:"id"`
	Input         string     `json:"input"`
	State         State      `json:"state"`
	Progress      int        `json:"progress"`
	Text          string     `json:"text,omitempty"`
	SubtitlePath  string     `json:"subtitle_path,omitempty"`
	ErrorCategory Category   `json:"error_category,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// deliver runs fn unless the job has been abandoned.
func (j *job) deliver(fn func()) {
	j.emitMu.Lock()
	defer j.emitMu.Unlock()
	if j.gate.Load() {
		return
	}
	fn()
}

// abandon silences the job. A callback already in flight completes before
// abandon returns; nothing is delivered after.
func (j *job) abandon() {
	j.gate.Store(true)
	// Cycling the mutex waits out any delivery that began before the gate
	// was set.
	j.emitMu.Lock()
	j.emitMu.Unlock()
}

func (j *job) snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := JobSnapshot{
		ID:            j.id,
		Input:         j.input,
		State:         j.state,
		Progress:      j.progress,
		Text:          j.text,
		SubtitlePath:  j.subPath,
		ErrorCategory: j.errCat,
		ErrorMessage:  j.errMsg,
		StartedAt:     j.started,
	}
	if !j.finished.IsZero() {
		t := j.finished
		s.FinishedAt = &t
	}
	return s
}
