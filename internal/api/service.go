package api

import (
	"context"

	"github.com/enplayer/sr-engine/internal/recognize"
)

// Service is the slice of the recognition engine the API layer needs.
// The orchestrator implements it; api owns the interface so there are no
// circular imports.
type Service interface {
	// RecognizeFile starts recognition of an audio file.
	RecognizeFile(path string) (string, error)

	// RecognizeFromVideo starts recognition of a video file, extracting the
	// audio track first. A non-empty audioOutput names a file to extract
	// into and keep; empty means a scratch file.
	RecognizeFromVideo(path, audioOutput string) (string, error)

	// Stop cancels the in-flight job, if any.
	Stop()

	// Current returns the in-flight or last finished job, nil when nothing
	// has run yet.
	Current() *recognize.JobSnapshot

	// Busy reports whether a job is in flight.
	Busy() bool

	// LocalReady reports whether the local speech model is loaded.
	LocalReady() bool
}

// ProbeFunc checks that the audio decoder is available.
type ProbeFunc func(ctx context.Context) error

// EventSource feeds the SSE stream. The event bus implements it.
type EventSource interface {
	// Subscribe returns a channel that receives events matching the filter,
	// and a cancel function to unsubscribe.
	Subscribe(filter EventFilter) (<-chan SSEEvent, func())

	// ReplaySince returns buffered events since the given event ID (for
	// Last-Event-ID recovery).
	ReplaySince(lastEventID string, filter EventFilter) []SSEEvent
}

// EventFilter specifies which events an SSE subscriber wants to receive.
type EventFilter struct {
	Types []string
	Jobs  []string
}

// SSEEvent represents a server-sent event ready for transmission.
type SSEEvent struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	JobID     string `json:"job_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}
