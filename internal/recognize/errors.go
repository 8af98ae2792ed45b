package recognize

import (
	"errors"
	"fmt"
)

// Category classifies a recognition failure for API clients and events.
type Category string

const (
	CategoryInvalidInput          Category = "invalid_input"
	CategoryExtractionToolMissing Category = "extraction_tool_missing"
	CategoryExtractionTimeout     Category = "extraction_timeout"
	CategoryExtractionFailed      Category = "extraction_failed"
	CategoryBackendUnavailable    Category = "backend_unavailable"
	CategoryLocalInference        Category = "local_inference_failed"
	CategoryRemoteTransport       Category = "remote_transport_failed"
	CategoryRemoteParse           Category = "remote_parse_failed"
	CategoryCancelled             Category = "cancelled"
)

// ErrBusy is returned when a job is already in flight. The running job is
// not disturbed and no events are emitted for the rejected request.
var ErrBusy = errors.New("a recognition job is already running")

// ErrClosed is returned for submissions after Close.
var ErrClosed = errors.New("recognizer is closed")

// Error is a classified recognition failure.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat Category, msg string, err error) *Error {
	return &Error{Category: cat, Message: msg, Err: err}
}

// CategoryOf extracts the failure category from err, or "" when err carries
// none.
func CategoryOf(err error) Category {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Category
	}
	return ""
}
