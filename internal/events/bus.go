// Package events distributes recognition lifecycle events to SSE
// subscribers. A ring buffer keeps recent events for replay when a client
// reconnects with a Last-Event-ID.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enplayer/sr-engine/internal/api"
	"github.com/enplayer/sr-engine/internal/metrics"
	"github.com/enplayer/sr-engine/internal/recognize"
)

// Event types published on the bus.
const (
	TypeState    = "state"
	TypeProgress = "progress"
	TypeFinished = "finished"
	TypeError    = "error"
)

// Bus provides pub-sub event distribution for SSE subscribers. It
// implements api.EventSource.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []api.SSEEvent
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan api.SSEEvent
	filter api.EventFilter
}

// NewBus creates a bus whose replay buffer holds ringSize events.
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 256
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]api.SSEEvent, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel
// function. Slow subscribers lose events rather than block the publisher.
func (b *Bus) Subscribe(filter api.EventFilter) (<-chan api.SSEEvent, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan api.SSEEvent, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// ReplaySince returns buffered events after the given event ID. An unknown
// ID, typically one already overwritten by ring wrap, replays everything
// available so the client does not silently miss events.
func (b *Bus) ReplaySince(lastEventID string, filter api.EventFilter) []api.SSEEvent {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var events []api.SSEEvent
	found := lastEventID == ""

	for i := 0; i < b.ringSize; i++ {
		idx := (b.ringHead + i) % b.ringSize
		e := b.ring[idx]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if matchesFilter(e, filter) {
			events = append(events, e)
		}
	}
	return events
}

// EventData holds the fields needed to publish an event.
type EventData struct {
	Type    string
	JobID   string
	Payload any
}

// Publish fans an event out to all matching subscribers and records it in
// the ring buffer.
func (b *Bus) Publish(e EventData) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return
	}

	seq := b.seq.Add(1)
	event := api.SSEEvent{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), seq),
		Type:      e.Type,
		JobID:     e.JobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	metrics.SSEEventsPublishedTotal.Inc()

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
				// Drop if subscriber is slow
			}
		}
	}
	b.mu.RUnlock()
}

func matchesFilter(e api.SSEEvent, f api.EventFilter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			if strings.TrimSpace(t) == e.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.Jobs) > 0 && e.JobID != "" {
		match := false
		for _, id := range f.Jobs {
			if id == e.JobID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// StateData is the payload of a state event.
type StateData struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
}

// FinishedData is the payload of a finished event.
type FinishedData struct {
	JobID        string `json:"job_id"`
	Text         string `json:"text"`
	SubtitlePath string `json:"subtitle_path,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	JobID    string `json:"job_id"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Callbacks returns recognition callbacks that publish every lifecycle
// notification on the bus.
func (b *Bus) Callbacks() recognize.Callbacks {
	return recognize.Callbacks{
		OnState: func(jobID string, state recognize.State) {
			b.Publish(EventData{
				Type:    TypeState,
				JobID:   jobID,
				Payload: StateData{JobID: jobID, State: string(state)},
			})
		},
		OnProgress: func(jobID string, pct int) {
			b.Publish(EventData{
				Type:    TypeProgress,
				JobID:   jobID,
				Payload: ProgressData{JobID: jobID, Progress: pct},
			})
		},
		OnFinished: func(jobID string, text, subtitlePath string) {
			b.Publish(EventData{
				Type:    TypeFinished,
				JobID:   jobID,
				Payload: FinishedData{JobID: jobID, Text: text, SubtitlePath: subtitlePath},
			})
		},
		OnError: func(jobID string, cat recognize.Category, msg string) {
			b.Publish(EventData{
				Type:    TypeError,
				JobID:   jobID,
				Payload: ErrorData{JobID: jobID, Category: string(cat), Message: msg},
			})
		},
	}
}
