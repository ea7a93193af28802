// Package jobs tracks conversion jobs for the web backend: a single active
// job at a time, a bounded event buffer for SSE catch-up reads, and wake-up
// notifications for attached streams.
package jobs

import (
	"sync"
	"time"

	"audiobook-forge/backend/internal/pipeline"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by SSE and websocket subscribers.
type Event struct {
	Seq       int64                  `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	JobID     string                 `json:"jobId"`
	Type      EventType              `json:"type"`
	Stage     pipeline.Stage         `json:"stage,omitempty"`
	Fraction  float64                `json:"fraction"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Failures  []pipeline.ItemFailure `json:"failures,omitempty"`
	OutputURL string                 `json:"outputUrl,omitempty"`
}

// EventBus stores recent events and provides incremental reads. Subscribers
// get a wake-up signal per publish; the events themselves are pulled with
// Since, so a slow or detached reader never blocks a publish and never
// cancels the job it watches.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	nextSub   int64
	subs      map[int64]chan struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int64]chan struct{}),
	}
}

// Publish appends one event, assigns sequence and timestamp, and nudges
// subscribers.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	subs := make([]chan struct{}, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a wake-up channel. The returned id releases it via
// Unsubscribe.
func (b *EventBus) Subscribe() (int64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	ch := make(chan struct{}, 1)
	b.subs[b.nextSub] = ch
	return b.nextSub, ch
}

func (b *EventBus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
