package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
)

// EventStatus is the outcome reported by an Event.
type EventStatus string

const (
	// EventCompleted reports a job that finished successfully.
	EventCompleted EventStatus = "completed"
	// EventRetrying reports a failed attempt that will be retried.
	EventRetrying EventStatus = "retrying"
	// EventFailed reports a job that will not be retried.
	EventFailed EventStatus = "failed"
)

// Event is one job lifecycle notification, keyed by job id.
type Event struct {
	JobID   int64       `json:"jobId"`
	JobType Type        `json:"jobType"`
	Status  EventStatus `json:"status"`
	Attempt int         `json:"attempt"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`
}

// EventSink receives job lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, evt Event) error
}

// MultiSink fans an event out to several sinks. Every sink is tried.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(ctx context.Context, evt Event) error {
	var msgs []string
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, evt); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Errorf("publish job event: %s", strings.Join(msgs, "; "))
}

// EventBus delivers events to in-process subscribers.
// Slow subscribers miss events rather than blocking workers.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]chan Event{}}
}

// Subscribe returns a buffered event channel and a function that unsubscribes and closes it.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements EventSink.
func (b *EventBus) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}
