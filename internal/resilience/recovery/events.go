package recovery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
)

// EventKind identifies what an Event signals.
type EventKind string

const (
	EventTransition    EventKind = "component_transition"
	EventHealthChanged EventKind = "health_changed"
	EventCritical      EventKind = "health_critical"
	EventEmergency     EventKind = "health_emergency"
	EventEscalation    EventKind = "escalation"
)

// Event is published after every committed state change.
// Seq increases by one per committed event.
type Event struct {
	ID        string       `json:"id"`
	Seq       uint64       `json:"seq"`
	Kind      EventKind    `json:"kind"`
	Component string       `json:"component,omitempty"`
	From      State        `json:"from,omitempty"`
	To        State        `json:"to,omitempty"`
	Previous  health.Level `json:"previous_level,omitempty"`
	Level     health.Level `json:"level"`
	Reason    string       `json:"reason,omitempty"`
	Time      time.Time    `json:"time"`
}

func newEvent(kind EventKind, level health.Level, at time.Time) Event {
	return Event{
		ID:    uuid.New().String(),
		Kind:  kind,
		Level: level,
		Time:  at,
	}
}

func transitionEvent(t Transition, level health.Level) Event {
	e := newEvent(EventTransition, level, t.Timestamp)
	e.Component = t.Component
	e.From = t.From
	e.To = t.To
	e.Reason = t.Reason
	return e
}

// EventSink receives events in commit order. Notify must not block for long;
// it is called from a reporting goroutine after all subsystem locks are released.
type EventSink interface {
	Notify(e Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(e Event)

// Notify calls f(e).
func (f SinkFunc) Notify(e Event) { f(e) }

// Broadcaster fans events out to in-process subscribers.
// Slow subscribers miss events instead of blocking the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	log    *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan Event),
		log:  slog.Default().With("component", "broadcaster"),
	}
}

// Subscribe returns a channel receiving future events and a cancel func.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Notify implements EventSink.
func (b *Broadcaster) Notify(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDroppedTotal.WithLabelValues("broadcast").Inc()
			b.log.Debug("Subscriber full, dropping event", "kind", e.Kind)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
