package core

import (
	"sync"
	"sync/atomic"

	"github.com/promptmux/promptmux/logging"
)

// busSubscription couples a delivery channel with the kinds it wants.
// An empty kind set means every kind.
type busSubscription struct {
	id    uint64
	kinds map[EventKind]struct{}
	ch    chan Event
}

func (s *busSubscription) wants(kind EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// BusOptions configures a Bus.
type BusOptions struct {
	// BufferSize sets the per-subscriber channel buffer.
	BufferSize int
	// Logger receives drop warnings (defaults to NoOp).
	Logger logging.Logger
}

// Bus is an in-process, goroutine-safe fan-out for lifecycle events.
// Delivery is non-blocking: a subscriber that falls behind loses events
// rather than stalling publishers; the drop count is observable via
// Dropped so slow consumers are detectable.
type Bus struct {
	*loggerAdapter

	mu         sync.RWMutex
	subs       map[uint64]*busSubscription
	nextID     atomic.Uint64
	dropped    atomic.Uint64
	bufferSize int
	closed     bool
}

// NewBus creates an event bus with optional overrides.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{
		BufferSize: 64,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		loggerAdapter: newLoggerAdapter(opts.Logger),
		subs:          make(map[uint64]*busSubscription),
		bufferSize:    opts.BufferSize,
	}
}

// Subscribe registers interest in the given kinds (all kinds when none are
// given) and returns the delivery channel plus an unsubscribe function.
// The channel is closed on unsubscribe and on Close.
func (b *Bus) Subscribe(kinds ...EventKind) (<-chan Event, func()) {
	sub := &busSubscription{
		id: b.nextID.Add(1),
		ch: make(chan Event, b.bufferSize),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(s.ch)
		}
	}
}

// Publish fans the event out to matching subscribers. Events of a kind
// outside the closed set are dropped with a warning. Missing ID/Timestamp
// fields are filled in.
func (b *Bus) Publish(ev Event) {
	if !ev.Kind.Valid() {
		b.LogWarn("bus dropped event with unknown kind", "kind", string(ev.Kind))
		return
	}
	if ev.ID == "" {
		filled := NewEvent(ev.Kind)
		filled.QueryID, filled.AgentID, filled.TaskID = ev.QueryID, ev.AgentID, ev.TaskID
		filled.Platform, filled.Data = ev.Platform, ev.Data
		ev = filled
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.LogWarn("bus dropped event for slow subscriber", "kind", string(ev.Kind), "event_id", ev.ID)
		}
	}
}

// Dropped returns the number of events lost to slow subscribers since the
// bus was created.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel and rejects further publishes.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
