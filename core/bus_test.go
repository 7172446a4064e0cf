package core

import (
	"testing"
	"time"
)

func drainOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestBus_PublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewAgentEvent(EventAgentStarted, "agent-1"))

	ev := drainOne(t, ch)
	if ev.Kind != EventAgentStarted || ev.AgentID != "agent-1" {
		t.Fatalf("Unexpected event: %+v", ev)
	}
}

func TestBus_KindFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(EventTaskFailed)
	defer cancel()

	bus.Publish(NewTaskEvent(EventTaskCompleted, "a", "t1"))
	bus.Publish(NewTaskEvent(EventTaskFailed, "a", "t2"))

	ev := drainOne(t, ch)
	if ev.Kind != EventTaskFailed || ev.TaskID != "t2" {
		t.Fatalf("Filter delivered the wrong event: %+v", ev)
	}

	select {
	case extra := <-ch:
		t.Fatalf("Unexpected extra event: %+v", extra)
	default:
	}
}

func TestBus_RejectsUnknownKind(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: EventKind("free-form")})

	select {
	case ev := <-ch:
		t.Fatalf("Event outside the closed kind set was delivered: %+v", ev)
	default:
	}
}

func TestBus_FillsMissingIDAndTimestamp(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: EventQueryStart, QueryID: "q1"})

	ev := drainOne(t, ch)
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("Expected ID and timestamp to be filled: %+v", ev)
	}
	if ev.QueryID != "q1" {
		t.Fatalf("Correlation fields lost: %+v", ev)
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("Expected channel to be closed after unsubscribe")
	}

	// A second cancel must be a no-op.
	cancel()
}

func TestBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(func(o *BusOptions) { o.BufferSize = 1 })
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewEvent(EventQueryStart))
	bus.Publish(NewEvent(EventQueryStart))

	if bus.Dropped() != 1 {
		t.Errorf("Expected exactly one dropped event, got %d", bus.Dropped())
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("Expected subscriber channel to be closed")
	}

	// Publishing after close must not panic.
	bus.Publish(NewEvent(EventQueryStart))
}
