package core

import (
	"time"
)

// EventKind identifies a lifecycle notification. The set is closed; the
// Bus rejects kinds outside it so observers can switch exhaustively.
type EventKind string

const (
	// EventAgentStarted fires when an agent joins the pool.
	EventAgentStarted EventKind = "agent-started"
	// EventAgentStopped fires when an agent is removed from the pool.
	EventAgentStopped EventKind = "agent-stopped"
	// EventTaskStarted fires when an agent begins executing a task.
	EventTaskStarted EventKind = "task-started"
	// EventTaskCompleted fires when a task finishes successfully.
	EventTaskCompleted EventKind = "task-completed"
	// EventTaskFailed fires when a task exhausts its retries.
	EventTaskFailed EventKind = "task-failed"
	// EventQueryStart opens the event sequence of a fan-out query.
	EventQueryStart EventKind = "query-start"
	// EventPlatformStart fires when one platform of a query begins.
	EventPlatformStart EventKind = "platform-start"
	// EventResponseChunk carries a partial or complete response fragment.
	EventResponseChunk EventKind = "response-chunk"
	// EventPlatformComplete fires when one platform of a query succeeds.
	EventPlatformComplete EventKind = "platform-complete"
	// EventPlatformError fires when one platform of a query fails.
	EventPlatformError EventKind = "platform-error"
	// EventQueryComplete closes the event sequence of a fan-out query.
	EventQueryComplete EventKind = "query-complete"
)

// Valid reports whether k is a member of the closed kind set.
func (k EventKind) Valid() bool {
	switch k {
	case EventAgentStarted, EventAgentStopped,
		EventTaskStarted, EventTaskCompleted, EventTaskFailed,
		EventQueryStart, EventPlatformStart, EventResponseChunk,
		EventPlatformComplete, EventPlatformError, EventQueryComplete:
		return true
	default:
		return false
	}
}

// Event is an immutable lifecycle notification. Correlation fields are
// populated as applicable for the kind: agent events carry AgentID, task
// events AgentID+TaskID, query events QueryID and, per platform, Platform.
// Free-form details (chunk text, error strings, durations) go in Data.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	QueryID   string         `json:"query_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a bare event of the given kind. Prefer the helper
// constructors for the common correlation shapes.
func NewEvent(kind EventKind) Event {
	return Event{
		ID:        NewID(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgentEvent creates an agent lifecycle event.
func NewAgentEvent(kind EventKind, agentID string) Event {
	e := NewEvent(kind)
	e.AgentID = agentID
	return e
}

// NewTaskEvent creates a task lifecycle event correlated to its agent.
func NewTaskEvent(kind EventKind, agentID, taskID string) Event {
	e := NewEvent(kind)
	e.AgentID = agentID
	e.TaskID = taskID
	return e
}

// NewQueryEvent creates a query boundary event (query-start/query-complete).
func NewQueryEvent(kind EventKind, queryID string) Event {
	e := NewEvent(kind)
	e.QueryID = queryID
	return e
}

// NewPlatformEvent creates a per-platform query event.
func NewPlatformEvent(kind EventKind, queryID, platform string) Event {
	e := NewEvent(kind)
	e.QueryID = queryID
	e.Platform = platform
	return e
}

// NewChunkEvent creates a response-chunk event carrying a response fragment.
func NewChunkEvent(queryID, platform, chunk string) Event {
	e := NewPlatformEvent(EventResponseChunk, queryID, platform)
	e.Data = map[string]any{"chunk": chunk}
	return e
}

// Chunk returns the response fragment of a response-chunk event, or the
// empty string for other kinds.
func (e Event) Chunk() string {
	if e.Kind != EventResponseChunk || e.Data == nil {
		return ""
	}
	if s, ok := e.Data["chunk"].(string); ok {
		return s
	}
	return ""
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
// Useful for metrics & numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
