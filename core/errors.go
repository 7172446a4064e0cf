package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for orchestration and registry failures. They are wrapped
// by AgentError / ModelError so callers can branch with errors.Is while the
// wrapper carries the operation context.
var (
	// ErrAgentExists is returned when creating an agent with a taken ID.
	ErrAgentExists = errors.New("agent id already exists")
	// ErrAgentNotFound is returned when addressing an unknown agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentBusy is returned when an agent already has a task in flight.
	ErrAgentBusy = errors.New("agent is busy")
	// ErrAgentStopped is returned when a stopped agent is given work.
	ErrAgentStopped = errors.New("agent is stopped")
	// ErrAgentNotReady is returned when an agent is in the error state.
	ErrAgentNotReady = errors.New("agent is not ready")
	// ErrCapacityReached is returned when the agent pool is full.
	ErrCapacityReached = errors.New("max concurrent agents reached")
	// ErrNoAvailableAgent is returned when no idle agent of a type exists.
	ErrNoAvailableAgent = errors.New("no available agent")
	// ErrModelNotFound is returned for lookups of unregistered models.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelIDRequired is returned when registering a descriptor without an ID.
	ErrModelIDRequired = errors.New("model id is required")
	// ErrNoRegistrySource is returned when persisting a registry with no source.
	ErrNoRegistrySource = errors.New("no registry source configured")
	// ErrMailboxFull is returned when a mailbox has hit its size cap.
	ErrMailboxFull = errors.New("mailbox is full")
	// ErrQueryNotFound is returned when cancelling an unknown query.
	ErrQueryNotFound = errors.New("query not found")
)

// AgentError is an orchestration error: a programmer or caller mistake such
// as a duplicate agent ID, pool capacity, or addressing an unknown agent.
// It is never retried and always propagated synchronously to the caller.
type AgentError struct {
	Op      string // failing operation, e.g. "orchestrator.CreateAgent"
	AgentID string // agent involved, may be empty
	Err     error  // underlying sentinel or cause
}

// NewAgentError wraps err with the operation and agent it occurred for.
func NewAgentError(op, agentID string, err error) *AgentError {
	return &AgentError{Op: op, AgentID: agentID, Err: err}
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.AgentID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: agent %s: %v", e.Op, e.AgentID, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *AgentError) Unwrap() error { return e.Err }

// ModelError is a registry error: an unknown model ID or a persistence
// failure. Like AgentError it is never retried.
type ModelError struct {
	Op      string
	ModelID string
	Err     error
}

// NewModelError wraps err with the operation and model it occurred for.
func NewModelError(op, modelID string, err error) *ModelError {
	return &ModelError{Op: op, ModelID: modelID, Err: err}
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: model %s: %v", e.Op, e.ModelID, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *ModelError) Unwrap() error { return e.Err }
