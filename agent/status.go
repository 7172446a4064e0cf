package agent

// Status is the agent lifecycle state. The zero value is StatusIdle.
//
// Transitions: Idle -> Busy -> Idle around each task; Idle -> Waiting while
// draining the mailbox (Busy for each drained task); Error after a failed
// Initialize, cleared by a later successful one; Stopped is terminal.
type Status int32

const (
	// StatusIdle means the agent is ready to accept a task.
	StatusIdle Status = iota
	// StatusBusy means a task is in flight.
	StatusBusy
	// StatusWaiting means the agent is draining its mailbox.
	StatusWaiting
	// StatusError means initialization failed; the agent rejects tasks
	// until a successful Initialize.
	StatusError
	// StatusStopped means the agent was shut down. Terminal.
	StatusStopped
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusWaiting:
		return "waiting"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
