package core

// Priority orders message delivery and task scheduling. Values compare
// numerically; a higher value is serviced first.
type Priority int

const (
	// PriorityLow is for background or housekeeping traffic.
	PriorityLow Priority = iota
	// PriorityNormal is the default for regular work.
	PriorityNormal
	// PriorityHigh is for traffic that should jump ahead of regular work.
	PriorityHigh
	// PriorityUrgent preempts everything else in a mailbox.
	PriorityUrgent
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}
