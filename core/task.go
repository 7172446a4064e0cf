package core

import (
	"time"
)

// TaskStatus tracks a task through its lifecycle. Transitions only ever
// advance: Pending -> InProgress -> {Completed | Failed | Cancelled}.
type TaskStatus int

const (
	// TaskPending means the task has been created but not yet started.
	TaskPending TaskStatus = iota
	// TaskInProgress means an agent is currently executing the task.
	TaskInProgress
	// TaskCompleted means execution finished and produced a result.
	TaskCompleted
	// TaskFailed means execution exhausted its retries without success.
	TaskFailed
	// TaskCancelled means the task was aborted before completion.
	TaskCancelled
)

// String returns the human-readable name of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a unit of work (a prompt plus options) assigned to exactly one
// agent. Tasks are created by the orchestrator or from an inbound
// task-request message and discarded once their result has been delivered.
//
// Contract:
//   - Status only advances forward (use SetStatus, never assign directly)
//   - A task is mutated only by the agent executing it
//   - Result is set exactly once, together with the terminal status.
type Task struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agent_id"`
	Prompt       string         `json:"prompt"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Priority     Priority       `json:"priority"`
	Status       TaskStatus     `json:"status"`
	RequesterID  string         `json:"requester_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Result       *TaskResult    `json:"result,omitempty"`
}

// NewTask creates a pending task with a fresh ID for the given agent.
func NewTask(agentID, prompt string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        NewID(),
		AgentID:   agentID,
		Prompt:    prompt,
		Priority:  PriorityNormal,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus advances the task status. Regressions and transitions out of a
// terminal state are refused; the return value reports whether the change
// was applied.
func (t *Task) SetStatus(s TaskStatus) bool {
	if t.Status.Terminal() || s <= t.Status {
		return false
	}
	t.Status = s
	t.UpdatedAt = time.Now().UTC()
	return true
}

// Complete attaches the result and moves the task to its terminal status
// (Completed on success, Failed otherwise).
func (t *Task) Complete(res *TaskResult) {
	t.Result = res
	if res != nil && res.Success {
		t.SetStatus(TaskCompleted)
	} else {
		t.SetStatus(TaskFailed)
	}
}

// TaskResult captures the outcome of one task execution. It is immutable
// once produced.
type TaskResult struct {
	Success    bool           `json:"success"`
	Response   string         `json:"response,omitempty"`
	Model      string         `json:"model,omitempty"`
	Duration   time.Duration  `json:"duration"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
