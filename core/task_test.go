package core

import (
	"testing"
)

func TestNewTask_Defaults(t *testing.T) {
	task := NewTask("agent-1", "summarize this")
	if task.ID == "" || task.AgentID != "agent-1" || task.Prompt != "summarize this" {
		t.Fatalf("NewTask did not initialize fields correctly: %+v", task)
	}
	if task.Status != TaskPending {
		t.Errorf("Expected pending status, got %s", task.Status)
	}
	if task.Priority != PriorityNormal {
		t.Errorf("Expected normal priority, got %s", task.Priority)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestTask_StatusAdvancesForwardOnly(t *testing.T) {
	task := NewTask("agent-1", "p")

	if !task.SetStatus(TaskInProgress) {
		t.Fatal("Pending -> InProgress should be allowed")
	}
	if task.SetStatus(TaskPending) {
		t.Error("InProgress -> Pending regression should be refused")
	}
	if !task.SetStatus(TaskCompleted) {
		t.Fatal("InProgress -> Completed should be allowed")
	}
	if task.SetStatus(TaskFailed) {
		t.Error("Transition out of a terminal state should be refused")
	}
	if task.SetStatus(TaskCancelled) {
		t.Error("Transition out of a terminal state should be refused")
	}
	if task.Status != TaskCompleted {
		t.Errorf("Status mutated despite refusal: %s", task.Status)
	}
}

func TestTask_CancelBeforeStart(t *testing.T) {
	task := NewTask("agent-1", "p")
	if !task.SetStatus(TaskCancelled) {
		t.Fatal("Pending -> Cancelled should be allowed")
	}
	if !task.Status.Terminal() {
		t.Error("Cancelled should be terminal")
	}
}

func TestTask_Complete(t *testing.T) {
	ok := NewTask("agent-1", "p")
	ok.SetStatus(TaskInProgress)
	ok.Complete(&TaskResult{Success: true, Response: "done"})
	if ok.Status != TaskCompleted || ok.Result == nil || ok.Result.Response != "done" {
		t.Fatalf("Complete on success malformed: %+v", ok)
	}

	bad := NewTask("agent-1", "p")
	bad.SetStatus(TaskInProgress)
	bad.Complete(&TaskResult{Success: false, Error: "boom"})
	if bad.Status != TaskFailed || bad.Result.Error != "boom" {
		t.Fatalf("Complete on failure malformed: %+v", bad)
	}
}

func TestPriority_Ordering(t *testing.T) {
	if !(PriorityLow < PriorityNormal && PriorityNormal < PriorityHigh && PriorityHigh < PriorityUrgent) {
		t.Error("Priorities must compare numerically in ascending severity")
	}
	if PriorityUrgent.String() != "urgent" || PriorityLow.String() != "low" {
		t.Errorf("Unexpected priority names: %s %s", PriorityUrgent, PriorityLow)
	}
}
