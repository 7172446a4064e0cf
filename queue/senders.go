package queue

import (
	"github.com/promptmux/promptmux/core"
)

// Typed convenience senders. Each is a thin wrapper over Send with the
// conventional payload shape and default priority for its message type.

// SendTaskRequest asks the recipient agent to execute a prompt. The payload
// carries "prompt" plus optional "model" and "system_prompt" overrides
// understood by Agent.ProcessMessages.
func (q *MessageQueue) SendTaskRequest(senderID, recipientID, prompt string, priority core.Priority) (core.Message, error) {
	msg := core.NewMessage(core.MessageTaskRequest, senderID, recipientID, map[string]any{
		"prompt": prompt,
	})
	msg.Priority = priority
	return q.Send(msg)
}

// SendTaskResponse carries a task result back to the requester at normal
// priority.
func (q *MessageQueue) SendTaskResponse(senderID, recipientID, taskID string, result *core.TaskResult) (core.Message, error) {
	payload := map[string]any{
		"task_id": taskID,
		"success": result.Success,
	}
	if result.Response != "" {
		payload["response"] = result.Response
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	if result.Model != "" {
		payload["model"] = result.Model
	}
	payload["duration_ms"] = result.Duration.Milliseconds()

	msg := core.NewMessage(core.MessageTaskResponse, senderID, recipientID, payload)
	msg.Priority = core.PriorityNormal
	return q.Send(msg)
}

// SendStatusUpdate reports an agent status change at low priority.
func (q *MessageQueue) SendStatusUpdate(senderID, recipientID, status string) (core.Message, error) {
	msg := core.NewMessage(core.MessageStatusUpdate, senderID, recipientID, map[string]any{
		"status": status,
	})
	msg.Priority = core.PriorityLow
	return q.Send(msg)
}

// SendError reports a failure to the requester. Error messages default to
// high priority so they jump ahead of regular traffic.
func (q *MessageQueue) SendError(senderID, recipientID, taskID, errText string) (core.Message, error) {
	payload := map[string]any{
		"error": errText,
	}
	if taskID != "" {
		payload["task_id"] = taskID
	}

	msg := core.NewMessage(core.MessageError, senderID, recipientID, payload)
	msg.Priority = core.PriorityHigh
	return q.Send(msg)
}
