package core

import (
	"time"
)

// MessageType classifies queue messages. The set is closed; senders use
// the typed convenience helpers on the queue rather than free-form types.
type MessageType string

const (
	// MessageTaskRequest asks the recipient agent to execute a task.
	MessageTaskRequest MessageType = "task-request"
	// MessageTaskResponse carries a task result back to the requester.
	MessageTaskResponse MessageType = "task-response"
	// MessageStatusUpdate reports agent status changes.
	MessageStatusUpdate MessageType = "status-update"
	// MessageError reports a failure to the requester.
	MessageError MessageType = "error"
	// MessageSystem carries orchestrator-level notifications.
	MessageSystem MessageType = "system"
)

// Message is a directed unit of inter-agent mail. The queue owns a message
// from send until it is drained by receive or discarded by cleanup.
type Message struct {
	ID          string         `json:"id"`
	Type        MessageType    `json:"type"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Priority    Priority       `json:"priority"`
	ReplyTo     string         `json:"reply_to,omitempty"`
}

// NewMessage constructs a message with normal priority. ID and Timestamp
// are assigned by the queue on send; constructing them here as well keeps
// messages usable stand-alone in tests.
func NewMessage(msgType MessageType, senderID, recipientID string, payload map[string]any) Message {
	return Message{
		ID:          NewID(),
		Type:        msgType,
		SenderID:    senderID,
		RecipientID: recipientID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
		Priority:    PriorityNormal,
	}
}
