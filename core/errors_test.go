package core

import (
	"errors"
	"testing"
)

func TestAgentError_WrapsSentinel(t *testing.T) {
	err := NewAgentError("orchestrator.CreateAgent", "agent-1", ErrAgentExists)

	if !errors.Is(err, ErrAgentExists) {
		t.Error("Expected errors.Is to match the wrapped sentinel")
	}

	var ae *AgentError
	if !errors.As(err, &ae) {
		t.Fatal("Expected errors.As to recover *AgentError")
	}
	if ae.AgentID != "agent-1" {
		t.Errorf("Lost agent id: %+v", ae)
	}
	if err.Error() == "" {
		t.Error("Expected a message")
	}
}

func TestModelError_WrapsSentinel(t *testing.T) {
	err := NewModelError("model.GetModel", "gpt-x", ErrModelNotFound)

	if !errors.Is(err, ErrModelNotFound) {
		t.Error("Expected errors.Is to match the wrapped sentinel")
	}

	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatal("Expected errors.As to recover *ModelError")
	}
	if me.ModelID != "gpt-x" {
		t.Errorf("Lost model id: %+v", me)
	}
}
