package agent

import (
	"time"
)

// Default execution limits applied when Config leaves them zero.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultHistoryLimit = 20
)

// Config describes an agent at construction time. Everything except the
// system prompt (UpdateSystemPrompt) and model (SwitchModel) is immutable
// afterwards.
type Config struct {
	// ID uniquely identifies the agent. Empty gets a generated ID.
	ID string `json:"id"`

	// Name is the human-readable name used in prompt templates.
	Name string `json:"name"`

	// Type tags the agent's specialization ("general", "code", "research",
	// "review", "summarizer", or anything custom) and selects its default
	// system prompt template.
	Type string `json:"type"`

	// Model is the default model id for task execution. Tasks may override
	// it per call.
	Model string `json:"model,omitempty"`

	// SystemPrompt overrides the type template when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Capabilities are free-form tags used by the orchestrator to route
	// tasks ("code-generation", "analysis", ...).
	Capabilities []string `json:"capabilities,omitempty"`

	// MaxRetries overrides RetryPolicy.MaxRetries when positive.
	MaxRetries int `json:"max_retries,omitempty"`

	// Timeout bounds each execution attempt. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Metadata carries arbitrary labels, never interpreted by the core.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetryPolicy shapes the exponential backoff between failed attempts.
// After attempt n (zero-based) the delay is InitialDelay * Multiplier^n,
// capped at MaxDelay.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `json:"max_retries"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `json:"initial_delay"`

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `json:"max_delay"`

	// Multiplier is the backoff growth factor per attempt.
	Multiplier float64 `json:"multiplier"`
}

// DefaultRetryPolicy returns the standard policy: three retries starting at
// one second, doubling up to ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// withDefaults fills zero-valued fields from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()

	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}

	return p
}

// Delay returns the backoff before retrying after the given zero-based
// attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(d)
}
