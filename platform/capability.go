package platform

import (
	"context"
	"time"
)

// SendOptions adjust a single prompt exchange.
type SendOptions struct {
	// Model overrides the capability's current model for this call only.
	Model string

	// SystemPrompt sets the instruction text for this call.
	SystemPrompt string

	// Streaming hints that the capability should stream internally even
	// when the caller only consumes the final response.
	Streaming bool
}

// WithModel overrides the model for one call.
func WithModel(model string) func(o *SendOptions) {
	return func(o *SendOptions) {
		o.Model = model
	}
}

// WithSystemPrompt sets the instruction text for one call.
func WithSystemPrompt(prompt string) func(o *SendOptions) {
	return func(o *SendOptions) {
		o.SystemPrompt = prompt
	}
}

// TokenUsage counts the tokens consumed by one exchange.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is one result from a capability. Streaming capabilities emit
// partial responses followed by a final one carrying usage and finish
// reason.
type Response struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	Partial      bool       `json:"partial,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        TokenUsage `json:"usage"`
}

// Session describes an initialized platform connection. The orchestration
// core treats it as opaque; capabilities put whatever they need in Data.
type Session struct {
	ID            string         `json:"id"`
	Authenticated bool           `json:"authenticated"`
	ExpiresAt     time.Time      `json:"expires_at,omitzero"`
	Data          map[string]any `json:"data,omitempty"`
}

// Expired reports whether the session has an expiry in the past.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Capability is a live connection to one AI platform. Implementations must
// be safe for concurrent use; agents may share a capability.
type Capability interface {
	// Initialize prepares the platform connection and returns its session.
	Initialize(ctx context.Context) (*Session, error)

	// SendPrompt performs one prompt exchange and blocks until the final
	// response or an error.
	SendPrompt(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (*Response, error)

	// SwitchModel changes the model used by subsequent calls. Models the
	// platform does not recognize are logged and ignored.
	SwitchModel(modelID string)

	// Close releases the platform connection.
	Close() error
}

// StreamingCapability is implemented by capabilities that surface
// incremental output. Both channels close when the exchange finishes; the
// last response on the channel is the non-partial aggregate.
type StreamingCapability interface {
	Capability

	StreamPrompt(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (<-chan *Response, <-chan error)
}
