// Package anthropic provides a platform capability for the Anthropic
// Claude API.
package anthropic

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/platform"
)

// Compile-time interface check.
var _ platform.Capability = (*Capability)(nil)

// Options configures the Anthropic capability (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	Logger      logging.Logger
}

// Capability drives the Anthropic Messages API behind the generic
// platform.Capability interface. One exchange is one single-turn message;
// conversation memory lives in the agent, not here.
type Capability struct {
	client *anthropic.Client
	logger logging.Logger

	mu    sync.RWMutex
	model anthropic.Model

	temperature float64
	maxTokens   int64
}

// NewCapability creates an Anthropic capability using the official client.
// Without an explicit API key the client reads ANTHROPIC_API_KEY.
func NewCapability(optFns ...func(o *Options)) *Capability {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return newCapability(&client, opts)
}

// NewCapabilityFromClient creates an Anthropic capability from an existing
// client.
func NewCapabilityFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Capability {
	return newCapability(client, applyOptions(optFns))
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return opts
}

func newCapability(client *anthropic.Client, opts Options) *Capability {
	return &Capability{
		client:      client,
		logger:      opts.Logger,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Initialize implements platform.Capability. The Messages API is stateless,
// so no handshake happens here; the session records the connection shape.
func (c *Capability) Initialize(ctx context.Context) (*platform.Session, error) {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()

	return &platform.Session{
		ID:            core.NewID(),
		Authenticated: true,
		Data: map[string]any{
			"provider": "anthropic",
			"model":    string(model),
		},
	}, nil
}

// SendPrompt implements platform.Capability with a single-turn message.
//
// TODO: Implement streaming via Messages.NewStreaming so chunked output
// reaches subscribers before the exchange completes.
func (c *Capability) SendPrompt(ctx context.Context, prompt string, optFns ...func(o *platform.SendOptions)) (*platform.Response, error) {
	opts := platform.SendOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	model := c.currentModel()
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.AsText().Text
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &platform.Response{
		Content:      content,
		Model:        string(resp.Model),
		FinishReason: finishReason,
		Usage: platform.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// SwitchModel implements platform.Capability. The Messages API validates
// model ids per request, so any non-empty id is accepted here.
func (c *Capability) SwitchModel(modelID string) {
	if modelID == "" {
		c.logger.Warn("Ignoring empty model id", "provider", "anthropic")
		return
	}

	c.mu.Lock()
	c.model = anthropic.Model(modelID)
	c.mu.Unlock()

	c.logger.Debug("Model switched", "provider", "anthropic", "model", modelID)
}

// Close implements platform.Capability. The underlying HTTP client holds no
// resources that need releasing.
func (c *Capability) Close() error {
	return nil
}

func (c *Capability) currentModel() anthropic.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.model
}
