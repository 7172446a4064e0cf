// Package openai provides a platform capability for the OpenAI Chat
// Completions API, including streaming. It adapts single prompt exchanges
// into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/platform"
)

// Compile-time interface checks.
var (
	_ platform.Capability          = (*Capability)(nil)
	_ platform.StreamingCapability = (*Capability)(nil)
)

// Options configure the OpenAI capability. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	Logger              logging.Logger
}

// Capability drives the OpenAI Chat Completions API behind the generic
// platform.Capability interface.
type Capability struct {
	client *openai.Client
	logger logging.Logger

	mu    sync.RWMutex
	model string

	temperature         float64
	maxCompletionTokens int64
}

// NewCapability creates an OpenAI capability using the official client.
// Without an explicit API key the client reads OPENAI_API_KEY.
func NewCapability(optFns ...func(o *Options)) *Capability {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return newCapability(&client, opts)
}

// NewCapabilityFromClient creates an OpenAI capability from an existing
// client.
func NewCapabilityFromClient(client *openai.Client, optFns ...func(o *Options)) *Capability {
	return newCapability(client, applyOptions(optFns))
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return opts
}

func newCapability(client *openai.Client, opts Options) *Capability {
	return &Capability{
		client:              client,
		logger:              opts.Logger,
		model:               opts.Model,
		temperature:         opts.Temperature,
		maxCompletionTokens: opts.MaxCompletionTokens,
	}
}

// Initialize implements platform.Capability. Chat Completions is stateless,
// so no handshake happens here; the session records the connection shape.
func (c *Capability) Initialize(ctx context.Context) (*platform.Session, error) {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()

	return &platform.Session{
		ID:            core.NewID(),
		Authenticated: true,
		Data: map[string]any{
			"provider": "openai",
			"model":    model,
		},
	}, nil
}

// SendPrompt implements platform.Capability with a single-turn completion.
func (c *Capability) SendPrompt(ctx context.Context, prompt string, optFns ...func(o *platform.SendOptions)) (*platform.Response, error) {
	opts := platform.SendOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	params := c.buildParams(prompt, opts)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api error: no choices returned")
	}

	ch0 := resp.Choices[0]

	return &platform.Response{
		Content:      ch0.Message.Content,
		Model:        resp.Model,
		FinishReason: ch0.FinishReason,
		Usage: platform.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// StreamPrompt implements platform.StreamingCapability, forwarding text
// deltas as partial responses and closing with the aggregated final one.
func (c *Capability) StreamPrompt(ctx context.Context, prompt string, optFns ...func(o *platform.SendOptions)) (<-chan *platform.Response, <-chan error) {
	opts := platform.SendOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	out := make(chan *platform.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := c.buildParams(prompt, opts)
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		var sb strings.Builder

		model := params.Model
		finishReason := "stop"

		for stream.Next() {
			ck := stream.Current()
			if ck.Model != "" {
				model = ck.Model
			}

			for _, choice := range ck.Choices {
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}

				if choice.Delta.Content == "" {
					continue
				}

				sb.WriteString(choice.Delta.Content)

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- &platform.Response{Content: choice.Delta.Content, Model: model, Partial: true}:
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		out <- &platform.Response{
			Content:      sb.String(),
			Model:        model,
			FinishReason: finishReason,
		}
	}()

	return out, errCh
}

// SwitchModel implements platform.Capability. Chat Completions validates
// model ids per request, so any non-empty id is accepted here.
func (c *Capability) SwitchModel(modelID string) {
	if modelID == "" {
		c.logger.Warn("Ignoring empty model id", "provider", "openai")
		return
	}

	c.mu.Lock()
	c.model = modelID
	c.mu.Unlock()

	c.logger.Debug("Model switched", "provider", "openai", "model", modelID)
}

// Close implements platform.Capability. The underlying HTTP client holds no
// resources that need releasing.
func (c *Capability) Close() error {
	return nil
}

func (c *Capability) buildParams(prompt string, opts platform.SendOptions) openai.ChatCompletionNewParams {
	model := c.currentModel()
	if opts.Model != "" {
		model = opts.Model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model,
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxCompletionTokens),
	}
}

func (c *Capability) currentModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.model
}
