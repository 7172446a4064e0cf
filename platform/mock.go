package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
)

// Compile-time interface checks.
var (
	_ Capability          = (*MockCapability)(nil)
	_ StreamingCapability = (*MockCapability)(nil)
)

// MockOptions configure a MockCapability.
type MockOptions struct {
	// Name identifies the mock platform in sessions and logs.
	Name string

	// Model is the initial model id reported in responses.
	Model string

	// KnownModels restricts SwitchModel. Empty accepts every model.
	KnownModels []string

	// Latency is an artificial delay applied to every exchange.
	Latency time.Duration

	// ChunkSize is the number of bytes per streamed partial response.
	ChunkSize int

	// Logger receives mock diagnostics.
	Logger logging.Logger
}

// RecordedCall captures one prompt exchange for later inspection.
type RecordedCall struct {
	Prompt  string
	Options SendOptions
	Time    time.Time
}

// MockCapability is an in-memory Capability for tests and examples. It
// serves canned responses per prompt, can be scripted to fail the next N
// exchanges, records every call, and streams by slicing the canned content
// into fixed-size chunks.
type MockCapability struct {
	mu        sync.Mutex
	name      string
	model     string
	known     map[string]bool
	latency   time.Duration
	chunkSize int
	logger    logging.Logger
	responses map[string]string
	failLeft  int
	failErr   error
	initErr   error
	calls     []RecordedCall
	closed    bool
}

// NewMockCapability constructs a mock with deterministic defaults.
func NewMockCapability(optFns ...func(o *MockOptions)) *MockCapability {
	opts := MockOptions{
		Name:      "mock",
		Model:     "mock-model",
		ChunkSize: 16,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	var known map[string]bool
	if len(opts.KnownModels) > 0 {
		known = make(map[string]bool, len(opts.KnownModels))
		for _, m := range opts.KnownModels {
			known[m] = true
		}
	}

	return &MockCapability{
		name:      opts.Name,
		model:     opts.Model,
		known:     known,
		latency:   opts.Latency,
		chunkSize: opts.ChunkSize,
		logger:    logger,
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an exact prompt.
func (mc *MockCapability) AddResponse(prompt, response string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.responses[prompt] = response
}

// FailTimes scripts the next n exchanges to fail with err before the mock
// recovers. Used to exercise retry paths.
func (mc *MockCapability) FailTimes(n int, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.failLeft = n
	mc.failErr = err
}

// FailInitialize scripts Initialize to fail with err until reset with nil.
func (mc *MockCapability) FailInitialize(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.initErr = err
}

// Calls returns a copy of every recorded exchange.
func (mc *MockCapability) Calls() []RecordedCall {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make([]RecordedCall, len(mc.calls))
	copy(out, mc.calls)

	return out
}

// CallCount returns the number of recorded exchanges.
func (mc *MockCapability) CallCount() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return len(mc.calls)
}

// Initialize implements Capability.
func (mc *MockCapability) Initialize(ctx context.Context) (*Session, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.initErr != nil {
		return nil, mc.initErr
	}

	return &Session{
		ID:            core.NewID(),
		Authenticated: true,
		Data:          map[string]any{"platform": mc.name},
	}, nil
}

// SendPrompt implements Capability.
func (mc *MockCapability) SendPrompt(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (*Response, error) {
	opts := SendOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	content, model, err := mc.beginExchange(prompt, opts)
	if err != nil {
		return nil, err
	}

	if mc.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mc.latency):
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return mc.finalResponse(prompt, content, model), nil
}

// StreamPrompt implements StreamingCapability by slicing the canned content
// into chunks.
func (mc *MockCapability) StreamPrompt(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (<-chan *Response, <-chan error) {
	opts := SendOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	out := make(chan *Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		content, model, err := mc.beginExchange(prompt, opts)
		if err != nil {
			errCh <- err
			return
		}

		if mc.latency > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(mc.latency):
			}
		}

		size := mc.chunkSize
		if size <= 0 {
			size = len(content)
		}

		for i := 0; i < len(content); i += size {
			end := i + size
			if end > len(content) {
				end = len(content)
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- &Response{Content: content[i:end], Model: model, Partial: true}:
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- mc.finalResponse(prompt, content, model):
		}
	}()

	return out, errCh
}

// SwitchModel implements Capability. Unknown models are logged and ignored.
func (mc *MockCapability) SwitchModel(modelID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if modelID == "" {
		return
	}

	if mc.known != nil && !mc.known[modelID] {
		mc.logger.Warn("Ignoring unsupported model", "platform", mc.name, "model", modelID)
		return
	}

	mc.model = modelID
}

// CurrentModel returns the model subsequent calls will report.
func (mc *MockCapability) CurrentModel() string {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return mc.model
}

// Close implements Capability. Closing twice is allowed.
func (mc *MockCapability) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.closed = true

	return nil
}

// beginExchange records the call, consumes scripted failures, and resolves
// the canned content and effective model.
func (mc *MockCapability) beginExchange(prompt string, opts SendOptions) (string, string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.calls = append(mc.calls, RecordedCall{Prompt: prompt, Options: opts, Time: time.Now().UTC()})

	if mc.closed {
		return "", "", fmt.Errorf("platform %s: capability closed", mc.name)
	}

	if mc.failLeft > 0 {
		mc.failLeft--

		err := mc.failErr
		if err == nil {
			err = fmt.Errorf("platform %s: scripted failure", mc.name)
		}

		return "", "", err
	}

	content, ok := mc.responses[prompt]
	if !ok {
		content = fmt.Sprintf("Mock response to: %s", prompt)
	}

	model := mc.model
	if opts.Model != "" {
		model = opts.Model
	}

	return content, model, nil
}

func (mc *MockCapability) finalResponse(prompt, content, model string) *Response {
	in := estimateTokens(prompt)
	out := estimateTokens(content)

	return &Response{
		Content:      content,
		Model:        model,
		FinishReason: "stop",
		Usage: TokenUsage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}
}

// estimateTokens approximates a token count at four bytes per token.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}

	n := len(s) / 4
	if n == 0 {
		n = 1
	}

	return n
}
