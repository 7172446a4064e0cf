// Package promptmux provides a high-level façade over the task-orchestration
// core: a bounded agent pool, priority messaging, model selection and the
// query boundary that fans one prompt out to several AI platforms. Most
// applications interact with this package by:
//  1. Creating a PromptMux via New() (optionally overriding defaults)
//  2. Creating agents around platform capabilities, or letting Query
//     create one agent per platform on demand
//  3. Assigning tasks, running workflows, or streaming queries
//
// The façade delegates pool management to orchestrator.Orchestrator and
// query fan-out to runner.Runner while keeping setup concise. All defaults
// are safe for local development and testing: an in-memory queue and bus,
// the built-in model catalog, and mock capabilities for unknown platforms.
package promptmux

import (
	"context"
	"time"

	"github.com/promptmux/promptmux/agent"
	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/model"
	"github.com/promptmux/promptmux/orchestrator"
	"github.com/promptmux/promptmux/platform"
	"github.com/promptmux/promptmux/queue"
	"github.com/promptmux/promptmux/runner"
)

// Options configures a PromptMux instance.
type Options struct {
	// MaxConcurrentAgents caps the agent pool (default 5).
	MaxConcurrentAgents int

	// DefaultTimeout bounds a single capability attempt (default 30s).
	DefaultTimeout time.Duration

	// RetryPolicy applies to every created agent.
	RetryPolicy agent.RetryPolicy

	// DefaultModel is assigned to agents created without a model.
	DefaultModel string

	// Templates overlay the built-in system prompt templates.
	Templates agent.Templates

	// HistoryLimit bounds per-agent history (default 20).
	HistoryLimit int

	// RegistrySource loads and saves the model registry. Defaults to the
	// built-in catalog.
	RegistrySource model.RegistrySource

	// MaxMailboxSize caps each mailbox (default 1000).
	MaxMailboxSize int

	// CapabilityFactory resolves platform names for Query. Defaults to
	// mock capabilities.
	CapabilityFactory runner.CapabilityFactory

	// EventBuffer sets the per-query event channel capacity.
	EventBuffer int

	// MaxModelCalls caps capability dispatches per query.
	MaxModelCalls int

	// LogLevel tunes the default logger. Ignored when Logger is set.
	LogLevel logging.LogLevel

	// Logger overrides the default text logger at LogLevel.
	Logger logging.Logger
}

// WithLogLevel sets the level of the default logger.
func WithLogLevel(level logging.LogLevel) func(o *Options) {
	return func(o *Options) {
		o.LogLevel = level
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMaxConcurrentAgents caps the agent pool.
func WithMaxConcurrentAgents(n int) func(o *Options) {
	return func(o *Options) {
		o.MaxConcurrentAgents = n
	}
}

// WithDefaultModel sets the model assigned to agents created without one.
func WithDefaultModel(modelID string) func(o *Options) {
	return func(o *Options) {
		o.DefaultModel = modelID
	}
}

// WithRegistrySource loads the model registry from a custom source.
func WithRegistrySource(source model.RegistrySource) func(o *Options) {
	return func(o *Options) {
		o.RegistrySource = source
	}
}

// WithCapabilityFactory resolves platform names to real capabilities.
func WithCapabilityFactory(factory runner.CapabilityFactory) func(o *Options) {
	return func(o *Options) {
		o.CapabilityFactory = factory
	}
}

// PromptMux aggregates the queue, model registry, event bus, agent pool
// and query runner behind one entry point.
type PromptMux struct {
	queue  *queue.MessageQueue
	models *model.Manager
	bus    *core.Bus
	orch   *orchestrator.Orchestrator
	runner *runner.Runner
	logger logging.Logger
}

// New assembles a PromptMux with optional overrides. Unset options fall
// back to in-memory defaults suitable for development and tests.
func New(optFns ...func(o *Options)) *PromptMux {
	opts := Options{
		LogLevel: logging.LogLevelInfo,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(opts.LogLevel, "text", false)
	}

	bus := core.NewBus()

	q := queue.New(func(o *queue.Options) {
		o.Logger = logger
		if opts.MaxMailboxSize > 0 {
			o.MaxMailboxSize = opts.MaxMailboxSize
		}
	})

	models := model.NewManager(func(o *model.Options) {
		o.Source = opts.RegistrySource
		o.Logger = logger
	})

	orch := orchestrator.New(q, models, func(o *orchestrator.Options) {
		o.MaxConcurrentAgents = opts.MaxConcurrentAgents
		o.DefaultTimeout = opts.DefaultTimeout
		if opts.RetryPolicy != (agent.RetryPolicy{}) {
			o.RetryPolicy = opts.RetryPolicy
		}
		o.DefaultModel = opts.DefaultModel
		o.Templates = opts.Templates
		o.HistoryLimit = opts.HistoryLimit
		o.Bus = bus
		o.Logger = logger
	})

	r := runner.New(orch, func(o *runner.Options) {
		o.CapabilityFactory = opts.CapabilityFactory
		o.EventBuffer = opts.EventBuffer
		if opts.MaxModelCalls > 0 {
			o.MaxModelCalls = opts.MaxModelCalls
		}
		o.Logger = logger
	})

	return &PromptMux{
		queue:  q,
		models: models,
		bus:    bus,
		orch:   orch,
		runner: r,
		logger: logger,
	}
}

// Orchestrator exposes the agent pool for direct use.
func (m *PromptMux) Orchestrator() *orchestrator.Orchestrator { return m.orch }

// Models exposes the model registry.
func (m *PromptMux) Models() *model.Manager { return m.models }

// Queue exposes the message queue shared by all agents.
func (m *PromptMux) Queue() *queue.MessageQueue { return m.queue }

// CreateAgent registers a new agent around a platform capability.
func (m *PromptMux) CreateAgent(ctx context.Context, cfg agent.Config, capability platform.Capability) (*agent.Agent, error) {
	return m.orch.CreateAgent(ctx, cfg, capability)
}

// RemoveAgent stops an agent and discards its mailbox.
func (m *PromptMux) RemoveAgent(id string) bool {
	return m.orch.RemoveAgent(id)
}

// AssignTask hands a prompt to a specific agent.
func (m *PromptMux) AssignTask(ctx context.Context, agentID, prompt string, optFns ...func(o *orchestrator.TaskOptions)) (*core.TaskResult, error) {
	return m.orch.AssignTask(ctx, agentID, prompt, optFns...)
}

// AssignTaskToAvailableAgent load-balances a prompt across idle agents of
// a type.
func (m *PromptMux) AssignTaskToAvailableAgent(ctx context.Context, agentType, prompt string, optFns ...func(o *orchestrator.TaskOptions)) (*core.TaskResult, error) {
	return m.orch.AssignTaskToAvailableAgent(ctx, agentType, prompt, optFns...)
}

// ExecuteWorkflow runs steps in order with result threading.
func (m *PromptMux) ExecuteWorkflow(ctx context.Context, steps []orchestrator.WorkflowStep) ([]*core.TaskResult, error) {
	return m.orch.ExecuteWorkflow(ctx, steps)
}

// CoordinateParallel dispatches tasks concurrently, preserving input order
// in the results.
func (m *PromptMux) CoordinateParallel(ctx context.Context, tasks []orchestrator.ParallelTask) ([]*core.TaskResult, error) {
	return m.orch.CoordinateParallel(ctx, tasks)
}

// GetStats aggregates pool, task and mailbox statistics.
func (m *PromptMux) GetStats() orchestrator.Stats {
	return m.orch.GetStats()
}

// Subscribe follows lifecycle and query events; no kinds means all.
// The returned function unsubscribes.
func (m *PromptMux) Subscribe(kinds ...core.EventKind) (<-chan core.Event, func()) {
	return m.bus.Subscribe(kinds...)
}

// Query fans a prompt out to the named platforms and streams events until
// the returned channel closes after query-complete.
func (m *PromptMux) Query(ctx context.Context, prompt string, platforms []string) (string, <-chan core.Event, error) {
	return m.runner.Run(ctx, prompt, platforms)
}

// QuerySync runs a query and drains its stream, returning all events in
// arrival order.
func (m *PromptMux) QuerySync(ctx context.Context, prompt string, platforms []string) (string, []core.Event, error) {
	queryID, eventsCh, err := m.runner.Run(ctx, prompt, platforms)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			return queryID, events, ctx.Err()
		case ev, ok := <-eventsCh:
			if !ok {
				return queryID, events, nil
			}
			events = append(events, ev)
		}
	}
}

// CancelQuery aborts an in-flight query by id.
func (m *PromptMux) CancelQuery(queryID string) error {
	return m.runner.Cancel(queryID)
}

// Close cancels in-flight queries, stops every agent and closes the bus.
func (m *PromptMux) Close() {
	m.runner.Close()
	m.orch.Shutdown()
	m.bus.Close()
}

// CollectResponses extracts the final response per platform from a drained
// event stream, mapping platform names to response text.
func CollectResponses(events []core.Event) map[string]string {
	out := make(map[string]string)
	for _, ev := range events {
		if ev.Kind != core.EventPlatformComplete {
			continue
		}
		if response, ok := ev.Data["response"].(string); ok {
			out[ev.Platform] = response
		}
	}
	return out
}
