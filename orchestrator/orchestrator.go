package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/promptmux/promptmux/agent"
	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/model"
	"github.com/promptmux/promptmux/platform"
	"github.com/promptmux/promptmux/queue"
)

// DefaultMaxConcurrentAgents caps the agent pool unless overridden.
const DefaultMaxConcurrentAgents = 5

// Options configure an Orchestrator.
type Options struct {
	// MaxConcurrentAgents caps the number of live agents. Zero or
	// negative means the default of 5; capacity is a hard ceiling, not a
	// queue.
	MaxConcurrentAgents int

	// DefaultTimeout bounds a single capability attempt for agents
	// created without an explicit Config.Timeout.
	DefaultTimeout time.Duration

	// RetryPolicy applies to every created agent unless its Config sets
	// MaxRetries explicitly.
	RetryPolicy agent.RetryPolicy

	// DefaultModel is assigned to agents created without a model.
	DefaultModel string

	// Templates overlay the built-in system prompt templates for all
	// created agents.
	Templates agent.Templates

	// HistoryLimit bounds each agent's retained history.
	HistoryLimit int

	// Bus receives agent lifecycle and task events. Optional.
	Bus *core.Bus

	// Logger receives orchestrator diagnostics.
	Logger logging.Logger
}

// TaskOptions adjust a single task assignment.
type TaskOptions struct {
	// Model overrides the agent's default model for this task.
	Model string

	// SystemPrompt overrides the agent's system prompt for this task.
	SystemPrompt string

	// Context is attached to the task for downstream inspection.
	Context map[string]any

	// Priority defaults to Normal.
	Priority core.Priority

	// RequesterID, when set, directs a task-response (or error) message
	// to that mailbox once the task finishes.
	RequesterID string

	// OnChunk receives streamed partial response content.
	OnChunk func(chunk string)
}

// WithModel overrides the model for one task.
func WithModel(modelID string) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.Model = modelID
	}
}

// WithSystemPrompt overrides the system prompt for one task.
func WithSystemPrompt(prompt string) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.SystemPrompt = prompt
	}
}

// WithPriority sets the task priority.
func WithPriority(p core.Priority) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.Priority = p
	}
}

// WithRequester routes the task outcome to a mailbox.
func WithRequester(requesterID string) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.RequesterID = requesterID
	}
}

// WithContext attaches free-form context to the task.
func WithContext(ctx map[string]any) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.Context = ctx
	}
}

// WithOnChunk forwards streamed partial content to fn.
func WithOnChunk(fn func(chunk string)) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.OnChunk = fn
	}
}

// Stats is an aggregate snapshot across the agent pool.
type Stats struct {
	TotalAgents    int            `json:"total_agents"`
	AgentsByType   map[string]int `json:"agents_by_type"`
	BusyAgents     int            `json:"busy_agents"`
	IdleAgents     int            `json:"idle_agents"`
	TasksCompleted int            `json:"tasks_completed"`
	TasksFailed    int            `json:"tasks_failed"`
	MailboxSizes   map[string]int `json:"mailbox_sizes"`
}

// Orchestrator owns a bounded pool of agents. It creates and removes them,
// and assigns tasks either directly or by load-balancing across idle agents
// of a type. All methods are safe for concurrent use.
//
// Task execution itself stays with the agents; the orchestrator never
// retries a task.
type Orchestrator struct {
	queue     *queue.MessageQueue
	models    *model.Manager
	bus       *core.Bus
	logger    logging.Logger
	templates agent.Templates

	maxAgents      int
	defaultTimeout time.Duration
	defaultModel   string
	policy         agent.RetryPolicy
	historyLimit   int

	mu     sync.RWMutex
	agents map[string]*agent.Agent
	// order preserves creation order so selection tie-breaks and listings
	// are deterministic despite map iteration.
	order []string
}

// New builds an orchestrator around a message queue and a model registry.
// A nil queue gets a private one; a nil registry disables cost accounting.
func New(q *queue.MessageQueue, models *model.Manager, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxConcurrentAgents: DefaultMaxConcurrentAgents,
		DefaultTimeout:      agent.DefaultTimeout,
		RetryPolicy:         agent.DefaultRetryPolicy(),
		HistoryLimit:        agent.DefaultHistoryLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentAgents <= 0 {
		opts.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = agent.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if q == nil {
		q = queue.New()
	}

	return &Orchestrator{
		queue:          q,
		models:         models,
		bus:            opts.Bus,
		logger:         opts.Logger,
		templates:      opts.Templates,
		maxAgents:      opts.MaxConcurrentAgents,
		defaultTimeout: opts.DefaultTimeout,
		defaultModel:   opts.DefaultModel,
		policy:         opts.RetryPolicy,
		historyLimit:   opts.HistoryLimit,
		agents:         make(map[string]*agent.Agent),
	}
}

// Queue exposes the message queue shared with the agents.
func (o *Orchestrator) Queue() *queue.MessageQueue { return o.queue }

// Models exposes the model registry, nil when none was configured.
func (o *Orchestrator) Models() *model.Manager { return o.models }

// Bus exposes the event bus, nil when none was configured.
func (o *Orchestrator) Bus() *core.Bus { return o.bus }

// CreateAgent registers a new agent bound to the given capability and
// initializes it. Unset Config fields get defaults: a generated id, the
// orchestrator's model, timeout and retry policy, and a type-appropriate
// system prompt.
//
// Creation fails with an AgentError on a duplicate id or when the pool is
// at capacity. If the capability fails to initialize, the agent stays
// registered in Error status and is returned together with the error;
// Initialize can be retried on it later.
func (o *Orchestrator) CreateAgent(ctx context.Context, cfg agent.Config, capability platform.Capability) (*agent.Agent, error) {
	const op = "orchestrator.CreateAgent"

	if capability == nil {
		return nil, core.NewAgentError(op, cfg.ID, errors.New("capability is required"))
	}

	if cfg.ID == "" {
		cfg.ID = core.NewID()
	}
	if cfg.Model == "" {
		cfg.Model = o.defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = o.defaultTimeout
	}

	o.mu.Lock()
	if _, exists := o.agents[cfg.ID]; exists {
		o.mu.Unlock()
		return nil, core.NewAgentError(op, cfg.ID, core.ErrAgentExists)
	}
	if len(o.agents) >= o.maxAgents {
		o.mu.Unlock()
		return nil, core.NewAgentError(op, cfg.ID, core.ErrCapacityReached)
	}

	a := agent.New(cfg, capability, func(ao *agent.Options) {
		ao.RetryPolicy = o.policy
		ao.HistoryLimit = o.historyLimit
		ao.Templates = o.templates
		ao.Registry = o.models
		ao.Queue = o.queue
		ao.Bus = o.bus
		ao.Logger = o.logger
	})

	o.agents[a.ID()] = a
	o.order = append(o.order, a.ID())
	o.mu.Unlock()

	o.logger.Info("Agent created",
		"agent_id", a.ID(), "agent_type", a.Type(), "model", a.Model())

	if err := a.Initialize(ctx); err != nil {
		o.logger.Error("Agent capability failed to initialize",
			"agent_id", a.ID(), "error", err)
		return a, err
	}

	return a, nil
}

// RemoveAgent stops the agent and discards its mailbox. Any in-flight task
// is abandoned; its result will still be recorded by the stopping agent but
// nothing further is accepted. Returns false for an unknown id.
func (o *Orchestrator) RemoveAgent(id string) bool {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	delete(o.agents, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	a.Stop()
	o.logger.Info("Agent removed", "agent_id", id)
	return true
}

// GetAgent looks up an agent by id.
func (o *Orchestrator) GetAgent(id string) (*agent.Agent, error) {
	o.mu.RLock()
	a, ok := o.agents[id]
	o.mu.RUnlock()

	if !ok {
		return nil, core.NewAgentError("orchestrator.GetAgent", id, core.ErrAgentNotFound)
	}
	return a, nil
}

// ListAgents returns all live agents in creation order.
func (o *Orchestrator) ListAgents() []*agent.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*agent.Agent, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.agents[id])
	}
	return out
}

// AgentCount returns the number of live agents.
func (o *Orchestrator) AgentCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.agents)
}

// AssignTask builds a fresh task and hands it to the named agent. The
// result carries success or failure; an error is returned only for caller
// mistakes (unknown agent, busy agent, stopped agent) and cancellation.
func (o *Orchestrator) AssignTask(ctx context.Context, agentID, prompt string, optFns ...func(o *TaskOptions)) (*core.TaskResult, error) {
	a, err := o.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	opts := applyTaskOptions(optFns)
	return a.ExecuteTask(ctx, newTask(agentID, prompt, opts), agentTaskOptions(opts)...)
}

// AssignTaskToAvailableAgent load-balances a task across idle agents of the
// given type, preferring the lowest running-average execution time with
// ties broken by creation order. Agents that turn busy between selection
// and dispatch are skipped. Fails with ErrNoAvailableAgent when no idle
// agent of the type exists or every candidate was lost to a race.
func (o *Orchestrator) AssignTaskToAvailableAgent(ctx context.Context, agentType, prompt string, optFns ...func(o *TaskOptions)) (*core.TaskResult, error) {
	const op = "orchestrator.AssignTaskToAvailableAgent"

	candidates := o.idleAgentsByType(agentType)
	if len(candidates) == 0 {
		return nil, core.NewAgentError(op, "", core.ErrNoAvailableAgent)
	}

	opts := applyTaskOptions(optFns)

	for _, a := range candidates {
		result, err := a.ExecuteTask(ctx, newTask(a.ID(), prompt, opts), agentTaskOptions(opts)...)
		if errors.Is(err, core.ErrAgentBusy) || errors.Is(err, core.ErrAgentStopped) {
			continue
		}
		return result, err
	}

	return nil, core.NewAgentError(op, "", core.ErrNoAvailableAgent)
}

// GetStats aggregates pool and task counters across all agents plus the
// queue's mailbox sizes.
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	agents := make([]*agent.Agent, 0, len(o.order))
	for _, id := range o.order {
		agents = append(agents, o.agents[id])
	}
	o.mu.RUnlock()

	stats := Stats{
		TotalAgents:  len(agents),
		AgentsByType: make(map[string]int),
	}

	for _, a := range agents {
		stats.AgentsByType[a.Type()]++

		switch a.Status() {
		case agent.StatusBusy:
			stats.BusyAgents++
		case agent.StatusIdle:
			stats.IdleAgents++
		}

		metrics := a.GetMetrics()
		stats.TasksCompleted += metrics.TasksCompleted
		stats.TasksFailed += metrics.TasksFailed
	}

	stats.MailboxSizes = o.queue.GetStats().PerRecipient
	return stats
}

// Shutdown stops every agent in creation order and empties the pool.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	agents := make([]*agent.Agent, 0, len(o.order))
	for _, id := range o.order {
		agents = append(agents, o.agents[id])
	}
	o.agents = make(map[string]*agent.Agent)
	o.order = nil
	o.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}

	o.logger.Info("Orchestrator shut down", "agents_stopped", len(agents))
}

// idleAgentsByType snapshots idle agents of a type sorted by average
// execution time ascending; the sort is stable so equal averages keep
// creation order.
func (o *Orchestrator) idleAgentsByType(agentType string) []*agent.Agent {
	o.mu.RLock()
	candidates := make([]*agent.Agent, 0, len(o.order))
	for _, id := range o.order {
		a := o.agents[id]
		if a.Type() == agentType && a.IsAvailable() {
			candidates = append(candidates, a)
		}
	}
	o.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].GetMetrics().AvgExecutionTime < candidates[j].GetMetrics().AvgExecutionTime
	})

	return candidates
}

func applyTaskOptions(optFns []func(o *TaskOptions)) TaskOptions {
	opts := TaskOptions{Priority: core.PriorityNormal}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func newTask(agentID, prompt string, opts TaskOptions) *core.Task {
	task := core.NewTask(agentID, prompt)
	task.Model = opts.Model
	task.SystemPrompt = opts.SystemPrompt
	task.Priority = opts.Priority
	task.RequesterID = opts.RequesterID
	if len(opts.Context) > 0 {
		task.Context = make(map[string]any, len(opts.Context))
		for k, v := range opts.Context {
			task.Context[k] = v
		}
	}
	return task
}

func agentTaskOptions(opts TaskOptions) []func(o *agent.TaskOptions) {
	if opts.OnChunk == nil {
		return nil
	}
	return []func(o *agent.TaskOptions){agent.WithOnChunk(opts.OnChunk)}
}
