package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/model"
	"github.com/promptmux/promptmux/platform"
	"github.com/promptmux/promptmux/queue"
)

// Options configure an Agent beyond its Config.
type Options struct {
	// RetryPolicy shapes retries around capability failures.
	RetryPolicy RetryPolicy

	// HistoryLimit bounds the retained prompt/response history. The
	// default keeps the last 20 exchanges; non-positive keeps everything.
	HistoryLimit int

	// Templates overlay the built-in system prompt templates.
	Templates Templates

	// Registry resolves model descriptors for cost accounting. Optional.
	Registry *model.Manager

	// Queue delivers requester replies and feeds ProcessMessages. The
	// agent registers its own mailbox on construction. Optional.
	Queue *queue.MessageQueue

	// Bus receives lifecycle events. Optional.
	Bus *core.Bus

	// Logger receives agent diagnostics.
	Logger logging.Logger
}

// TaskOptions adjust one ExecuteTask call.
type TaskOptions struct {
	// OnChunk receives partial response content as it streams. Without a
	// StreamingCapability the final response arrives as a single chunk.
	OnChunk func(chunk string)
}

// WithOnChunk forwards streamed partial content to fn.
func WithOnChunk(fn func(chunk string)) func(o *TaskOptions) {
	return func(o *TaskOptions) {
		o.OnChunk = fn
	}
}

// HistoryEntry is one retained prompt/response exchange.
type HistoryEntry struct {
	TaskID    string    `json:"task_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics aggregate an agent's execution counters. AvgExecutionTime is the
// running mean over successful tasks only.
type Metrics struct {
	TasksCompleted   int           `json:"tasks_completed"`
	TasksFailed      int           `json:"tasks_failed"`
	TotalTokensUsed  int           `json:"total_tokens_used"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	TotalCost        float64       `json:"total_cost"`
}

// Agent executes prompt tasks against one platform capability, one task at
// a time. All methods are safe for concurrent use; a second ExecuteTask
// while one is in flight loses the Idle->Busy race and fails with
// ErrAgentBusy instead of queueing.
type Agent struct {
	id      string
	name    string
	typ     string
	capTags []string
	meta    map[string]string
	timeout time.Duration
	policy  RetryPolicy

	capability platform.Capability
	registry   *model.Manager
	queue      *queue.MessageQueue
	bus        *core.Bus
	logger     logging.Logger

	status atomic.Int32

	mu           sync.RWMutex
	model        string
	systemPrompt string
	session      *platform.Session
	currentTask  *core.Task
	history      []HistoryEntry
	historyLimit int
	contextData  map[string]any
	metrics      Metrics
}

// New constructs an agent bound to a platform capability, applying defaults
// for any Config field left unset: generated id, "general" type, a
// type-appropriate system prompt, 30s attempt timeout, standard retries.
func New(cfg Config, capability platform.Capability, optFns ...func(o *Options)) *Agent {
	opts := Options{
		RetryPolicy:  DefaultRetryPolicy(),
		HistoryLimit: DefaultHistoryLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	id := cfg.ID
	if id == "" {
		id = core.NewID()
	}

	typ := cfg.Type
	if typ == "" {
		typ = "general"
	}

	name := cfg.Name
	if name == "" {
		name = typ + "-agent"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	policy := opts.RetryPolicy.withDefaults()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}

	templates := DefaultTemplates()
	if opts.Templates != nil {
		templates = templates.Merge(opts.Templates)
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		rendered, err := templates.Render(typ, name)
		if err != nil {
			logger.Warn("System prompt template failed", "agent_id", id, "type", typ, "error", err)
		} else {
			systemPrompt = rendered
		}
	}

	capTags := make([]string, len(cfg.Capabilities))
	copy(capTags, cfg.Capabilities)

	meta := make(map[string]string, len(cfg.Metadata))
	for k, v := range cfg.Metadata {
		meta[k] = v
	}

	a := &Agent{
		id:           id,
		name:         name,
		typ:          typ,
		capTags:      capTags,
		meta:         meta,
		timeout:      timeout,
		policy:       policy,
		capability:   capability,
		registry:     opts.Registry,
		queue:        opts.Queue,
		bus:          opts.Bus,
		logger:       logger,
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		historyLimit: opts.HistoryLimit,
		contextData:  make(map[string]any),
	}

	if a.queue != nil {
		a.queue.Register(a.id)
	}

	return a
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's human-readable name.
func (a *Agent) Name() string { return a.name }

// Type returns the agent's specialization tag.
func (a *Agent) Type() string { return a.typ }

// Capabilities returns a copy of the agent's capability tags.
func (a *Agent) Capabilities() []string {
	out := make([]string, len(a.capTags))
	copy(out, a.capTags)

	return out
}

// HasCapability reports whether the agent carries the given tag.
func (a *Agent) HasCapability(tag string) bool {
	for _, t := range a.capTags {
		if t == tag {
			return true
		}
	}

	return false
}

// Metadata returns a copy of the agent's metadata labels.
func (a *Agent) Metadata() map[string]string {
	out := make(map[string]string, len(a.meta))
	for k, v := range a.meta {
		out[k] = v
	}

	return out
}

// Status returns the current lifecycle state.
func (a *Agent) Status() Status {
	return Status(a.status.Load())
}

// IsBusy reports whether a task is in flight.
func (a *Agent) IsBusy() bool {
	return a.Status() == StatusBusy
}

// IsAvailable reports whether the agent can accept a task right now.
func (a *Agent) IsAvailable() bool {
	return a.Status() == StatusIdle
}

// Model returns the current default model id.
func (a *Agent) Model() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.model
}

// SystemPrompt returns the current system prompt.
func (a *Agent) SystemPrompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.systemPrompt
}

// Session returns the platform session from the last successful
// Initialize, or nil before one.
func (a *Agent) Session() *platform.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.session
}

// CurrentTask returns the task in flight, or nil when idle.
func (a *Agent) CurrentTask() *core.Task {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.currentTask
}

// Initialize establishes the platform session. On failure the agent enters
// StatusError and rejects tasks until a later Initialize succeeds.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.Status() == StatusStopped {
		return core.NewAgentError("agent.Initialize", a.id, core.ErrAgentStopped)
	}

	sess, err := a.capability.Initialize(ctx)
	if err != nil {
		a.setStatusUnlessStopped(StatusError)
		a.logger.Error("Agent initialization failed", "agent_id", a.id, "error", err)

		return core.NewAgentError("agent.Initialize", a.id, err)
	}

	a.mu.Lock()
	a.session = sess
	a.mu.Unlock()

	a.setStatusUnlessStopped(StatusIdle)

	a.publish(core.NewAgentEvent(core.EventAgentStarted, a.id))
	a.logger.Info("Agent initialized", "agent_id", a.id, "name", a.name, "type", a.typ)

	return nil
}

// Stop shuts the agent down and discards its mailbox. Terminal; an
// in-flight task finishes but its agent stays Stopped. Safe to call twice.
func (a *Agent) Stop() {
	prev := Status(a.status.Swap(int32(StatusStopped)))
	if prev == StatusStopped {
		return
	}

	if a.queue != nil {
		a.queue.Unregister(a.id)
	}

	a.publish(core.NewAgentEvent(core.EventAgentStopped, a.id))
	a.logger.Info("Agent stopped", "agent_id", a.id)
}

// ExecuteTask runs one task through the capability with retries. Capability
// failures are recovered into the result (Success=false) rather than
// returned; the error value reports caller mistakes (busy, stopped, nil
// task) and context cancellation only.
func (a *Agent) ExecuteTask(ctx context.Context, task *core.Task, optFns ...func(o *TaskOptions)) (*core.TaskResult, error) {
	if task == nil {
		return nil, core.NewAgentError("agent.ExecuteTask", a.id, errors.New("task is required"))
	}

	if err := a.acquire("agent.ExecuteTask", StatusIdle); err != nil {
		return nil, err
	}
	defer a.transition(StatusBusy, StatusIdle)

	opts := TaskOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return a.run(ctx, task, opts)
}

// SendPrompt is a stateless one-off exchange bypassing the task, retry and
// metrics machinery. The agent's model and system prompt apply unless
// overridden per call.
func (a *Agent) SendPrompt(ctx context.Context, prompt string, optFns ...func(o *platform.SendOptions)) (*platform.Response, error) {
	if a.Status() == StatusStopped {
		return nil, core.NewAgentError("agent.SendPrompt", a.id, core.ErrAgentStopped)
	}

	a.mu.RLock()
	modelID := a.model
	systemPrompt := a.systemPrompt
	a.mu.RUnlock()

	fns := sendOptions(modelID, systemPrompt)
	fns = append(fns, optFns...)

	return a.capability.SendPrompt(ctx, prompt, fns...)
}

// SwitchModel changes the default model for subsequent tasks and asks the
// capability to follow, best-effort.
func (a *Agent) SwitchModel(modelID string) {
	if modelID == "" {
		return
	}

	if a.registry != nil && !a.registry.HasModel(modelID) {
		a.logger.Warn("Switching to a model missing from the registry", "agent_id", a.id, "model", modelID)
	}

	a.mu.Lock()
	a.model = modelID
	a.mu.Unlock()

	a.capability.SwitchModel(modelID)
	a.logger.Info("Agent model switched", "agent_id", a.id, "model", modelID)
}

// UpdateSystemPrompt replaces the system prompt for subsequent tasks.
func (a *Agent) UpdateSystemPrompt(prompt string) {
	a.mu.Lock()
	a.systemPrompt = prompt
	a.mu.Unlock()
}

// ProcessMessages drains task-request messages from the agent's mailbox and
// executes each as a task, replying to the sender. The agent reports
// StatusWaiting while draining. Results come back in delivery order; nil
// when the agent has no queue or is not idle.
func (a *Agent) ProcessMessages(ctx context.Context) []*core.TaskResult {
	if a.queue == nil {
		return nil
	}

	if !a.transition(StatusIdle, StatusWaiting) {
		return nil
	}
	defer a.transition(StatusWaiting, StatusIdle)

	msgs := a.queue.Receive(a.id, queue.WithType(core.MessageTaskRequest))
	if len(msgs) == 0 {
		return nil
	}

	a.logger.Debug("Draining mailbox", "agent_id", a.id, "messages", len(msgs))

	results := make([]*core.TaskResult, 0, len(msgs))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}

		prompt, _ := msg.Payload["prompt"].(string)
		if prompt == "" {
			a.logger.Warn("Dropping task request without prompt",
				"agent_id", a.id, "message_id", msg.ID, "sender_id", msg.SenderID)
			continue
		}

		task := core.NewTask(a.id, prompt)
		task.Priority = msg.Priority
		task.RequesterID = msg.SenderID
		if modelID, ok := msg.Payload["model"].(string); ok {
			task.Model = modelID
		}
		if sysPrompt, ok := msg.Payload["system_prompt"].(string); ok {
			task.SystemPrompt = sysPrompt
		}

		if !a.transition(StatusWaiting, StatusBusy) {
			break
		}
		result, _ := a.run(ctx, task, TaskOptions{})
		a.transition(StatusBusy, StatusWaiting)

		results = append(results, result)
	}

	return results
}

// GetHistory returns a copy of the retained prompt/response history.
func (a *Agent) GetHistory() []HistoryEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]HistoryEntry, len(a.history))
	copy(out, a.history)

	return out
}

// ClearHistory drops the retained history.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = nil
}

// AddContext stores a shared context value for later retrieval.
func (a *Agent) AddContext(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.contextData[key] = value
}

// GetContext returns a shared context value.
func (a *Agent) GetContext(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.contextData[key]

	return v, ok
}

// ClearContext drops all shared context values.
func (a *Agent) ClearContext() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.contextData = make(map[string]any)
}

// GetMetrics returns a snapshot of the agent's counters.
func (a *Agent) GetMetrics() Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.metrics
}

// run drives one task to a terminal status. The caller holds StatusBusy.
func (a *Agent) run(ctx context.Context, task *core.Task, opts TaskOptions) (*core.TaskResult, error) {
	start := time.Now()

	a.mu.Lock()
	if task.AgentID == "" {
		task.AgentID = a.id
	}
	a.currentTask = task
	modelID := a.model
	systemPrompt := a.systemPrompt
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.currentTask = nil
		a.mu.Unlock()
	}()

	if task.Model != "" {
		modelID = task.Model
	}
	if task.SystemPrompt != "" {
		systemPrompt = task.SystemPrompt
	}

	task.SetStatus(core.TaskInProgress)
	a.publish(core.NewTaskEvent(core.EventTaskStarted, a.id, task.ID))
	a.logger.Debug("Task started", "agent_id", a.id, "task_id", task.ID, "model", modelID, "priority", task.Priority.String())

	resp, attempts, err := a.attempt(ctx, task.Prompt, modelID, systemPrompt, opts)

	if err != nil && ctx.Err() != nil {
		result := &core.TaskResult{
			Success:  false,
			Duration: time.Since(start),
			Error:    ctx.Err().Error(),
			Metadata: map[string]any{"attempts": attempts, "cancelled": true},
		}

		task.Result = result
		task.SetStatus(core.TaskCancelled)

		a.publish(core.NewTaskEvent(core.EventTaskFailed, a.id, task.ID))
		a.logger.Warn("Task cancelled", "agent_id", a.id, "task_id", task.ID, "attempts", attempts)

		return result, ctx.Err()
	}

	if err != nil {
		result := &core.TaskResult{
			Success:  false,
			Duration: time.Since(start),
			Error:    err.Error(),
			Metadata: map[string]any{"attempts": attempts},
		}

		task.Complete(result)
		a.recordFailure()
		a.notifyRequester(task, result)

		a.publish(core.NewTaskEvent(core.EventTaskFailed, a.id, task.ID))
		a.logger.Error("Task failed", "agent_id", a.id, "task_id", task.ID, "attempts", attempts, "error", err)

		return result, nil
	}

	resultModel := resp.Model
	if resultModel == "" {
		resultModel = modelID
	}

	result := &core.TaskResult{
		Success:    true,
		Response:   resp.Content,
		Model:      resultModel,
		Duration:   time.Since(start),
		TokensUsed: resp.Usage.TotalTokens,
		Metadata:   map[string]any{"attempts": attempts},
	}
	if resp.FinishReason != "" {
		result.Metadata["finish_reason"] = resp.FinishReason
	}

	task.Complete(result)
	a.recordSuccess(result.Duration, resp.Usage, resultModel)
	a.appendHistory(HistoryEntry{
		TaskID:    task.ID,
		Prompt:    task.Prompt,
		Response:  resp.Content,
		Model:     resultModel,
		Timestamp: time.Now().UTC(),
	})
	a.notifyRequester(task, result)

	a.publish(core.NewTaskEvent(core.EventTaskCompleted, a.id, task.ID))
	a.logger.Info("Task completed",
		"agent_id", a.id,
		"task_id", task.ID,
		"attempts", attempts,
		"duration", result.Duration,
		"tokens", result.TokensUsed,
	)

	return result, nil
}

// attempt runs the retry loop: MaxRetries+1 attempts, each bounded by the
// agent timeout, with exponential backoff between them.
func (a *Agent) attempt(ctx context.Context, prompt, modelID, systemPrompt string, opts TaskOptions) (*platform.Response, int, error) {
	maxAttempts := a.policy.MaxRetries + 1

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		resp, err := a.exchange(attemptCtx, prompt, modelID, systemPrompt, opts)
		cancel()

		if err == nil {
			return resp, attempt + 1, nil
		}

		lastErr = err
		a.logger.Warn("Task attempt failed",
			"agent_id", a.id,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts-1 {
			if err := sleepContext(ctx, a.policy.Delay(attempt)); err != nil {
				return nil, attempt + 1, err
			}
		}
	}

	return nil, maxAttempts, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// exchange performs one capability call, streaming when the caller wants
// chunks and the capability supports it.
func (a *Agent) exchange(ctx context.Context, prompt, modelID, systemPrompt string, opts TaskOptions) (*platform.Response, error) {
	sendOpts := sendOptions(modelID, systemPrompt)

	if opts.OnChunk == nil {
		return a.capability.SendPrompt(ctx, prompt, sendOpts...)
	}

	sc, ok := a.capability.(platform.StreamingCapability)
	if !ok {
		resp, err := a.capability.SendPrompt(ctx, prompt, sendOpts...)
		if err != nil {
			return nil, err
		}

		opts.OnChunk(resp.Content)

		return resp, nil
	}

	respCh, errCh := sc.StreamPrompt(ctx, prompt, sendOpts...)

	var final *platform.Response
	for resp := range respCh {
		if resp.Partial {
			opts.OnChunk(resp.Content)
			continue
		}

		final = resp
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	if final == nil {
		return nil, errors.New("stream ended without a final response")
	}

	return final, nil
}

func (a *Agent) acquire(op string, from Status) error {
	if a.transition(from, StatusBusy) {
		return nil
	}

	switch a.Status() {
	case StatusStopped:
		return core.NewAgentError(op, a.id, core.ErrAgentStopped)
	case StatusError:
		return core.NewAgentError(op, a.id, core.ErrAgentNotReady)
	default:
		return core.NewAgentError(op, a.id, core.ErrAgentBusy)
	}
}

func (a *Agent) transition(from, to Status) bool {
	return a.status.CompareAndSwap(int32(from), int32(to))
}

// setStatusUnlessStopped moves to s unless the agent was stopped meanwhile.
func (a *Agent) setStatusUnlessStopped(s Status) {
	for {
		cur := a.status.Load()
		if cur == int32(StatusStopped) || cur == int32(s) {
			return
		}

		if a.status.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (a *Agent) recordSuccess(dur time.Duration, usage platform.TokenUsage, modelID string) {
	var cost float64
	if a.registry != nil && modelID != "" {
		if desc, err := a.registry.GetModel(modelID); err == nil {
			cost = desc.EstimateCost(usage.InputTokens, usage.OutputTokens)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TasksCompleted++
	a.metrics.TotalTokensUsed += usage.TotalTokens
	a.metrics.TotalCost += cost

	// Incremental mean over successful tasks.
	n := time.Duration(a.metrics.TasksCompleted)
	a.metrics.AvgExecutionTime += (dur - a.metrics.AvgExecutionTime) / n
}

func (a *Agent) recordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TasksFailed++
}

func (a *Agent) appendHistory(entry HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, entry)
	if a.historyLimit > 0 && len(a.history) > a.historyLimit {
		a.history = a.history[len(a.history)-a.historyLimit:]
	}
}

func (a *Agent) notifyRequester(task *core.Task, result *core.TaskResult) {
	if a.queue == nil || task.RequesterID == "" {
		return
	}

	var err error
	if result.Success {
		_, err = a.queue.SendTaskResponse(a.id, task.RequesterID, task.ID, result)
	} else {
		_, err = a.queue.SendError(a.id, task.RequesterID, task.ID, result.Error)
	}

	if err != nil {
		a.logger.Warn("Requester notification failed",
			"agent_id", a.id,
			"task_id", task.ID,
			"requester_id", task.RequesterID,
			"error", err,
		)
	}
}

func (a *Agent) publish(ev core.Event) {
	if a.bus == nil {
		return
	}

	a.bus.Publish(ev)
}

func sendOptions(modelID, systemPrompt string) []func(o *platform.SendOptions) {
	var fns []func(o *platform.SendOptions)

	if modelID != "" {
		fns = append(fns, platform.WithModel(modelID))
	}
	if systemPrompt != "" {
		fns = append(fns, platform.WithSystemPrompt(systemPrompt))
	}

	return fns
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
