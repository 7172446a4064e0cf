package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/promptmux/promptmux/agent"
	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/orchestrator"
	"github.com/promptmux/promptmux/platform"
)

// DefaultEventBuffer is the event channel capacity per query.
const DefaultEventBuffer = 100

// DefaultMaxModelCalls caps capability dispatches per query.
const DefaultMaxModelCalls = 100

// CapabilityFactory builds the platform capability behind a platform name.
type CapabilityFactory func(platformName string) (platform.Capability, error)

// Options configure a Runner.
type Options struct {
	// CapabilityFactory resolves platform names to capabilities. The
	// default hands out MockCapabilities named after the platform, which
	// keeps examples and tests self-contained.
	CapabilityFactory CapabilityFactory

	// EventBuffer sets the per-query event channel capacity.
	EventBuffer int

	// MaxModelCalls caps capability dispatches per query across all of
	// its platforms. Zero means unlimited.
	MaxModelCalls int

	// Logger receives runner diagnostics.
	Logger logging.Logger
}

// Runner is the query boundary: it fans one prompt out to a set of
// platforms and streams the combined progress back as an ordered event
// sequence. Each platform is served by one agent, created on demand
// through the orchestrator and reused across queries.
//
// Per query the stream delivers query-start first and query-complete last;
// in between every platform contributes platform-start, zero or more
// response-chunks, and a closing platform-complete or platform-error.
// Events are mirrored onto the orchestrator's bus when one is configured.
type Runner struct {
	orch    *orchestrator.Orchestrator
	factory CapabilityFactory
	logger  logging.Logger

	eventBuffer   int
	maxModelCalls int

	mu            sync.Mutex
	activeQueries map[string]context.CancelFunc
	closed        bool
}

// New builds a runner on top of an orchestrator.
func New(orch *orchestrator.Orchestrator, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBuffer:   DefaultEventBuffer,
		MaxModelCalls: DefaultMaxModelCalls,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.CapabilityFactory == nil {
		opts.CapabilityFactory = func(platformName string) (platform.Capability, error) {
			return platform.NewMockCapability(func(o *platform.MockOptions) {
				o.Name = platformName
			}), nil
		}
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		orch:          orch,
		factory:       opts.CapabilityFactory,
		logger:        opts.Logger,
		eventBuffer:   opts.EventBuffer,
		maxModelCalls: opts.MaxModelCalls,
		activeQueries: make(map[string]context.CancelFunc),
	}
}

// Run starts a query: the prompt goes to every named platform
// concurrently and the returned channel streams progress events until it
// is closed after query-complete. Cancelling ctx, or calling Cancel with
// the returned query id, stops the query; remaining events are dropped
// and the channel closes without a query-complete.
func (r *Runner) Run(ctx context.Context, prompt string, platforms []string) (string, <-chan core.Event, error) {
	if prompt == "" {
		return "", nil, errors.New("prompt is required")
	}
	if len(platforms) == 0 {
		return "", nil, errors.New("at least one platform is required")
	}

	queryID := core.NewID()
	events := make(chan core.Event, r.eventBuffer)

	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return "", nil, errors.New("runner is closed")
	}
	r.activeQueries[queryID] = cancel
	r.mu.Unlock()

	r.logger.Info("Query started",
		"query_id", queryID, "platforms", len(platforms))

	go r.execute(ctx, cancel, queryID, prompt, platforms, events)

	return queryID, events, nil
}

// Cancel aborts an in-flight query. Unknown ids (including already
// finished queries) fail with ErrQueryNotFound.
func (r *Runner) Cancel(queryID string) error {
	r.mu.Lock()
	cancel, ok := r.activeQueries[queryID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("cancel query %s: %w", queryID, core.ErrQueryNotFound)
	}

	cancel()
	r.logger.Info("Query cancelled", "query_id", queryID)
	return nil
}

// ActiveQueries returns the ids of in-flight queries, sorted.
func (r *Runner) ActiveQueries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.activeQueries))
	for id := range r.activeQueries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every in-flight query and rejects new ones. Idempotent.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancels := make([]context.CancelFunc, 0, len(r.activeQueries))
	for _, cancel := range r.activeQueries {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (r *Runner) execute(ctx context.Context, cancel context.CancelFunc, queryID, prompt string, platforms []string, events chan<- core.Event) {
	defer func() {
		close(events)
		r.mu.Lock()
		delete(r.activeQueries, queryID)
		r.mu.Unlock()
		cancel()
	}()

	r.emit(ctx, events, core.NewQueryEvent(core.EventQueryStart, queryID))

	limiter := core.NewCallLimiter(r.maxModelCalls)

	var wg sync.WaitGroup
	for _, name := range platforms {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runPlatform(ctx, queryID, prompt, name, limiter, events)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		r.logger.Info("Query aborted", "query_id", queryID)
		return
	}

	r.emit(ctx, events, core.NewQueryEvent(core.EventQueryComplete, queryID))
	r.logger.Info("Query completed",
		"query_id", queryID, "capability_calls", limiter.Count())
}

// runPlatform drives one platform of a query: platform-start, streamed
// chunks, then platform-complete or platform-error.
func (r *Runner) runPlatform(ctx context.Context, queryID, prompt, platformName string, limiter *core.CallLimiter, events chan<- core.Event) {
	r.emit(ctx, events, core.NewPlatformEvent(core.EventPlatformStart, queryID, platformName))

	a, err := r.ensureAgent(ctx, platformName)
	if err != nil {
		r.emitPlatformError(ctx, events, queryID, platformName, err.Error())
		return
	}

	if err := limiter.Increment(); err != nil {
		r.emitPlatformError(ctx, events, queryID, platformName, err.Error())
		return
	}

	onChunk := func(chunk string) {
		r.emit(ctx, events, core.NewChunkEvent(queryID, platformName, chunk))
	}

	result, err := r.orch.AssignTask(ctx, a.ID(), prompt, orchestrator.WithOnChunk(onChunk))
	switch {
	case err != nil:
		r.emitPlatformError(ctx, events, queryID, platformName, err.Error())
	case !result.Success:
		r.emitPlatformError(ctx, events, queryID, platformName, result.Error)
	default:
		ev := core.NewPlatformEvent(core.EventPlatformComplete, queryID, platformName)
		ev.Data = map[string]any{
			"response":    result.Response,
			"model":       result.Model,
			"duration_ms": result.Duration.Milliseconds(),
		}
		r.emit(ctx, events, ev)
	}
}

// ensureAgent finds the platform's agent or creates it through the
// orchestrator, so capacity limits apply to platforms too. An agent left
// in Error status by an earlier failure gets one fresh Initialize.
func (r *Runner) ensureAgent(ctx context.Context, platformName string) (*agent.Agent, error) {
	a, err := r.orch.GetAgent(platformName)
	if errors.Is(err, core.ErrAgentNotFound) {
		capability, factoryErr := r.factory(platformName)
		if factoryErr != nil {
			return nil, fmt.Errorf("capability for platform %s: %w", platformName, factoryErr)
		}

		a, err = r.orch.CreateAgent(ctx, agent.Config{
			ID:       platformName,
			Name:     platformName,
			Type:     "platform",
			Metadata: map[string]string{"platform": platformName},
		}, capability)
		if errors.Is(err, core.ErrAgentExists) {
			// Lost a creation race; the winner's agent serves us.
			return r.orch.GetAgent(platformName)
		}
	}
	if err != nil {
		return nil, err
	}

	if a.Status() == agent.StatusError {
		if err := a.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (r *Runner) emitPlatformError(ctx context.Context, events chan<- core.Event, queryID, platformName, errText string) {
	ev := core.NewPlatformEvent(core.EventPlatformError, queryID, platformName)
	ev.Data = map[string]any{"error": errText}

	r.logger.Warn("Platform failed",
		"query_id", queryID, "platform", platformName, "error", errText)

	r.emit(ctx, events, ev)
}

// emit mirrors the event onto the bus and delivers it to the query
// stream, giving up once the query context ends.
func (r *Runner) emit(ctx context.Context, events chan<- core.Event, ev core.Event) {
	if bus := r.orch.Bus(); bus != nil {
		bus.Publish(ev)
	}

	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
