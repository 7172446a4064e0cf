package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptmux/promptmux/agent"
	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/platform"
	"github.com/promptmux/promptmux/queue"
)

func fastPolicy() agent.RetryPolicy {
	return agent.RetryPolicy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestOrchestrator(optFns ...func(o *Options)) *Orchestrator {
	optFns = append([]func(o *Options){func(o *Options) {
		o.RetryPolicy = fastPolicy()
	}}, optFns...)
	return New(queue.New(), nil, optFns...)
}

func mustCreateAgent(t *testing.T, o *Orchestrator, cfg agent.Config) (*agent.Agent, *platform.MockCapability) {
	t.Helper()

	mc := platform.NewMockCapability()
	a, err := o.CreateAgent(context.Background(), cfg, mc)
	require.NoError(t, err)
	return a, mc
}

func TestCreateAgent_AppliesDefaults(t *testing.T) {
	o := newTestOrchestrator(func(o *Options) {
		o.DefaultModel = "mock-model"
		o.DefaultTimeout = 42 * time.Second
	})

	a, _ := mustCreateAgent(t, o, agent.Config{Type: "code"})

	assert.NotEmpty(t, a.ID())
	assert.Equal(t, "mock-model", a.Model())
	assert.Contains(t, a.SystemPrompt(), "software engineer")
	assert.Equal(t, agent.StatusIdle, a.Status())

	got, err := o.GetAgent(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestCreateAgent_DuplicateID(t *testing.T) {
	o := newTestOrchestrator()

	mustCreateAgent(t, o, agent.Config{ID: "a1"})

	_, err := o.CreateAgent(context.Background(), agent.Config{ID: "a1"}, platform.NewMockCapability())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAgentExists)

	var agentErr *core.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "a1", agentErr.AgentID)
}

func TestCreateAgent_CapacityAndFreedSlot(t *testing.T) {
	o := newTestOrchestrator(func(o *Options) {
		o.MaxConcurrentAgents = 2
	})

	mustCreateAgent(t, o, agent.Config{ID: "a1"})
	mustCreateAgent(t, o, agent.Config{ID: "a2"})

	_, err := o.CreateAgent(context.Background(), agent.Config{ID: "a3"}, platform.NewMockCapability())
	assert.ErrorIs(t, err, core.ErrCapacityReached)

	// Removing an agent frees exactly one slot.
	require.True(t, o.RemoveAgent("a1"))

	mustCreateAgent(t, o, agent.Config{ID: "a3"})
	assert.Equal(t, 2, o.AgentCount())
}

func TestCreateAgent_InitializeFailureStaysRegistered(t *testing.T) {
	o := newTestOrchestrator()

	mc := platform.NewMockCapability()
	mc.FailInitialize(errors.New("auth rejected"))

	a, err := o.CreateAgent(context.Background(), agent.Config{ID: "a1"}, mc)
	require.Error(t, err)
	require.NotNil(t, a)
	assert.Equal(t, agent.StatusError, a.Status())

	// Still in the pool; a later Initialize can recover it.
	got, err := o.GetAgent("a1")
	require.NoError(t, err)

	mc.FailInitialize(nil)
	require.NoError(t, got.Initialize(context.Background()))
	assert.Equal(t, agent.StatusIdle, got.Status())
}

func TestCreateAgent_NilCapability(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.CreateAgent(context.Background(), agent.Config{ID: "a1"}, nil)
	require.Error(t, err)

	var agentErr *core.AgentError
	assert.ErrorAs(t, err, &agentErr)
}

func TestRemoveAgent(t *testing.T) {
	o := newTestOrchestrator()
	a, _ := mustCreateAgent(t, o, agent.Config{ID: "a1"})

	// A pending message is discarded together with the mailbox.
	_, err := o.Queue().SendTaskRequest("ops", "a1", "pending", core.PriorityNormal)
	require.NoError(t, err)

	assert.True(t, o.RemoveAgent("a1"))
	assert.Equal(t, agent.StatusStopped, a.Status())
	assert.Equal(t, 0, o.Queue().Size("a1"))

	_, err = o.GetAgent("a1")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	// Unknown ids report false, never an error.
	assert.False(t, o.RemoveAgent("a1"))
	assert.False(t, o.RemoveAgent("ghost"))
}

func TestAssignTask(t *testing.T) {
	o := newTestOrchestrator()
	_, mc := mustCreateAgent(t, o, agent.Config{ID: "a1"})
	mc.AddResponse("do it", "done")

	result, err := o.AssignTask(context.Background(), "a1", "do it")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Response)
}

func TestAssignTask_UnknownAgent(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.AssignTask(context.Background(), "ghost", "do it")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestAssignTask_Options(t *testing.T) {
	o := newTestOrchestrator()
	q := o.Queue()
	q.Register("ops")

	_, mc := mustCreateAgent(t, o, agent.Config{ID: "a1", Model: "mock-model"})

	result, err := o.AssignTask(context.Background(), "a1", "do it",
		WithModel("mock-turbo"),
		WithSystemPrompt("be brief"),
		WithPriority(core.PriorityHigh),
		WithRequester("ops"),
		WithContext(map[string]any{"origin": "test"}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "mock-turbo", result.Model)

	calls := mc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mock-turbo", calls[0].Options.Model)
	assert.Equal(t, "be brief", calls[0].Options.SystemPrompt)

	replies := q.Receive("ops")
	require.Len(t, replies, 1)
	assert.Equal(t, core.MessageTaskResponse, replies[0].Type)
}

func TestAssignTaskToAvailableAgent_PrefersFastestIdle(t *testing.T) {
	o := newTestOrchestrator()

	// Seed distinct running averages through real executions: a "slow"
	// worker and a "fast" one.
	slowCap := platform.NewMockCapability(func(mo *platform.MockOptions) {
		mo.Latency = 60 * time.Millisecond
	})
	slow, err := o.CreateAgent(context.Background(), agent.Config{ID: "slow", Type: "worker"}, slowCap)
	require.NoError(t, err)

	fast, _ := mustCreateAgent(t, o, agent.Config{ID: "fast", Type: "worker"})

	_, err = o.AssignTask(context.Background(), "slow", "warm up")
	require.NoError(t, err)
	_, err = o.AssignTask(context.Background(), "fast", "warm up")
	require.NoError(t, err)

	require.Less(t, fast.GetMetrics().AvgExecutionTime, slow.GetMetrics().AvgExecutionTime)

	result, err := o.AssignTaskToAvailableAgent(context.Background(), "worker", "job")
	require.NoError(t, err)
	assert.True(t, result.Success)

	// The fast worker took the job.
	require.Len(t, fast.GetHistory(), 2)
}

func TestAssignTaskToAvailableAgent_TieBreaksByCreationOrder(t *testing.T) {
	o := newTestOrchestrator()

	first, _ := mustCreateAgent(t, o, agent.Config{ID: "first", Type: "worker"})
	second, _ := mustCreateAgent(t, o, agent.Config{ID: "second", Type: "worker"})

	result, err := o.AssignTaskToAvailableAgent(context.Background(), "worker", "job")
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Len(t, first.GetHistory(), 1)
	assert.Empty(t, second.GetHistory())
}

func TestAssignTaskToAvailableAgent_NoneAvailable(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.AssignTaskToAvailableAgent(context.Background(), "worker", "job")
	assert.ErrorIs(t, err, core.ErrNoAvailableAgent)

	// An agent of a different type does not help.
	mustCreateAgent(t, o, agent.Config{ID: "r1", Type: "review"})
	_, err = o.AssignTaskToAvailableAgent(context.Background(), "worker", "job")
	assert.ErrorIs(t, err, core.ErrNoAvailableAgent)
}

func TestAssignTaskToAvailableAgent_SkipsBusyAgents(t *testing.T) {
	o := newTestOrchestrator()

	busyCap := platform.NewMockCapability(func(mo *platform.MockOptions) {
		mo.Latency = 200 * time.Millisecond
	})
	busy, err := o.CreateAgent(context.Background(), agent.Config{ID: "busy", Type: "worker"}, busyCap)
	require.NoError(t, err)

	idle, _ := mustCreateAgent(t, o, agent.Config{ID: "idle", Type: "worker"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.AssignTask(context.Background(), "busy", "long job")
		assert.NoError(t, err)
	}()

	require.Eventually(t, busy.IsBusy, time.Second, 5*time.Millisecond)

	result, err := o.AssignTaskToAvailableAgent(context.Background(), "worker", "quick job")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, idle.GetHistory(), 1)

	wg.Wait()
}

func TestListAgents_CreationOrder(t *testing.T) {
	o := newTestOrchestrator()

	mustCreateAgent(t, o, agent.Config{ID: "c"})
	mustCreateAgent(t, o, agent.Config{ID: "a"})
	mustCreateAgent(t, o, agent.Config{ID: "b"})

	var ids []string
	for _, a := range o.ListAgents() {
		ids = append(ids, a.ID())
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestGetStats(t *testing.T) {
	o := newTestOrchestrator()

	_, workerCap := mustCreateAgent(t, o, agent.Config{ID: "w1", Type: "worker"})
	mustCreateAgent(t, o, agent.Config{ID: "w2", Type: "worker"})
	_, reviewCap := mustCreateAgent(t, o, agent.Config{ID: "r1", Type: "review"})

	workerCap.AddResponse("ok job", "fine")
	_, err := o.AssignTask(context.Background(), "w1", "ok job")
	require.NoError(t, err)

	reviewCap.FailTimes(10, errors.New("provider down"))
	result, err := o.AssignTask(context.Background(), "r1", "doomed job")
	require.NoError(t, err)
	require.False(t, result.Success)

	stats := o.GetStats()
	assert.Equal(t, 3, stats.TotalAgents)
	assert.Equal(t, map[string]int{"worker": 2, "review": 1}, stats.AgentsByType)
	assert.Equal(t, 0, stats.BusyAgents)
	assert.Equal(t, 3, stats.IdleAgents)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 1, stats.TasksFailed)

	assert.Len(t, stats.MailboxSizes, 3)
	assert.Contains(t, stats.MailboxSizes, "w1")
}

func TestGetStats_CountsBusyAgents(t *testing.T) {
	o := newTestOrchestrator()

	slowCap := platform.NewMockCapability(func(mo *platform.MockOptions) {
		mo.Latency = 200 * time.Millisecond
	})
	busy, err := o.CreateAgent(context.Background(), agent.Config{ID: "w1", Type: "worker"}, slowCap)
	require.NoError(t, err)
	mustCreateAgent(t, o, agent.Config{ID: "w2", Type: "worker"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.AssignTask(context.Background(), "w1", "long job")
		assert.NoError(t, err)
	}()

	require.Eventually(t, busy.IsBusy, time.Second, 5*time.Millisecond)

	stats := o.GetStats()
	assert.Equal(t, 1, stats.BusyAgents)
	assert.Equal(t, 1, stats.IdleAgents)

	wg.Wait()
}

func TestShutdown(t *testing.T) {
	o := newTestOrchestrator()

	a1, _ := mustCreateAgent(t, o, agent.Config{ID: "a1"})
	a2, _ := mustCreateAgent(t, o, agent.Config{ID: "a2"})

	o.Shutdown()

	assert.Equal(t, agent.StatusStopped, a1.Status())
	assert.Equal(t, agent.StatusStopped, a2.Status())
	assert.Equal(t, 0, o.AgentCount())
	assert.Empty(t, o.ListAgents())
}
