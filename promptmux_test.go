package promptmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptmux/promptmux/agent"
	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
	"github.com/promptmux/promptmux/platform"
)

func newTestMux(optFns ...func(o *Options)) *PromptMux {
	optFns = append([]func(o *Options){func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.RetryPolicy = agent.RetryPolicy{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		}
	}}, optFns...)
	return New(optFns...)
}

func TestNew_Defaults(t *testing.T) {
	m := newTestMux()
	defer m.Close()

	// The builtin model catalog is always available.
	assert.Positive(t, m.Models().GetModelCount())

	stats := m.GetStats()
	assert.Equal(t, 0, stats.TotalAgents)
}

func TestCreateAgentAndAssignTask(t *testing.T) {
	m := newTestMux(WithDefaultModel("claude-3-5-haiku-20241022"))
	defer m.Close()

	mc := platform.NewMockCapability()
	mc.AddResponse("review this", "looks good")

	a, err := m.CreateAgent(context.Background(), agent.Config{ID: "rev", Type: "review"}, mc)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", a.Model())

	result, err := m.AssignTask(context.Background(), "rev", "review this")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "looks good", result.Response)

	// Cost accounting picked up the registry price for the default model.
	assert.Positive(t, a.GetMetrics().TotalCost)

	stats := m.GetStats()
	assert.Equal(t, 1, stats.TotalAgents)
	assert.Equal(t, 1, stats.TasksCompleted)
}

func TestQuerySyncAndCollectResponses(t *testing.T) {
	m := newTestMux()
	defer m.Close()

	queryID, events, err := m.QuerySync(context.Background(), "compare yourselves", []string{"alpha", "beta"})
	require.NoError(t, err)
	require.NotEmpty(t, queryID)
	require.NotEmpty(t, events)

	assert.Equal(t, core.EventQueryStart, events[0].Kind)
	assert.Equal(t, core.EventQueryComplete, events[len(events)-1].Kind)

	responses := CollectResponses(events)
	require.Len(t, responses, 2)
	assert.Equal(t, "Mock response to: compare yourselves", responses["alpha"])
	assert.Equal(t, "Mock response to: compare yourselves", responses["beta"])
}

func TestSubscribeSeesLifecycleEvents(t *testing.T) {
	m := newTestMux()
	defer m.Close()

	started, unsubscribe := m.Subscribe(core.EventAgentStarted)
	defer unsubscribe()

	_, err := m.CreateAgent(context.Background(), agent.Config{ID: "a1"}, platform.NewMockCapability())
	require.NoError(t, err)

	select {
	case ev := <-started:
		assert.Equal(t, "a1", ev.AgentID)
	case <-time.After(time.Second):
		t.Fatal("expected an agent-started event")
	}
}

func TestClose_StopsEverything(t *testing.T) {
	m := newTestMux()

	a, err := m.CreateAgent(context.Background(), agent.Config{ID: "a1"}, platform.NewMockCapability())
	require.NoError(t, err)

	m.Close()

	assert.Equal(t, agent.StatusStopped, a.Status())
	assert.Equal(t, 0, m.GetStats().TotalAgents)

	_, _, err = m.Query(context.Background(), "hello", []string{"mockai"})
	assert.Error(t, err)
}
