package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCapability_Initialize(t *testing.T) {
	mc := NewMockCapability(func(o *MockOptions) {
		o.Name = "claude"
	})

	sess, err := mc.Initialize(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, "claude", sess.Data["platform"])
	assert.False(t, sess.Expired())
}

func TestMockCapability_InitializeFailure(t *testing.T) {
	mc := NewMockCapability()
	mc.FailInitialize(errors.New("auth rejected"))

	_, err := mc.Initialize(context.Background())
	require.Error(t, err)

	// Resetting the script recovers the capability.
	mc.FailInitialize(nil)
	_, err = mc.Initialize(context.Background())
	assert.NoError(t, err)
}

func TestMockCapability_CannedResponse(t *testing.T) {
	mc := NewMockCapability()
	mc.AddResponse("ping", "pong")

	resp, err := mc.SendPrompt(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "mock-model", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.False(t, resp.Partial)
	assert.Positive(t, resp.Usage.TotalTokens)
}

func TestMockCapability_DefaultResponse(t *testing.T) {
	mc := NewMockCapability()

	resp, err := mc.SendPrompt(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: anything", resp.Content)
}

func TestMockCapability_SendOptionsOverrideModel(t *testing.T) {
	mc := NewMockCapability()

	resp, err := mc.SendPrompt(context.Background(), "hi", WithModel("other-model"), WithSystemPrompt("be brief"))
	require.NoError(t, err)
	assert.Equal(t, "other-model", resp.Model)

	calls := mc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hi", calls[0].Prompt)
	assert.Equal(t, "other-model", calls[0].Options.Model)
	assert.Equal(t, "be brief", calls[0].Options.SystemPrompt)
}

func TestMockCapability_FailTimesThenRecover(t *testing.T) {
	mc := NewMockCapability()
	scripted := errors.New("rate limited")
	mc.FailTimes(2, scripted)

	_, err := mc.SendPrompt(context.Background(), "x")
	assert.ErrorIs(t, err, scripted)

	_, err = mc.SendPrompt(context.Background(), "x")
	assert.ErrorIs(t, err, scripted)

	resp, err := mc.SendPrompt(context.Background(), "x")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Equal(t, 3, mc.CallCount())
}

func TestMockCapability_StreamChunksReassemble(t *testing.T) {
	mc := NewMockCapability(func(o *MockOptions) {
		o.ChunkSize = 4
	})
	mc.AddResponse("tell", "a longer canned answer")

	out, errCh := mc.StreamPrompt(context.Background(), "tell")

	var sb strings.Builder
	var final *Response
	for resp := range out {
		if resp.Partial {
			sb.WriteString(resp.Content)
			continue
		}
		final = resp
	}

	require.NoError(t, <-errCh)
	require.NotNil(t, final)
	assert.Equal(t, "a longer canned answer", sb.String())
	assert.Equal(t, "a longer canned answer", final.Content)
	assert.Equal(t, "stop", final.FinishReason)
	assert.Positive(t, final.Usage.OutputTokens)
}

func TestMockCapability_StreamFailure(t *testing.T) {
	mc := NewMockCapability()
	scripted := errors.New("boom")
	mc.FailTimes(1, scripted)

	out, errCh := mc.StreamPrompt(context.Background(), "x")

	for range out {
	}
	assert.ErrorIs(t, <-errCh, scripted)
}

func TestMockCapability_SwitchModel(t *testing.T) {
	mc := NewMockCapability(func(o *MockOptions) {
		o.KnownModels = []string{"mock-model", "mock-large"}
	})

	mc.SwitchModel("mock-large")
	assert.Equal(t, "mock-large", mc.CurrentModel())

	// Unknown models are ignored, not errors.
	mc.SwitchModel("gpt-unknown")
	assert.Equal(t, "mock-large", mc.CurrentModel())

	mc.SwitchModel("")
	assert.Equal(t, "mock-large", mc.CurrentModel())
}

func TestMockCapability_ContextCancellation(t *testing.T) {
	mc := NewMockCapability(func(o *MockOptions) {
		o.Latency = time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mc.SendPrompt(ctx, "slow")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockCapability_ClosedRejectsPrompts(t *testing.T) {
	mc := NewMockCapability()
	require.NoError(t, mc.Close())
	require.NoError(t, mc.Close())

	_, err := mc.SendPrompt(context.Background(), "x")
	assert.Error(t, err)
}
