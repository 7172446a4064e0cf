package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptmux/promptmux/core"
)

type stubSource struct {
	descriptors []Descriptor
	loadErr     error
	saved       []Descriptor
	saveErr     error
}

func (s *stubSource) Load() ([]Descriptor, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.descriptors, nil
}

func (s *stubSource) Save(descriptors []Descriptor) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = descriptors
	return nil
}

func chatModel(id, provider string, avgCost float64, contextWindow int) Descriptor {
	return Descriptor{
		ID:              id,
		Name:            id,
		Provider:        provider,
		Capabilities:    Capabilities{Chat: true, Streaming: true},
		ContextWindow:   contextWindow,
		MaxOutputTokens: 4096,
		CostPer1KInput:  avgCost,
		CostPer1KOutput: avgCost,
	}
}

func newTestManager(t *testing.T, descriptors ...Descriptor) *Manager {
	t.Helper()
	return NewManager(func(o *Options) {
		o.Source = &stubSource{descriptors: descriptors}
	})
}

func TestNewManager_BuiltinCatalog(t *testing.T) {
	m := NewManager()

	assert.Equal(t, 4, m.GetModelCount())
	assert.True(t, m.HasModel("claude-3-5-sonnet-20241022"))
	assert.True(t, m.HasModel("gpt-4o"))
}

func TestNewManager_SourceFailureFallsBack(t *testing.T) {
	m := NewManager(func(o *Options) {
		o.Source = &stubSource{loadErr: errors.New("disk gone")}
	})

	assert.Equal(t, 4, m.GetModelCount())
}

func TestNewManager_LoadsFromSource(t *testing.T) {
	m := newTestManager(t, chatModel("only-model", "local", 0.001, 8192))

	assert.Equal(t, 1, m.GetModelCount())
	assert.True(t, m.HasModel("only-model"))
	assert.False(t, m.HasModel("gpt-4o"))
}

func TestGetModel(t *testing.T) {
	m := NewManager()

	d, err := m.GetModel("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Provider)
}

func TestGetModel_NotFound(t *testing.T) {
	m := NewManager()

	_, err := m.GetModel("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelNotFound)

	var modelErr *core.ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "nope", modelErr.ModelID)
}

func TestAddModel_Upsert(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddModel(chatModel("m1", "local", 0.002, 8192)))
	assert.Equal(t, 1, m.GetModelCount())

	updated := chatModel("m1", "local", 0.002, 16384)
	require.NoError(t, m.AddModel(updated))
	assert.Equal(t, 1, m.GetModelCount())

	d, err := m.GetModel("m1")
	require.NoError(t, err)
	assert.Equal(t, 16384, d.ContextWindow)
}

func TestAddModel_RequiresID(t *testing.T) {
	m := newTestManager(t)

	err := m.AddModel(Descriptor{Name: "anonymous"})
	assert.ErrorIs(t, err, core.ErrModelIDRequired)
}

func TestRemoveModel(t *testing.T) {
	m := newTestManager(t, chatModel("m1", "local", 0.002, 8192))

	assert.True(t, m.RemoveModel("m1"))
	assert.False(t, m.RemoveModel("m1"))
	assert.Equal(t, 0, m.GetModelCount())
}

func TestFindBestModel_CostCeiling(t *testing.T) {
	vision := chatModel("vision-pro", "acme", 0.09, 100000)
	vision.Capabilities.Vision = true
	cheap := chatModel("text-mini", "acme", 0.001, 32000)

	m := newTestManager(t, vision, cheap)

	// The only vision model costs more than the ceiling.
	_, ok := m.FindBestModel(Requirements{Capability: CapabilityVision, MaxCost: 0.02})
	assert.False(t, ok)

	// Raising the ceiling admits it even though a cheaper non-vision
	// model exists.
	best, ok := m.FindBestModel(Requirements{Capability: CapabilityVision, MaxCost: 0.1})
	require.True(t, ok)
	assert.Equal(t, "vision-pro", best.ID)
}

func TestFindBestModel_PrefersCheapest(t *testing.T) {
	m := newTestManager(t,
		chatModel("pricey", "acme", 0.03, 200000),
		chatModel("mid", "acme", 0.01, 128000),
		chatModel("budget", "acme", 0.0005, 16000),
	)

	best, ok := m.FindBestModel(Requirements{Capability: CapabilityChat})
	require.True(t, ok)
	assert.Equal(t, "budget", best.ID)
}

func TestFindBestModel_ContextBreaksCostTie(t *testing.T) {
	m := newTestManager(t,
		chatModel("small-ctx", "acme", 0.01, 32000),
		chatModel("big-ctx", "acme", 0.01, 200000),
	)

	best, ok := m.FindBestModel(Requirements{})
	require.True(t, ok)
	assert.Equal(t, "big-ctx", best.ID)
}

func TestFindBestModel_MinContextWindow(t *testing.T) {
	m := newTestManager(t,
		chatModel("cheap-small", "acme", 0.0001, 8000),
		chatModel("costly-big", "acme", 0.02, 200000),
	)

	best, ok := m.FindBestModel(Requirements{MinContextWindow: 100000})
	require.True(t, ok)
	assert.Equal(t, "costly-big", best.ID)
}

func TestFindBestModel_ProviderFilter(t *testing.T) {
	m := newTestManager(t,
		chatModel("a-cheap", "alpha", 0.0001, 8000),
		chatModel("b-model", "beta", 0.02, 8000),
	)

	best, ok := m.FindBestModel(Requirements{Provider: "beta"})
	require.True(t, ok)
	assert.Equal(t, "b-model", best.ID)

	_, ok = m.FindBestModel(Requirements{Provider: "gamma"})
	assert.False(t, ok)
}

func TestFindBestModel_EmptyRegistry(t *testing.T) {
	m := newTestManager(t)

	_, ok := m.FindBestModel(Requirements{})
	assert.False(t, ok)
}

func TestSaveModels(t *testing.T) {
	src := &stubSource{descriptors: []Descriptor{chatModel("m1", "local", 0.002, 8192)}}
	m := NewManager(func(o *Options) {
		o.Source = src
	})

	require.NoError(t, m.AddModel(chatModel("m2", "local", 0.003, 8192)))
	require.NoError(t, m.SaveModels())

	require.Len(t, src.saved, 2)
	assert.Equal(t, "m1", src.saved[0].ID)
	assert.Equal(t, "m2", src.saved[1].ID)
}

func TestSaveModels_NoSource(t *testing.T) {
	m := NewManager()

	err := m.SaveModels()
	assert.ErrorIs(t, err, core.ErrNoRegistrySource)
}

func TestGetStats(t *testing.T) {
	vision := chatModel("v1", "alpha", 0.01, 32000)
	vision.Capabilities.Vision = true

	m := newTestManager(t,
		vision,
		chatModel("c1", "alpha", 0.001, 8000),
		chatModel("c2", "beta", 0.002, 8000),
	)

	stats := m.GetStats()

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByProvider["alpha"])
	assert.Equal(t, 1, stats.ByProvider["beta"])
	assert.Equal(t, 3, stats.ByCapability[CapabilityChat])
	assert.Equal(t, 1, stats.ByCapability[CapabilityVision])
}

func TestListModels_Sorted(t *testing.T) {
	m := newTestManager(t,
		chatModel("zeta", "acme", 0.001, 8000),
		chatModel("alpha", "acme", 0.001, 8000),
		chatModel("mid", "acme", 0.001, 8000),
	)

	models := m.ListModels()
	require.Len(t, models, 3)
	assert.Equal(t, "alpha", models[0].ID)
	assert.Equal(t, "mid", models[1].ID)
	assert.Equal(t, "zeta", models[2].ID)
}

func TestDescriptor_AvgCost(t *testing.T) {
	d := Descriptor{CostPer1KInput: 0.003, CostPer1KOutput: 0.015}
	assert.InDelta(t, 0.009, d.AvgCost(), 1e-9)
}

func TestDescriptor_EstimateCost(t *testing.T) {
	d := Descriptor{CostPer1KInput: 0.01, CostPer1KOutput: 0.02}
	assert.InDelta(t, 0.01*2+0.02*0.5, d.EstimateCost(2000, 500), 1e-9)
}

func TestCapabilities_Has(t *testing.T) {
	caps := Capabilities{Chat: true, Vision: true}

	assert.True(t, caps.Has(CapabilityChat))
	assert.True(t, caps.Has(CapabilityVision))
	assert.False(t, caps.Has(CapabilityStreaming))
	assert.False(t, caps.Has(Capability("telepathy")))
}
