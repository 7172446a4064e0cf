package model

import (
	"sort"
	"sync"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
)

// Options configures a Manager.
type Options struct {
	// Source loads and persists the catalog. When nil the manager starts
	// from the builtin catalog and SaveModels returns an error.
	Source RegistrySource

	// Logger receives registry diagnostics.
	Logger logging.Logger
}

// Requirements narrows FindBestModel candidates. Zero-valued fields are
// ignored, so the empty Requirements matches every registered model.
type Requirements struct {
	// Capability, when set, keeps only models with that flag.
	Capability Capability

	// MaxCost, when positive, keeps only models whose AvgCost does not
	// exceed it.
	MaxCost float64

	// MinContextWindow, when positive, keeps only models with at least
	// that many tokens of context.
	MinContextWindow int

	// Provider, when set, keeps only models from that provider.
	Provider string
}

// Stats summarizes the registry contents.
type Stats struct {
	Total        int                `json:"total"`
	ByProvider   map[string]int     `json:"by_provider"`
	ByCapability map[Capability]int `json:"by_capability"`
}

// Manager is the concurrency-safe model registry. Reads vastly outnumber
// writes, so it holds descriptors in a map under an RWMutex and hands out
// copies.
type Manager struct {
	mu     sync.RWMutex
	models map[string]Descriptor
	source RegistrySource
	logger logging.Logger
}

// NewManager creates a registry populated from the configured source, or
// from the builtin catalog when no source is set or loading fails.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	m := &Manager{
		models: make(map[string]Descriptor),
		source: opts.Source,
		logger: logger,
	}

	descriptors := builtinDescriptors()

	if opts.Source != nil {
		loaded, err := opts.Source.Load()
		if err != nil {
			logger.Warn("Model registry source failed, falling back to builtin catalog", "error", err)
		} else {
			descriptors = loaded
		}
	}

	for _, d := range descriptors {
		m.models[d.ID] = d
	}

	return m
}

// GetModel returns the descriptor registered under id.
func (m *Manager) GetModel(id string) (Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.models[id]
	if !ok {
		return Descriptor{}, core.NewModelError("get", id, core.ErrModelNotFound)
	}

	return d, nil
}

// HasModel reports whether id is registered.
func (m *Manager) HasModel(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.models[id]

	return ok
}

// GetModelCount returns the number of registered models.
func (m *Manager) GetModelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.models)
}

// ListModels returns all descriptors ordered by ID.
func (m *Manager) ListModels() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Descriptor, 0, len(m.models))
	for _, d := range m.models {
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}

// AddModel registers or replaces a descriptor.
func (m *Manager) AddModel(d Descriptor) error {
	if d.ID == "" {
		return core.NewModelError("add", d.ID, core.ErrModelIDRequired)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.models[d.ID] = d

	m.logger.Debug("Model registered", "model_id", d.ID, "provider", d.Provider)

	return nil
}

// RemoveModel deletes a descriptor and reports whether it was present.
func (m *Manager) RemoveModel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.models[id]
	if ok {
		delete(m.models, id)
	}

	return ok
}

// FindBestModel returns the cheapest model meeting the requirements,
// preferring the larger context window among equally priced candidates.
// The boolean is false when no model qualifies.
func (m *Manager) FindBestModel(req Requirements) (Descriptor, bool) {
	m.mu.RLock()

	candidates := make([]Descriptor, 0, len(m.models))
	for _, d := range m.models {
		candidates = append(candidates, d)
	}

	m.mu.RUnlock()

	// Filters apply in a fixed order so partial requirements behave
	// predictably: capability, cost ceiling, context floor, provider.
	if req.Capability != "" {
		candidates = filterDescriptors(candidates, func(d Descriptor) bool {
			return d.Capabilities.Has(req.Capability)
		})
	}

	if req.MaxCost > 0 {
		candidates = filterDescriptors(candidates, func(d Descriptor) bool {
			return d.AvgCost() <= req.MaxCost
		})
	}

	if req.MinContextWindow > 0 {
		candidates = filterDescriptors(candidates, func(d Descriptor) bool {
			return d.ContextWindow >= req.MinContextWindow
		})
	}

	if req.Provider != "" {
		candidates = filterDescriptors(candidates, func(d Descriptor) bool {
			return d.Provider == req.Provider
		})
	}

	if len(candidates) == 0 {
		return Descriptor{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i].AvgCost(), candidates[j].AvgCost()
		if ci != cj {
			return ci < cj
		}

		return candidates[i].ContextWindow > candidates[j].ContextWindow
	})

	return candidates[0], true
}

// SaveModels persists the current catalog through the configured source.
func (m *Manager) SaveModels() error {
	if m.source == nil {
		return core.NewModelError("save", "", core.ErrNoRegistrySource)
	}

	descriptors := m.ListModels()

	if err := m.source.Save(descriptors); err != nil {
		return core.NewModelError("save", "", err)
	}

	m.logger.Debug("Model registry saved", "models", len(descriptors))

	return nil
}

// GetStats returns aggregate counts by provider and capability.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:        len(m.models),
		ByProvider:   make(map[string]int),
		ByCapability: make(map[Capability]int),
	}

	for _, d := range m.models {
		stats.ByProvider[d.Provider]++

		for _, c := range d.Capabilities.List() {
			stats.ByCapability[c]++
		}
	}

	return stats
}

func filterDescriptors(in []Descriptor, keep func(Descriptor) bool) []Descriptor {
	out := in[:0]
	for _, d := range in {
		if keep(d) {
			out = append(out, d)
		}
	}

	return out
}
