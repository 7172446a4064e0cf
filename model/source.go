package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegistrySource loads and persists descriptor sets. The manager treats a
// source as optional: without one it falls back to the builtin catalog.
type RegistrySource interface {
	// Load returns all descriptors known to the source.
	Load() ([]Descriptor, error)

	// Save replaces the persisted descriptor set.
	Save(descriptors []Descriptor) error
}

// registryFile is the on-disk YAML layout of a FileSource.
type registryFile struct {
	Models []Descriptor `yaml:"models"`
}

// Compile-time check that FileSource implements RegistrySource.
var _ RegistrySource = (*FileSource)(nil)

// FileSource persists the model catalog as a YAML file.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading and writing the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load implements RegistrySource.
func (fs *FileSource) Load() ([]Descriptor, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("read model registry %s: %w", fs.path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model registry %s: %w", fs.path, err)
	}

	return file.Models, nil
}

// Save implements RegistrySource.
func (fs *FileSource) Save(descriptors []Descriptor) error {
	data, err := yaml.Marshal(registryFile{Models: descriptors})
	if err != nil {
		return fmt.Errorf("encode model registry: %w", err)
	}

	if err := os.WriteFile(fs.path, data, 0o644); err != nil {
		return fmt.Errorf("write model registry %s: %w", fs.path, err)
	}

	return nil
}

// builtinDescriptors is the catalog used when no source is configured or
// the configured source fails to load.
func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:       "claude-3-5-sonnet-20241022",
			Name:     "Claude 3.5 Sonnet",
			Provider: "anthropic",
			Capabilities: Capabilities{
				Chat:            true,
				Streaming:       true,
				FunctionCalling: true,
				Vision:          true,
				CodeGeneration:  true,
			},
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			CostPer1KInput:  0.003,
			CostPer1KOutput: 0.015,
		},
		{
			ID:       "claude-3-5-haiku-20241022",
			Name:     "Claude 3.5 Haiku",
			Provider: "anthropic",
			Capabilities: Capabilities{
				Chat:            true,
				Streaming:       true,
				FunctionCalling: true,
				CodeGeneration:  true,
			},
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			CostPer1KInput:  0.0008,
			CostPer1KOutput: 0.004,
		},
		{
			ID:       "gpt-4o",
			Name:     "GPT-4o",
			Provider: "openai",
			Capabilities: Capabilities{
				Chat:            true,
				Streaming:       true,
				FunctionCalling: true,
				Vision:          true,
				CodeGeneration:  true,
			},
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			CostPer1KInput:  0.0025,
			CostPer1KOutput: 0.01,
		},
		{
			ID:       "gpt-4o-mini",
			Name:     "GPT-4o mini",
			Provider: "openai",
			Capabilities: Capabilities{
				Chat:            true,
				Streaming:       true,
				FunctionCalling: true,
				CodeGeneration:  true,
			},
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			CostPer1KInput:  0.00015,
			CostPer1KOutput: 0.0006,
		},
	}
}
