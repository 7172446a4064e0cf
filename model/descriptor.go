package model

// Capability names a single model capability flag for requirement matching.
type Capability string

const (
	// CapabilityChat marks conversational completion support.
	CapabilityChat Capability = "chat"
	// CapabilityStreaming marks incremental response support.
	CapabilityStreaming Capability = "streaming"
	// CapabilityFunctionCalling marks tool/function call support.
	CapabilityFunctionCalling Capability = "function-calling"
	// CapabilityVision marks image input support.
	CapabilityVision Capability = "vision"
	// CapabilityCodeGeneration marks dedicated code generation tuning.
	CapabilityCodeGeneration Capability = "code-generation"
)

// Capabilities is the closed flag set carried by every descriptor.
type Capabilities struct {
	Chat            bool `json:"chat" yaml:"chat"`
	Streaming       bool `json:"streaming" yaml:"streaming"`
	FunctionCalling bool `json:"function_calling" yaml:"function_calling"`
	Vision          bool `json:"vision" yaml:"vision"`
	CodeGeneration  bool `json:"code_generation" yaml:"code_generation"`
}

// Has reports whether the named capability flag is set.
func (c Capabilities) Has(name Capability) bool {
	switch name {
	case CapabilityChat:
		return c.Chat
	case CapabilityStreaming:
		return c.Streaming
	case CapabilityFunctionCalling:
		return c.FunctionCalling
	case CapabilityVision:
		return c.Vision
	case CapabilityCodeGeneration:
		return c.CodeGeneration
	default:
		return false
	}
}

// List returns the set flags in a stable order, used for stats aggregation.
func (c Capabilities) List() []Capability {
	var out []Capability
	if c.Chat {
		out = append(out, CapabilityChat)
	}
	if c.Streaming {
		out = append(out, CapabilityStreaming)
	}
	if c.FunctionCalling {
		out = append(out, CapabilityFunctionCalling)
	}
	if c.Vision {
		out = append(out, CapabilityVision)
	}
	if c.CodeGeneration {
		out = append(out, CapabilityCodeGeneration)
	}
	return out
}

// Descriptor describes one model: identity, capability flags, context
// limits and per-1k-token cost. Descriptors pass by value through the
// manager so they are immutable once read by a task.
type Descriptor struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Provider        string       `json:"provider" yaml:"provider"`
	Capabilities    Capabilities `json:"capabilities" yaml:"capabilities"`
	ContextWindow   int          `json:"context_window" yaml:"context_window"`
	MaxOutputTokens int          `json:"max_output_tokens" yaml:"max_output_tokens"`
	// CostPer1KInput / CostPer1KOutput are USD per 1000 tokens. Zero means
	// free or unknown.
	CostPer1KInput  float64 `json:"cost_per_1k_input" yaml:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output" yaml:"cost_per_1k_output"`
}

// AvgCost returns the mean of input and output cost per 1k tokens. It is
// the value FindBestModel compares against MaxCost and sorts by.
func (d Descriptor) AvgCost() float64 {
	return (d.CostPer1KInput + d.CostPer1KOutput) / 2
}

// EstimateCost returns the USD cost of a call with the given token counts.
func (d Descriptor) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*d.CostPer1KInput + float64(outputTokens)/1000*d.CostPer1KOutput
}
