package agent

import (
	"fmt"

	"github.com/promptmux/promptmux/internal/util"
)

// Templates maps agent types to system prompt templates. Templates are
// rendered with text/template against {{.name}} and {{.type}}. Unknown
// types fall back to the "general" entry.
type Templates map[string]string

// DefaultTemplates returns the built-in system prompt per agent type.
func DefaultTemplates() Templates {
	return Templates{
		"general":    "You are {{.name}}, a helpful AI assistant.",
		"code":       "You are {{.name}}, an expert software engineer. Write clear, correct code and call out non-obvious choices.",
		"research":   "You are {{.name}}, a research assistant. Gather and synthesize relevant information and state your sources.",
		"review":     "You are {{.name}}, a meticulous reviewer. Report problems ordered by severity, most serious first.",
		"summarizer": "You are {{.name}}, a summarization specialist. Produce faithful, concise summaries that keep the key facts.",
	}
}

// Render resolves the system prompt for an agent type. A missing type uses
// the "general" template; a Templates without one yields an error.
func (t Templates) Render(agentType, name string) (string, error) {
	text, ok := t[agentType]
	if !ok {
		text, ok = t["general"]
		if !ok {
			return "", fmt.Errorf("no template for agent type %q and no general fallback", agentType)
		}
	}

	rendered, err := util.RenderTemplate(text, map[string]any{
		"name": name,
		"type": agentType,
	})
	if err != nil {
		return "", fmt.Errorf("render template for type %q: %w", agentType, err)
	}

	return rendered, nil
}

// Merge overlays other onto a copy of t, keeping t unchanged.
func (t Templates) Merge(other Templates) Templates {
	merged := make(Templates, len(t)+len(other))

	for k, v := range t {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}

	return merged
}
