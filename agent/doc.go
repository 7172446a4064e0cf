// Package agent implements the stateful task worker at the heart of
// promptmux. An Agent owns exactly one platform capability and executes
// one task at a time: it resolves the effective model and system prompt,
// calls the capability through a bounded exponential-backoff retry loop,
// and records history, token usage, cost and a running-average execution
// time for every completed task.
//
// Agents are specialized by type through prompt templates rather than
// subtypes: a Config.Type of "code", "research", "review" or "summarizer"
// selects a built-in system prompt, and custom types plug in via the
// Templates option.
//
// Capability failures never escape ExecuteTask as errors; after the retry
// budget is spent they come back inside the TaskResult so one failing task
// cannot take down an orchestration. The error return is reserved for
// caller mistakes (busy, stopped, nil task) and context cancellation.
package agent
