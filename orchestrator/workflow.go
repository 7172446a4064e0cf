package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/promptmux/promptmux/core"
)

// WorkflowStep is one stage of a sequential workflow. Exactly one of
// AgentID or AgentType must be set: AgentID addresses a specific agent,
// AgentType load-balances across idle agents of that type.
//
// BuildPrompt, when set, receives the results of all prior steps and
// replaces Prompt, which is how data threads through a workflow.
type WorkflowStep struct {
	AgentID     string
	AgentType   string
	Prompt      string
	BuildPrompt func(prior []*core.TaskResult) string
	Options     []func(o *TaskOptions)
}

// ParallelTask is one unit of a parallel batch, addressed like a
// WorkflowStep.
type ParallelTask struct {
	AgentID   string
	AgentType string
	Prompt    string
	Options   []func(o *TaskOptions)
}

var errStepUnaddressed = errors.New("step needs an agent id or an agent type")

// ExecuteWorkflow runs steps strictly in order, collecting each result
// before starting the next step. The workflow aborts at the first step
// whose result reports failure, returning the results so far together with
// an error naming that step; assignment errors abort the same way.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, steps []WorkflowStep) ([]*core.TaskResult, error) {
	results := make([]*core.TaskResult, 0, len(steps))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("workflow step %d: %w", i+1, err)
		}

		prompt := step.Prompt
		if step.BuildPrompt != nil {
			prompt = step.BuildPrompt(results)
		}

		result, err := o.dispatch(ctx, step.AgentID, step.AgentType, prompt, step.Options)
		if err != nil {
			return results, fmt.Errorf("workflow step %d: %w", i+1, err)
		}

		results = append(results, result)

		if !result.Success {
			o.logger.Warn("Workflow aborted",
				"step", i+1, "steps_total", len(steps), "error", result.Error)
			return results, fmt.Errorf("workflow step %d failed: %s", i+1, result.Error)
		}
	}

	return results, nil
}

// CoordinateParallel dispatches every task concurrently and waits for all
// of them. Results come back in input order regardless of completion order.
// Task-level failures are reported per item as Success=false; the call
// itself fails only on assignment errors (unknown agent, no available
// agent) or cancellation.
func (o *Orchestrator) CoordinateParallel(ctx context.Context, tasks []ParallelTask) ([]*core.TaskResult, error) {
	results := make([]*core.TaskResult, len(tasks))

	g, ctx := errgroup.WithContext(ctx)
	for i, pt := range tasks {
		i, pt := i, pt
		g.Go(func() error {
			result, err := o.dispatch(ctx, pt.AgentID, pt.AgentType, pt.Prompt, pt.Options)
			if err != nil {
				return fmt.Errorf("parallel task %d: %w", i+1, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, agentID, agentType, prompt string, optFns []func(o *TaskOptions)) (*core.TaskResult, error) {
	switch {
	case agentID != "":
		return o.AssignTask(ctx, agentID, prompt, optFns...)
	case agentType != "":
		return o.AssignTaskToAvailableAgent(ctx, agentType, prompt, optFns...)
	default:
		return nil, core.NewAgentError("orchestrator.dispatch", "", errStepUnaddressed)
	}
}
