// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
)

// Runner is a step with its types erased, so that steps of different
// shapes can be chained.
type Runner interface {
	Name() string
	Run(ctx context.Context, opts RunOptions) (RunSummary, error)
}

// Workflow runs steps one after another. Each step runs to completion
// before the next one starts.
type Workflow []Runner

// WorkflowSummary maps step names to their run counts, in run order.
type WorkflowSummary struct {
	Steps []string
	Runs  map[string]RunSummary
}

// Total returns the number of outputs across all steps.
func (s WorkflowSummary) Total() int {
	n := 0
	for _, r := range s.Runs {
		n += r.Outputs
	}
	return n
}

// Run executes every step with the same options and prints one line per
// step to w. It stops at the first failing step.
func (wf Workflow) Run(ctx context.Context, opts RunOptions, w io.Writer) (WorkflowSummary, error) {
	summary := WorkflowSummary{Runs: make(map[string]RunSummary, len(wf))}
	for _, step := range wf {
		run, err := step.Run(ctx, opts)
		summary.Steps = append(summary.Steps, step.Name())
		summary.Runs[step.Name()] = run
		if err != nil {
			fmt.Fprintf(w, "failed  %-12s after %d outputs: %v\n", step.Name(), run.Outputs, err)
			return summary, err
		}
		fmt.Fprintf(w, "done    %-12s %d outputs, %d inserted, %d skipped\n",
			step.Name(), run.Outputs, run.Inserted, run.Skipped)
	}
	return summary, nil
}
