package guard

import (
	"context"
	"fmt"
)

// Instance pairs a guard declaration's name with its live Guard, exactly
// one per declared guard for the lifetime of an execution.
type Instance struct {
	Name  string
	Guard Guard
}

// Runner applies the guards attached to a node or edge in declared order,
// short-circuiting on the first non-success verdict (spec.md §4.8 final
// paragraph, I7).
type Runner struct {
	instances []Instance
}

// NewRunner constructs a Runner over the already-built guard instances for
// one node/edge, in declaration order.
func NewRunner(instances []Instance) *Runner {
	return &Runner{instances: instances}
}

// Init runs every wrapped guard's Init, in declaration order, stopping and
// returning the first error (spec.md §4.8: init errors abort the execution
// before any node runs).
func (r *Runner) Init(ctx context.Context) error {
	for _, inst := range r.instances {
		if err := inst.Guard.Init(ctx); err != nil {
			return fmt.Errorf("init guard %q: %w", inst.Name, err)
		}
	}
	return nil
}

// Cleanup runs every wrapped guard's Cleanup, continuing past individual
// failures so one guard's cleanup error can't strand another's resources,
// and returns the first error encountered, if any.
func (r *Runner) Cleanup(ctx context.Context) error {
	var first error
	for _, inst := range r.instances {
		if err := inst.Guard.Cleanup(ctx); err != nil && first == nil {
			first = fmt.Errorf("cleanup guard %q: %w", inst.Name, err)
		}
	}
	return first
}

// Run executes each guard's Validate then Execute, in order, stopping at
// the first Result whose Status is not success. The guard name that
// produced a non-success verdict is returned alongside it so callers can
// build GUARD_BLOCKED with guard name + reason (spec.md §7).
func (r *Runner) Run(ctx context.Context, in Input) (Result, string, error) {
	for _, inst := range r.instances {
		verdict, err := inst.Guard.Validate(ctx, in)
		if err != nil {
			return Result{}, inst.Name, err
		}
		if verdict.Status != StatusSuccess {
			return verdict, inst.Name, nil
		}

		result, err := inst.Guard.Execute(ctx, in)
		if err != nil {
			return Result{}, inst.Name, err
		}
		if result.Status != StatusSuccess {
			return result, inst.Name, nil
		}
	}
	return Result{Status: StatusSuccess}, "", nil
}
