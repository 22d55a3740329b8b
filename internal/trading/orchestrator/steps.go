package orchestrator

import (
	"context"
	"fmt"
)

// StepRunner runs one unit of work of a run. The durable engine checkpoints each step so a
// resumed run replays recorded results instead of calling collaborators again.
type StepRunner interface {
	RunStep(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error)
}

// DirectSteps runs every step in-process without checkpointing
type DirectSteps struct{}

func (DirectSteps) RunStep(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

// runStep is RunStep with a typed result
func runStep[T any](ctx context.Context, steps StepRunner, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := steps.RunStep(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("step %s returned %T", name, raw)
	}
	return v, nil
}
