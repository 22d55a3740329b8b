package durable

import (
	"context"
	"encoding/gob"
	"fmt"

	"basket_swap/internal/core"
	"basket_swap/internal/trading/orchestrator"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

func init() {
	// Step outputs are checkpointed with gob
	gob.Register(&core.Quote{})
	gob.Register(&core.BuildResult{})
	gob.Register(&core.Transaction{})
	gob.Register(&core.Receipt{})
	gob.Register(&orchestrator.SplitResult{})
	gob.Register([]orchestrator.QuoteOutcome{})
	gob.Register(&core.PurchaseRequest{})
	gob.Register(core.RunSnapshot{})
}

// PurchaseWorkflows defines the durable workflows for basket purchases
type PurchaseWorkflows struct {
	orch *orchestrator.Orchestrator
}

func NewPurchaseWorkflows(orch *orchestrator.Orchestrator) *PurchaseWorkflows {
	return &PurchaseWorkflows{orch: orch}
}

// Purchase is a durable workflow running one basket purchase. Every quote, build and
// submission is a step, so a recovered workflow replays completed legs from their recorded
// results and never submits a leg twice.
func (w *PurchaseWorkflows) Purchase(ctx dbos.DBOSContext, input any) (any, error) {
	req, ok := input.(*core.PurchaseRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected workflow input %T", input)
	}

	snap, err := w.orch.ExecuteWithSteps(ctx, *req, &dbosSteps{dbosCtx: ctx})
	if err != nil {
		return snap, err
	}
	return snap, nil
}

// dbosSteps checkpoints each orchestrator step as a DBOS step
type dbosSteps struct {
	dbosCtx dbos.DBOSContext
}

func (s *dbosSteps) RunStep(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return s.dbosCtx.RunAsStep(s.dbosCtx, func(stepCtx context.Context) (any, error) {
		return fn(stepCtx)
	}, dbos.WithStepName(name))
}
