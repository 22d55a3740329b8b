package orchestrator

import (
	"context"
	"fmt"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/trading/allocation"
	"basket_swap/internal/trading/planner"
	apperrors "basket_swap/pkg/errors"
)

// QuoteOutcome is the recorded result of one leg's quote. Err is a string so the outcome
// survives checkpoint encoding.
type QuoteOutcome struct {
	LegIndex int
	Quote    *core.Quote
	Err      string
}

// LegPreview is a leg with the quote it would execute at
type LegPreview struct {
	Leg   core.SwapLeg `json:"leg"`
	Quote *core.Quote  `json:"quote,omitempty"`
	Error string       `json:"error,omitempty"`
}

// quote fetches and validates a quote for leg
func (o *Orchestrator) quote(ctx context.Context, leg core.SwapLeg) (*core.Quote, error) {
	req := core.QuoteRequest{
		TokenIn:  leg.InputAsset.CoinType,
		TokenOut: leg.OutputAsset.CoinType,
		AmountIn: leg.InputAmount,
	}

	started := time.Now()
	q, err := o.quotes.GetQuote(ctx, req)
	o.metrics.RecordQuoteLatency(ctx, req.TokenOut, float64(time.Since(started).Milliseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidResponse, err)
	}
	return q, nil
}

// fetchQuotes quotes every non-zero leg, concurrently when a pool is configured. Outcomes are
// in leg order.
func (o *Orchestrator) fetchQuotes(ctx context.Context, legs []core.SwapLeg) []QuoteOutcome {
	active := make([]core.SwapLeg, 0, len(legs))
	for _, leg := range legs {
		if leg.InputAmount.IsPositive() {
			active = append(active, leg)
		}
	}

	outcomes := make([]QuoteOutcome, len(active))
	fetch := func(ctx context.Context, i int) {
		oc := QuoteOutcome{LegIndex: active[i].Index}
		q, err := o.quote(ctx, active[i])
		if err != nil {
			oc.Err = err.Error()
		} else {
			oc.Quote = q
		}
		outcomes[i] = oc
	}

	if o.pool != nil {
		o.pool.ForEach(ctx, len(active), fetch)
	} else {
		for i := range active {
			if ctx.Err() != nil {
				break
			}
			fetch(ctx, i)
		}
	}

	// Tasks skipped by cancellation leave zero outcomes behind
	for i := range outcomes {
		if outcomes[i].Quote == nil && outcomes[i].Err == "" {
			outcomes[i] = QuoteOutcome{LegIndex: active[i].Index, Err: "quote not fetched: cancelled"}
		}
	}
	return outcomes
}

// Preview plans a purchase and quotes every leg without executing anything
func (o *Orchestrator) Preview(ctx context.Context, req core.PurchaseRequest) ([]LegPreview, error) {
	if err := allocation.Validate(req.Weights); err != nil {
		return nil, err
	}
	legs, err := planner.Plan(req.Weights, req.Amount, o.cfg.Funding, o.cfg.DecimalsOf)
	if err != nil {
		return nil, err
	}

	byLeg := make(map[int]QuoteOutcome, len(legs))
	for _, oc := range o.fetchQuotes(ctx, legs) {
		byLeg[oc.LegIndex] = oc
	}

	previews := make([]LegPreview, len(legs))
	for i, leg := range legs {
		previews[i] = LegPreview{Leg: leg}
		if oc, ok := byLeg[leg.Index]; ok {
			previews[i].Quote = oc.Quote
			previews[i].Error = oc.Err
		}
	}
	return previews, nil
}
