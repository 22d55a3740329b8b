package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	"basket_swap/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// executeSequential submits one transaction per leg, strictly in order. A failed leg is
// recorded and the next leg is still attempted.
func (o *Orchestrator) executeSequential(ctx context.Context, steps StepRunner, session core.ISession, legs []core.SwapLeg, logger core.ILogger) {
	var prefetched map[int]QuoteOutcome
	if o.cfg.PrefetchQuotes && !o.cancelled(ctx) {
		outcomes, err := runStep(ctx, steps, "quote-all", func(ctx context.Context) ([]QuoteOutcome, error) {
			return o.fetchQuotes(ctx, legs), nil
		})
		if err != nil {
			logger.Warn("Quote prefetch failed, quoting per leg", "error", err)
		}
		prefetched = make(map[int]QuoteOutcome, len(outcomes))
		for _, oc := range outcomes {
			prefetched[oc.LegIndex] = oc
		}
	}

	for _, leg := range legs {
		if o.cancelled(ctx) {
			o.markCancelled()
			logger.Info("Run cancelled before leg", "leg", leg.Index, "remaining", len(legs)-leg.Index)
			return
		}

		started := time.Now()
		pos := o.appendResult(core.SwapResult{
			LegIndex: leg.Index,
			Symbol:   leg.OutputAsset.Symbol,
			Status:   core.ResultPending,
		})

		var pre *QuoteOutcome
		if oc, ok := prefetched[leg.Index]; ok {
			pre = &oc
		}
		result := o.runLeg(ctx, steps, session, leg, pre)
		o.resolveResult(pos, result)

		o.metrics.RecordLeg(ctx, string(result.Status), string(result.Kind), float64(time.Since(started).Milliseconds()))
		if result.Status == core.ResultError {
			logger.Warn("Leg failed", "leg", leg.Index, "symbol", result.Symbol, "kind", string(result.Kind), "error", result.Error)
		} else {
			logger.Info("Leg succeeded", "leg", leg.Index, "symbol", result.Symbol, "digest", result.Digest, "skipped", result.Skipped)
		}
	}
}

// runLeg drives one leg through quote, build and execution and returns its terminal result
func (o *Orchestrator) runLeg(ctx context.Context, steps StepRunner, session core.ISession, leg core.SwapLeg, pre *QuoteOutcome) core.SwapResult {
	result := core.SwapResult{LegIndex: leg.Index, Symbol: leg.OutputAsset.Symbol}

	if !leg.InputAmount.IsPositive() {
		result.Status = core.ResultSuccess
		result.Skipped = true
		return result
	}

	ctx, span := telemetry.StartSpan(ctx, "swap.leg",
		attribute.Int("leg", leg.Index),
		attribute.String("token_out", leg.OutputAsset.CoinType),
		attribute.String("amount_in", leg.InputAmount.String()),
	)
	defer span.End()

	fail := func(kind core.ErrorKind, err error) core.SwapResult {
		legErr := &core.LegError{Kind: kind, Leg: leg.Index, Err: err}
		span.RecordError(legErr)
		result.Status = core.ResultError
		result.Kind = kind
		result.Error = err.Error()
		return result
	}

	var quote *core.Quote
	if pre != nil {
		if pre.Err != "" {
			return fail(core.ErrorKindQuote, errors.New(pre.Err))
		}
		quote = pre.Quote
	} else {
		q, err := runStep(ctx, steps, fmt.Sprintf("quote-%d", leg.Index), func(ctx context.Context) (*core.Quote, error) {
			return o.quote(ctx, leg)
		})
		if err != nil {
			return fail(core.ErrorKindQuote, err)
		}
		quote = q
	}

	built, err := runStep(ctx, steps, fmt.Sprintf("build-%d", leg.Index), func(ctx context.Context) (*core.BuildResult, error) {
		res, err := o.builder.BuildSwap(ctx, core.BuildRequest{
			Quote:      quote,
			Sender:     session.Address(),
			Slippage:   o.cfg.Slippage,
			Commission: o.cfg.Commission,
		})
		if err != nil {
			return nil, err
		}
		if res == nil || res.Tx == nil || len(res.Tx.Bytes) == 0 {
			return nil, fmt.Errorf("%w: builder returned no transaction", apperrors.ErrInvalidResponse)
		}
		return res, nil
	})
	if err != nil {
		return fail(core.ErrorKindBuild, err)
	}

	receipt, err := runStep(ctx, steps, fmt.Sprintf("execute-%d", leg.Index), func(ctx context.Context) (*core.Receipt, error) {
		// Submission is never cancelled locally
		return session.SignAndExecute(context.WithoutCancel(ctx), built.Tx, o.cfg.ExecuteOptions)
	})
	if err != nil {
		return fail(core.ErrorKindExecution, err)
	}
	if !receipt.Succeeded() {
		result.Digest = digestOf(receipt)
		return fail(core.ErrorKindExecution, errors.New(receipt.FailureMessage()))
	}

	result.Status = core.ResultSuccess
	result.Digest = receipt.Digest
	span.SetAttributes(attribute.String("digest", receipt.Digest))
	return result
}

func digestOf(r *core.Receipt) string {
	if r == nil {
		return ""
	}
	return r.Digest
}
