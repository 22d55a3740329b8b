package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	"basket_swap/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// batchSymbol labels the single result of a batched run
const batchSymbol = "batch"

// SplitResult is the recorded outcome of splitting the funding coin
type SplitResult struct {
	Tx    *core.Transaction
	Coins []core.CoinHandle
}

// executeBatched folds every non-zero leg into one transaction and submits it once. Any
// quote or build failure aborts the run before submission.
func (o *Orchestrator) executeBatched(ctx context.Context, steps StepRunner, session core.ISession, legs []core.SwapLeg, logger core.ILogger) error {
	started := time.Now()
	pos := o.appendResult(core.SwapResult{
		LegIndex: core.BatchLegIndex,
		Symbol:   batchSymbol,
		Status:   core.ResultPending,
	})

	result, err := o.runBatch(ctx, steps, session, legs, logger)
	o.resolveResult(pos, result)
	o.metrics.RecordLeg(ctx, string(result.Status), string(result.Kind), float64(time.Since(started).Milliseconds()))

	var abort *core.BatchAbortError
	switch {
	case errors.As(err, &abort):
		logger.Error("Batch aborted before submission", "leg", abort.Leg, "reason", abort.Reason, "error", abort.Err)
	case result.Status == core.ResultError && result.Kind == core.ErrorKindNone:
		logger.Info("Batch cancelled before submission")
	case result.Status == core.ResultError:
		logger.Warn("Batch transaction failed", "error", result.Error, "digest", result.Digest)
	case result.Skipped:
		logger.Info("Batch had nothing to submit")
	default:
		logger.Info("Batch transaction succeeded", "digest", result.Digest)
	}
	return err
}

func (o *Orchestrator) runBatch(ctx context.Context, steps StepRunner, session core.ISession, legs []core.SwapLeg, logger core.ILogger) (core.SwapResult, error) {
	result := core.SwapResult{LegIndex: core.BatchLegIndex, Symbol: batchSymbol}

	abort := func(kind core.ErrorKind, leg int, reason string, err error) (core.SwapResult, error) {
		result.Status = core.ResultError
		result.Kind = kind
		result.Error = fmt.Sprintf("%s: %v", reason, err)
		return result, &core.BatchAbortError{Leg: leg, Reason: reason, Err: err}
	}
	cancel := func() (core.SwapResult, error) {
		o.markCancelled()
		result.Status = core.ResultError
		result.Error = "cancelled before submission"
		return result, nil
	}

	active := make([]core.SwapLeg, 0, len(legs))
	for _, leg := range legs {
		if leg.InputAmount.IsPositive() {
			active = append(active, leg)
		}
	}
	if len(active) == 0 {
		result.Status = core.ResultSuccess
		result.Skipped = true
		return result, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "swap.batch", attribute.Int("legs", len(active)))
	defer span.End()

	if o.cancelled(ctx) {
		return cancel()
	}

	// 1. Quote every leg
	outcomes, err := runStep(ctx, steps, "quote-all", func(ctx context.Context) ([]QuoteOutcome, error) {
		return o.fetchQuotes(ctx, active), nil
	})
	// Quotes cut short by a cancel are not venue failures
	if o.cancelled(ctx) {
		return cancel()
	}
	if err != nil {
		return abort(core.ErrorKindQuote, core.BatchLegIndex, "quote", err)
	}
	if len(outcomes) != len(active) {
		return abort(core.ErrorKindQuote, core.BatchLegIndex, "quote", fmt.Errorf("%w: %d quotes for %d legs", apperrors.ErrInvalidResponse, len(outcomes), len(active)))
	}
	for _, oc := range outcomes {
		if oc.Err != "" {
			return abort(core.ErrorKindQuote, oc.LegIndex, "quote", fmt.Errorf("%w: %s", apperrors.ErrQuoteFailed, oc.Err))
		}
	}
	logger.Debug("Batch quotes fetched", "legs", len(outcomes))

	sender := session.Address()

	// 2. Split the funding coin into one coin per leg
	amounts := make([]decimal.Decimal, len(active))
	for i, leg := range active {
		amounts[i] = leg.InputAmount
	}
	split, err := runStep(ctx, steps, "split", func(ctx context.Context) (*SplitResult, error) {
		tx, coins, err := o.builder.SplitFunding(ctx, sender, o.cfg.Funding.CoinType, amounts)
		if err != nil {
			return nil, err
		}
		if tx == nil || len(coins) != len(amounts) {
			return nil, fmt.Errorf("%w: split returned %d coins for %d legs", apperrors.ErrInvalidResponse, len(coins), len(amounts))
		}
		return &SplitResult{Tx: tx, Coins: coins}, nil
	})
	if err != nil {
		return abort(core.ErrorKindBuild, core.BatchLegIndex, "split", err)
	}

	// 3. Extend the transaction with one swap per leg
	tx := split.Tx
	objects := make([]core.CoinHandle, 0, 2*len(active))
	for k, leg := range active {
		coinIn := split.Coins[k]
		extend := tx
		built, err := runStep(ctx, steps, fmt.Sprintf("build-%d", leg.Index), func(ctx context.Context) (*core.BuildResult, error) {
			res, err := o.builder.BuildSwap(ctx, core.BuildRequest{
				Quote:      outcomes[k].Quote,
				Extend:     extend,
				CoinIn:     &coinIn,
				Sender:     sender,
				Slippage:   o.cfg.Slippage,
				Commission: o.cfg.Commission,
			})
			if err != nil {
				return nil, err
			}
			if res == nil || res.Tx == nil {
				return nil, fmt.Errorf("%w: builder returned no transaction", apperrors.ErrInvalidResponse)
			}
			return res, nil
		})
		if err != nil {
			return abort(core.ErrorKindBuild, leg.Index, "build", fmt.Errorf("%w: %v", apperrors.ErrBuildFailed, err))
		}
		tx = built.Tx
		objects = append(objects, built.CoinOut)
	}

	// 4. Send every output and what is left of the split coins back to the sender
	objects = append(objects, split.Coins...)
	final, err := runStep(ctx, steps, "transfer", func(ctx context.Context) (*core.Transaction, error) {
		return o.builder.TransferObjects(ctx, tx, objects, sender)
	})
	if err != nil {
		return abort(core.ErrorKindBuild, core.BatchLegIndex, "transfer", err)
	}
	if final == nil || len(final.Bytes) == 0 {
		return abort(core.ErrorKindBuild, core.BatchLegIndex, "transfer", fmt.Errorf("%w: empty transaction", apperrors.ErrInvalidResponse))
	}

	if o.cancelled(ctx) {
		return cancel()
	}

	// 5. One submission for the whole basket
	receipt, err := runStep(ctx, steps, "execute", func(ctx context.Context) (*core.Receipt, error) {
		return session.SignAndExecute(context.WithoutCancel(ctx), final, o.cfg.ExecuteOptions)
	})
	if err != nil {
		span.RecordError(err)
		result.Status = core.ResultError
		result.Kind = core.ErrorKindExecution
		result.Error = err.Error()
		return result, nil
	}
	if !receipt.Succeeded() {
		result.Status = core.ResultError
		result.Kind = core.ErrorKindExecution
		result.Digest = digestOf(receipt)
		result.Error = receipt.FailureMessage()
		return result, nil
	}

	result.Status = core.ResultSuccess
	result.Digest = receipt.Digest
	span.SetAttributes(attribute.String("digest", receipt.Digest))
	return result, nil
}
