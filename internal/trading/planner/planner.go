// Package planner turns a weight vector and an investment amount into swap legs
package planner

import (
	"fmt"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DecimalsFunc resolves the on-chain decimals of an asset
type DecimalsFunc func(core.Asset) int32

// AssetDecimals reads Asset.Decimals
func AssetDecimals(a core.Asset) int32 {
	return a.Decimals
}

// Plan produces one leg per weight entry, in vector order. Each leg spends
// floor(amount * weight / 100 * 10^decimals(funding)) base units of the funding asset, so
// the legs never spend more than amount in total. Zero-weight entries give zero-amount legs.
func Plan(weights core.WeightVector, amount decimal.Decimal, funding core.Asset, decimalsOf DecimalsFunc) ([]core.SwapLeg, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount %s: %w", amount, apperrors.ErrInvalidAmount)
	}
	if funding.CoinType == "" {
		return nil, fmt.Errorf("funding asset %s has no coin type: %w", funding.Symbol, apperrors.ErrUnknownAsset)
	}
	if decimalsOf == nil {
		decimalsOf = AssetDecimals
	}

	scale := decimalsOf(funding)
	legs := make([]core.SwapLeg, 0, len(weights))
	for i, entry := range weights {
		if entry.Weight < 0 {
			return nil, fmt.Errorf("leg %d (%s) weight %v: %w", i, entry.Asset.Symbol, entry.Weight, apperrors.ErrInvalidWeights)
		}
		if entry.Weight > 0 && entry.Asset.CoinType == "" {
			return nil, fmt.Errorf("leg %d (%s): %w", i, entry.Asset.Symbol, apperrors.ErrUnknownAsset)
		}

		// Shift by scale-2 divides the percentage exactly
		baseUnits := amount.
			Mul(decimal.NewFromFloat(entry.Weight)).
			Shift(scale - 2).
			Floor()

		legs = append(legs, core.SwapLeg{
			Index:       i,
			InputAsset:  funding,
			OutputAsset: entry.Asset,
			InputAmount: baseUnits,
			Weight:      entry.Weight,
		})
	}
	return legs, nil
}

// AssetEstimate is the display-only allocation of an investment to one asset
type AssetEstimate struct {
	Asset       core.Asset      `json:"asset"`
	Weight      float64         `json:"weight"`
	QuoteAmount decimal.Decimal `json:"quote_amount"` // Funding asset units
	Units       decimal.Decimal `json:"units"`        // Asset units at the reference price
}

// Estimate splits amount by weight and converts each share at the asset's reference price.
// Units is zero when the price is not positive.
func Estimate(weights core.WeightVector, amount decimal.Decimal) []AssetEstimate {
	out := make([]AssetEstimate, len(weights))
	for i, entry := range weights {
		quote := amount.Mul(decimal.NewFromFloat(entry.Weight)).Div(hundred)
		units := decimal.Zero
		if entry.Asset.Price.IsPositive() {
			units = quote.Div(entry.Asset.Price)
		}
		out[i] = AssetEstimate{
			Asset:       entry.Asset,
			Weight:      entry.Weight,
			QuoteAmount: quote,
			Units:       units,
		}
	}
	return out
}

// TotalInput sums the input amounts of legs
func TotalInput(legs []core.SwapLeg) decimal.Decimal {
	total := decimal.Zero
	for _, l := range legs {
		total = total.Add(l.InputAmount)
	}
	return total
}
