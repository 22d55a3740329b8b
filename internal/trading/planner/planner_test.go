package planner

import (
	"testing"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usdc = core.Asset{
	Symbol:   "USDC",
	CoinType: "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC",
	Decimals: 6,
}

func defiBasket() core.WeightVector {
	return core.WeightVector{
		{Asset: core.Asset{Symbol: "SUI", CoinType: "0x2::sui::SUI", Decimals: 9, Price: decimal.RequireFromString("1.5")}, Weight: 50},
		{Asset: core.Asset{Symbol: "DEEP", CoinType: "0xdeep::deep::DEEP", Decimals: 6, Price: decimal.RequireFromString("0.8")}, Weight: 25},
		{Asset: core.Asset{Symbol: "NS", CoinType: "0xns::ns::NS", Decimals: 6, Price: decimal.RequireFromString("0.5")}, Weight: 25},
	}
}

func TestPlan_SplitsByWeight(t *testing.T) {
	legs, err := Plan(defiBasket(), decimal.NewFromInt(100), usdc, nil)
	require.NoError(t, err)
	require.Len(t, legs, 3)

	assert.Equal(t, "50000000", legs[0].InputAmount.String())
	assert.Equal(t, "25000000", legs[1].InputAmount.String())
	assert.Equal(t, "25000000", legs[2].InputAmount.String())

	for i, leg := range legs {
		assert.Equal(t, i, leg.Index)
		assert.Equal(t, "USDC", leg.InputAsset.Symbol)
	}
	assert.Equal(t, "SUI", legs[0].OutputAsset.Symbol)
	assert.Equal(t, "NS", legs[2].OutputAsset.Symbol)
}

func TestPlan_FloorsFractionalBaseUnits(t *testing.T) {
	weights := core.WeightVector{
		{Asset: core.Asset{Symbol: "A", CoinType: "0xa::a::A"}, Weight: 33.33},
		{Asset: core.Asset{Symbol: "B", CoinType: "0xb::b::B"}, Weight: 33.33},
		{Asset: core.Asset{Symbol: "C", CoinType: "0xc::c::C"}, Weight: 33.34},
	}
	// 0.000001 USDC * 33.33% is a fraction of one base unit
	legs, err := Plan(weights, decimal.RequireFromString("0.000001"), usdc, nil)
	require.NoError(t, err)
	for _, leg := range legs {
		assert.True(t, leg.InputAmount.IsZero())
	}

	legs, err = Plan(weights, decimal.RequireFromString("10.000007"), usdc, nil)
	require.NoError(t, err)
	assert.Equal(t, "3333002", legs[0].InputAmount.String())
	assert.True(t, TotalInput(legs).LessThanOrEqual(decimal.NewFromInt(10000007)))
}

func TestPlan_ZeroWeightGivesZeroLeg(t *testing.T) {
	weights := defiBasket()
	weights[1].Weight = 0
	weights[0].Weight = 75

	legs, err := Plan(weights, decimal.NewFromInt(10), usdc, nil)
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.True(t, legs[1].InputAmount.IsZero())
	assert.Equal(t, "DEEP", legs[1].OutputAsset.Symbol)
}

func TestPlan_CustomDecimals(t *testing.T) {
	legs, err := Plan(defiBasket(), decimal.NewFromInt(1), usdc, func(core.Asset) int32 { return 2 })
	require.NoError(t, err)
	assert.Equal(t, "50", legs[0].InputAmount.String())
}

func TestPlan_Errors(t *testing.T) {
	_, err := Plan(defiBasket(), decimal.NewFromInt(-1), usdc, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = Plan(defiBasket(), decimal.NewFromInt(1), core.Asset{Symbol: "USDC"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownAsset)

	meme := core.WeightVector{
		{Asset: core.Asset{Symbol: "SOL"}, Weight: 100},
	}
	_, err = Plan(meme, decimal.NewFromInt(1), usdc, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownAsset)

	// An unresolvable asset at zero weight is not spent on, so it is allowed
	meme = core.WeightVector{
		{Asset: core.Asset{Symbol: "SOL"}, Weight: 0},
		{Asset: core.Asset{Symbol: "SUI", CoinType: "0x2::sui::SUI"}, Weight: 100},
	}
	legs, err := Plan(meme, decimal.NewFromInt(1), usdc, nil)
	require.NoError(t, err)
	assert.Len(t, legs, 2)
}

func TestPlan_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("length and order preserved, never overspends", prop.ForAll(
		func(raw []float64, cents int64) bool {
			total := 0.0
			for _, w := range raw {
				total += w
			}
			weights := make(core.WeightVector, len(raw))
			for i, w := range raw {
				weights[i] = core.WeightEntry{
					Asset:  core.Asset{Symbol: string(rune('A' + i)), CoinType: "0x2::sui::SUI"},
					Weight: w / total * 100,
				}
			}
			amount := decimal.New(cents, -2)

			legs, err := Plan(weights, amount, usdc, nil)
			if err != nil || len(legs) != len(weights) {
				return false
			}
			for i, leg := range legs {
				if leg.Index != i || leg.OutputAsset.Symbol != weights[i].Asset.Symbol {
					return false
				}
				if leg.InputAmount.IsNegative() || !leg.InputAmount.Equal(leg.InputAmount.Floor()) {
					return false
				}
			}
			return TotalInput(legs).LessThanOrEqual(amount.Shift(6))
		},
		gen.SliceOfN(4, gen.Float64Range(0.01, 100)),
		gen.Int64Range(0, 100000000),
	))

	properties.TestingRun(t)
}

func TestEstimate(t *testing.T) {
	est := Estimate(defiBasket(), decimal.NewFromInt(100))
	require.Len(t, est, 3)

	assert.Equal(t, "50", est[0].QuoteAmount.String())
	assert.Equal(t, "33.3333333333333333", est[0].Units.String())
	assert.Equal(t, "25", est[1].QuoteAmount.String())
	assert.Equal(t, "31.25", est[1].Units.String())
	assert.Equal(t, "50", est[2].Units.String())

	free := core.WeightVector{{Asset: core.Asset{Symbol: "X"}, Weight: 100}}
	assert.True(t, Estimate(free, decimal.NewFromInt(5))[0].Units.IsZero())
}
