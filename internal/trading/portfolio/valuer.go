// Package portfolio values the holdings of an address in USD
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"basket_swap/internal/catalog"
	"basket_swap/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Holding is one token balance and its USD value
type Holding struct {
	Token   catalog.Token   `json:"token"`
	Balance decimal.Decimal `json:"balance"` // Token units
	Price   decimal.Decimal `json:"price"`
	Value   decimal.Decimal `json:"value"`
	Priced  bool            `json:"priced"`
	Error   string          `json:"error,omitempty"`
}

// Valuation is a point in time view of an address
type Valuation struct {
	Address  string          `json:"address"`
	Holdings []Holding       `json:"holdings"`
	TotalUSD decimal.Decimal `json:"total_usd"`
	AsOf     time.Time       `json:"as_of"`
}

// Valuer combines on-chain balances with oracle prices
type Valuer struct {
	balances    core.IBalanceSource
	prices      core.IPriceSource
	tokens      []catalog.Token
	concurrency int
	logger      core.ILogger
}

func NewValuer(balances core.IBalanceSource, prices core.IPriceSource, tokens []catalog.Token, logger core.ILogger) *Valuer {
	return &Valuer{
		balances:    balances,
		prices:      prices,
		tokens:      tokens,
		concurrency: 4,
		logger:      logger.WithField("component", "portfolio"),
	}
}

// Tokens returns the tokens that are valued
func (v *Valuer) Tokens() []catalog.Token {
	return v.tokens
}

// Value reads every token balance of address and prices it. A token whose balance cannot be
// read is reported with its error and left out of the total. It fails only when no balance
// could be read at all. Ad-hoc valuations are not exported as metrics; see Tracker.
func (v *Valuer) Value(ctx context.Context, address string) (*Valuation, error) {
	holdings := make([]Holding, len(v.tokens))

	var (
		mu       sync.Mutex
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, t := range v.tokens {
		g.Go(func() error {
			h := Holding{Token: t}
			raw, err := v.balances.GetBalance(gctx, address, t.CoinType)
			if err != nil {
				h.Error = err.Error()
				mu.Lock()
				failures++
				mu.Unlock()
				v.logger.Warn("Balance read failed", "address", address, "token", t.Symbol, "error", err)
			} else {
				h.Balance = raw.Shift(-t.Decimals)
			}
			holdings[i] = h
			return nil
		})
	}
	_ = g.Wait()

	if len(v.tokens) > 0 && failures == len(v.tokens) {
		return nil, fmt.Errorf("no balances available for %s: %s", address, holdings[0].Error)
	}

	prices := v.fetchPrices(ctx)

	total := decimal.Zero
	for i := range holdings {
		h := &holdings[i]
		if h.Error != "" {
			continue
		}
		if p, ok := prices[h.Token.PythFeedID]; ok {
			h.Price = p
			h.Priced = true
			h.Value = h.Balance.Mul(p)
			total = total.Add(h.Value)
		}
	}

	return &Valuation{
		Address:  address,
		Holdings: holdings,
		TotalUSD: total,
		AsOf:     time.Now(),
	}, nil
}

func (v *Valuer) fetchPrices(ctx context.Context) map[string]decimal.Decimal {
	ids := make([]string, 0, len(v.tokens))
	for _, t := range v.tokens {
		if t.PythFeedID != "" {
			ids = append(ids, t.PythFeedID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	prices, err := v.prices.GetPrices(ctx, ids)
	if err != nil {
		v.logger.Warn("Price fetch failed, holdings left unpriced", "error", err)
		return nil
	}
	return prices
}
