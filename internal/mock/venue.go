package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// swapOp is one swap folded into a mock transaction
type swapOp struct {
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
}

// txBody is the payload carried in Transaction.Bytes
type txBody struct {
	FundingType string            `json:"funding_type,omitempty"`
	Splits      []decimal.Decimal `json:"splits,omitempty"`
	Swaps       []swapOp          `json:"swaps"`
	Transfer    bool              `json:"transfer,omitempty"`
}

// ExecutedTx is a transaction the venue applied
type ExecutedTx struct {
	Digest string
	Sender string
	Swaps  []swapOp
}

// MockVenue is an in-memory aggregator and chain. It implements IQuoteClient, ITxBuilder,
// IExecutor, IWalletSource, IBalanceSource and IPriceSource.
type MockVenue struct {
	mu        sync.Mutex
	rates     map[string]decimal.Decimal // Output base units per input base unit, by output coin type
	prices    map[string]decimal.Decimal // By price feed id
	quoteErrs map[string]error
	buildErrs map[string]error
	execFails map[string]string // Output coin type -> on-chain failure message
	balances  map[string]map[string]decimal.Decimal
	funded    map[string]bool
	wallet    *core.Wallet
	txCount   int64
	executed  []ExecutedTx
}

func NewMockVenue() *MockVenue {
	return &MockVenue{
		rates:     make(map[string]decimal.Decimal),
		prices:    make(map[string]decimal.Decimal),
		quoteErrs: make(map[string]error),
		buildErrs: make(map[string]error),
		execFails: make(map[string]string),
		balances:  make(map[string]map[string]decimal.Decimal),
		funded:    make(map[string]bool),
	}
}

func (m *MockVenue) SetRate(coinType string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[coinType] = rate
}

func (m *MockVenue) SetPrice(feedID string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[feedID] = price
}

func (m *MockVenue) FailQuote(coinType string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteErrs[coinType] = err
}

func (m *MockVenue) FailBuild(coinType string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildErrs[coinType] = err
}

// FailExecution makes any transaction swapping into coinType fail on chain with msg
func (m *MockVenue) FailExecution(coinType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execFails[coinType] = msg
}

// Fund credits owner. Owners that were never funded are not balance checked.
func (m *MockVenue) Fund(owner, coinType string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[owner] == nil {
		m.balances[owner] = make(map[string]decimal.Decimal)
	}
	m.balances[owner][coinType] = m.balances[owner][coinType].Add(amount)
	m.funded[owner] = true
}

func (m *MockVenue) SetWallet(w *core.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallet = w
}

// Executed returns the transactions applied so far
func (m *MockVenue) Executed() []ExecutedTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutedTx, len(m.executed))
	copy(out, m.executed)
	return out
}

func (m *MockVenue) GetQuote(ctx context.Context, req core.QuoteRequest) (*core.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.quoteErrs[req.TokenOut]; err != nil {
		return nil, err
	}
	rate, ok := m.rates[req.TokenOut]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNoRoute, req.TokenOut)
	}

	route, _ := json.Marshal(map[string]string{"venue": "mock"})
	return &core.Quote{
		ID:        uuid.NewString(),
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		AmountOut: req.AmountIn.Mul(rate).Floor(),
		Route:     route,
	}, nil
}

func (m *MockVenue) BuildSwap(ctx context.Context, req core.BuildRequest) (*core.BuildResult, error) {
	if req.Quote == nil {
		return nil, fmt.Errorf("%w: no quote", apperrors.ErrBuildFailed)
	}
	m.mu.Lock()
	err := m.buildErrs[req.Quote.TokenOut]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	body := txBody{}
	commands := 0
	sender := req.Sender
	if req.Extend != nil {
		if err := json.Unmarshal(req.Extend.Bytes, &body); err != nil {
			return nil, fmt.Errorf("%w: unreadable transaction: %v", apperrors.ErrBuildFailed, err)
		}
		commands = req.Extend.Commands
		sender = req.Extend.Sender
	}
	body.Swaps = append(body.Swaps, swapOp{
		TokenIn:   req.Quote.TokenIn,
		TokenOut:  req.Quote.TokenOut,
		AmountIn:  req.Quote.AmountIn,
		AmountOut: req.Quote.AmountOut,
	})

	tx, err := encodeTx(sender, body, commands+1)
	if err != nil {
		return nil, err
	}
	return &core.BuildResult{Tx: tx, CoinOut: core.CoinHandle{Kind: core.ArgumentResult, Index: commands}}, nil
}

func (m *MockVenue) SplitFunding(ctx context.Context, sender, coinType string, amounts []decimal.Decimal) (*core.Transaction, []core.CoinHandle, error) {
	tx, err := encodeTx(sender, txBody{FundingType: coinType, Splits: amounts}, 1)
	if err != nil {
		return nil, nil, err
	}
	coins := make([]core.CoinHandle, len(amounts))
	for i := range amounts {
		coins[i] = core.CoinHandle{Kind: core.ArgumentNestedResult, Index: 0, Nested: i}
	}
	return tx, coins, nil
}

func (m *MockVenue) TransferObjects(ctx context.Context, tx *core.Transaction, objects []core.CoinHandle, recipient string) (*core.Transaction, error) {
	var body txBody
	if err := json.Unmarshal(tx.Bytes, &body); err != nil {
		return nil, fmt.Errorf("%w: unreadable transaction: %v", apperrors.ErrBuildFailed, err)
	}
	body.Transfer = true
	return encodeTx(tx.Sender, body, tx.Commands+1)
}

func encodeTx(sender string, body txBody, commands int) (*core.Transaction, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &core.Transaction{Sender: sender, Bytes: raw, Commands: commands}, nil
}

func (m *MockVenue) CurrentWallet(ctx context.Context) (*core.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet == nil {
		return nil, nil
	}
	w := *m.wallet
	return &w, nil
}

func (m *MockVenue) Acquire(ctx context.Context, w *core.Wallet) (core.ISession, error) {
	if w == nil || w.PrivateKey == "" {
		return nil, apperrors.ErrInvalidKey
	}
	return &mockSession{venue: m, address: w.Address}, nil
}

func (m *MockVenue) GetBalance(ctx context.Context, owner, coinType string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner][coinType], nil
}

func (m *MockVenue) GetPrices(ctx context.Context, feedIDs []string) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(feedIDs))
	for _, id := range feedIDs {
		if p, ok := m.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *MockVenue) execute(sender string, tx *core.Transaction) (*core.Receipt, error) {
	var body txBody
	if err := json.Unmarshal(tx.Bytes, &body); err != nil {
		return nil, fmt.Errorf("%w: unreadable transaction: %v", apperrors.ErrInvalidResponse, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	digest := fmt.Sprintf("MOCK%08d", m.txCount)
	fail := func(msg string) *core.Receipt {
		return &core.Receipt{Digest: digest, Effects: core.Effects{Status: core.ExecutionStatus{Status: "failure", Error: msg}}}
	}

	for _, s := range body.Swaps {
		if msg, ok := m.execFails[s.TokenOut]; ok {
			return fail(msg), nil
		}
	}

	owned := m.balances[sender]
	if owned == nil {
		owned = make(map[string]decimal.Decimal)
		m.balances[sender] = owned
	}
	if m.funded[sender] {
		need := make(map[string]decimal.Decimal)
		for _, s := range body.Swaps {
			need[s.TokenIn] = need[s.TokenIn].Add(s.AmountIn)
		}
		for coin, amt := range need {
			if owned[coin].LessThan(amt) {
				return fail("InsufficientCoinBalance"), nil
			}
		}
	}

	for _, s := range body.Swaps {
		owned[s.TokenIn] = owned[s.TokenIn].Sub(s.AmountIn)
		owned[s.TokenOut] = owned[s.TokenOut].Add(s.AmountOut)
	}
	m.executed = append(m.executed, ExecutedTx{Digest: digest, Sender: sender, Swaps: body.Swaps})
	return &core.Receipt{Digest: digest, Effects: core.Effects{Status: core.ExecutionStatus{Status: "success"}}}, nil
}

type mockSession struct {
	venue   *MockVenue
	address string
	closed  bool
}

func (s *mockSession) Address() string {
	return s.address
}

func (s *mockSession) SignAndExecute(ctx context.Context, tx *core.Transaction, opts core.ExecuteOptions) (*core.Receipt, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	return s.venue.execute(s.address, tx)
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}
