package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// WeightTolerance is the tolerance used when comparing a weight sum against 100
const WeightTolerance = 1e-6

// Asset is a tradable coin as loaded from the basket catalog
type Asset struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	CoinType   string          `json:"coin_type"`
	Decimals   int32           `json:"decimals"`
	Price      decimal.Decimal `json:"price"` // Reference price, display and estimation only
	IconURL    string          `json:"icon_url,omitempty"`
	PythFeedID string          `json:"pyth_feed_id,omitempty"`
}

// WeightEntry pairs an asset with its target weight in percent
type WeightEntry struct {
	Asset  Asset   `json:"asset"`
	Weight float64 `json:"weight"`
}

// WeightVector is an ordered allocation whose weights sum to 100
type WeightVector []WeightEntry

// Sum returns the total weight
func (v WeightVector) Sum() float64 {
	total := 0.0
	for _, e := range v {
		total += e.Weight
	}
	return total
}

// Clone returns a copy that shares no backing array with v
func (v WeightVector) Clone() WeightVector {
	if v == nil {
		return nil
	}
	out := make(WeightVector, len(v))
	copy(out, v)
	return out
}

// Weights returns the bare weights in vector order
func (v WeightVector) Weights() []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = e.Weight
	}
	return out
}

// IsBalanced reports whether the weights sum to 100 within WeightTolerance
func (v WeightVector) IsBalanced() bool {
	return math.Abs(v.Sum()-100) <= WeightTolerance
}

// QuoteRequest asks for a route from TokenIn to TokenOut
type QuoteRequest struct {
	TokenIn  string          `json:"token_in"`
	TokenOut string          `json:"token_out"`
	AmountIn decimal.Decimal `json:"amount_in"` // Base units
}

// CacheKey identifies a quote request for caching
func (r QuoteRequest) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s", r.TokenIn, r.TokenOut, r.AmountIn.String())
}

// Quote is a validated route estimate returned by the aggregator
type Quote struct {
	ID        string          `json:"id"`
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Route     json.RawMessage `json:"route"` // Aggregator-owned payload passed back to the builder
	FetchedAt time.Time       `json:"fetched_at"`
}

// Validate checks that the quote answers req
func (q *Quote) Validate(req QuoteRequest) error {
	if q == nil {
		return fmt.Errorf("empty quote")
	}
	if q.TokenIn != req.TokenIn || q.TokenOut != req.TokenOut {
		return fmt.Errorf("quote pair %s->%s does not match request %s->%s", q.TokenIn, q.TokenOut, req.TokenIn, req.TokenOut)
	}
	if !q.AmountIn.Equal(req.AmountIn) {
		return fmt.Errorf("quote amount_in %s does not match request %s", q.AmountIn, req.AmountIn)
	}
	if !q.AmountOut.IsPositive() {
		return fmt.Errorf("quote has no output amount")
	}
	return nil
}

// Commission describes the partner fee attached to built swaps
type Commission struct {
	Partner string `json:"partner"`
	Bps     int    `json:"commission_bps"`
}

// ArgumentKind mirrors the programmable transaction argument kinds
type ArgumentKind string

const (
	ArgumentInput        ArgumentKind = "Input"
	ArgumentResult       ArgumentKind = "Result"
	ArgumentNestedResult ArgumentKind = "NestedResult"
	ArgumentGasCoin      ArgumentKind = "GasCoin"
)

// CoinHandle references a coin produced or consumed inside a transaction
type CoinHandle struct {
	Kind   ArgumentKind `json:"kind"`
	Index  int          `json:"index"`
	Nested int          `json:"nested,omitempty"`
}

// Transaction is a programmable transaction under construction. Bytes always holds the
// builder's latest serialization, so a transaction is signable after every step.
type Transaction struct {
	Sender   string `json:"sender"`
	Bytes    []byte `json:"bytes"`
	Commands int    `json:"commands"`
}

// BuildRequest is the input of ITxBuilder.BuildSwap
type BuildRequest struct {
	Quote      *Quote
	Extend     *Transaction // nil starts a new transaction
	CoinIn     *CoinHandle  // nil lets the builder source the input coin from the sender
	Sender     string
	Slippage   float64 // Fraction, 0.01 = 1%
	Commission Commission
}

// BuildResult is the output of ITxBuilder.BuildSwap
type BuildResult struct {
	Tx      *Transaction
	CoinOut CoinHandle
}

// ExecuteOptions are passed through to the execution backend
type ExecuteOptions struct {
	RequestType string
	ShowEffects bool
	ShowEvents  bool
}

// DefaultExecuteOptions waits for local execution and returns effects and events
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		RequestType: "WaitForLocalExecution",
		ShowEffects: true,
		ShowEvents:  true,
	}
}

// ExecutionStatus is the on-chain status of an executed transaction
type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Effects carries the subset of transaction effects the orchestrator inspects
type Effects struct {
	Status ExecutionStatus `json:"status"`
}

// Receipt is returned by ISession.SignAndExecute
type Receipt struct {
	Digest  string  `json:"digest"`
	Effects Effects `json:"effects"`
}

// Succeeded reports whether the transaction applied on chain
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Effects.Status.Status == "success"
}

// FailureMessage returns the chain's error message, or a generic one
func (r *Receipt) FailureMessage() string {
	if r != nil && r.Effects.Status.Error != "" {
		return r.Effects.Status.Error
	}
	return "Transaction failed"
}

// Wallet is key material handed out by an IWalletSource
type Wallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// String never prints the private key
func (w Wallet) String() string {
	return fmt.Sprintf("Wallet{Address: %s, PrivateKey: [REDACTED]}", w.Address)
}

// GoString never prints the private key
func (w Wallet) GoString() string {
	return w.String()
}

// SwapLeg is one asset's swap within a purchase
type SwapLeg struct {
	Index       int             `json:"index"`
	InputAsset  Asset           `json:"input_asset"`
	OutputAsset Asset           `json:"output_asset"`
	InputAmount decimal.Decimal `json:"input_amount"` // Base units of InputAsset
	Weight      float64         `json:"weight"`
}

// ResultStatus is the per-leg state
type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ErrorKind classifies a failed leg
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindQuote     ErrorKind = "quote"
	ErrorKindBuild     ErrorKind = "build"
	ErrorKindExecution ErrorKind = "execution"
)

// BatchLegIndex is the leg index of the single result recorded for a batched run
const BatchLegIndex = -1

// SwapResult is the observable outcome of one leg
type SwapResult struct {
	LegIndex int          `json:"leg_index"`
	Symbol   string       `json:"symbol"`
	Status   ResultStatus `json:"status"`
	Digest   string       `json:"digest,omitempty"`
	Kind     ErrorKind    `json:"kind,omitempty"`
	Error    string       `json:"error,omitempty"`
	Skipped  bool         `json:"skipped,omitempty"`
}

// IsTerminal reports whether the leg has resolved
func (r SwapResult) IsTerminal() bool {
	return r.Status == ResultSuccess || r.Status == ResultError
}

// RunStatus is the orchestration run state
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
)

// ExecutionMode selects one transaction per leg or one transaction for all legs
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeBatched    ExecutionMode = "batched"
)

// ParseExecutionMode accepts "" as sequential
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeBatched:
		return ModeBatched, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// PurchaseRequest starts a run
type PurchaseRequest struct {
	BasketID string          `json:"basket_id"`
	Weights  WeightVector    `json:"weights"`
	Amount   decimal.Decimal `json:"amount"` // Funding asset units
	Mode     ExecutionMode   `json:"mode"`
}

// RunSnapshot is a copy of the orchestration run state
type RunSnapshot struct {
	ID          string          `json:"id"`
	BasketID    string          `json:"basket_id"`
	Mode        ExecutionMode   `json:"mode"`
	Status      RunStatus       `json:"status"`
	AllOK       bool            `json:"all_ok"`
	Cancelled   bool            `json:"cancelled"`
	Amount      decimal.Decimal `json:"amount"`
	Weights     WeightVector    `json:"weights"`
	Legs        []SwapLeg       `json:"legs"`
	Results     []SwapResult    `json:"results"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}
