// Package core defines the core interfaces for the basket swap system
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IQuoteClient fetches swap quotes from a routing aggregator
type IQuoteClient interface {
	// GetQuote returns a validated quote for swapping AmountIn base units of TokenIn into TokenOut.
	GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// ITxBuilder turns quotes into programmable transactions
type ITxBuilder interface {
	// BuildSwap appends the swap route of req.Quote to req.Extend (or a fresh transaction when
	// Extend is nil) and returns the transaction together with the handle of the output coin.
	BuildSwap(ctx context.Context, req BuildRequest) (*BuildResult, error)

	// SplitFunding starts a transaction that splits the sender's funding coin into one coin per amount.
	SplitFunding(ctx context.Context, sender, coinType string, amounts []decimal.Decimal) (*Transaction, []CoinHandle, error)

	// TransferObjects appends a transfer of the given objects to recipient.
	TransferObjects(ctx context.Context, tx *Transaction, objects []CoinHandle, recipient string) (*Transaction, error)
}

// IExecutor hands out signing sessions bound to a single wallet
type IExecutor interface {
	Acquire(ctx context.Context, wallet *Wallet) (ISession, error)
}

// ISession signs and submits transactions for one wallet. It is owned by a single run and
// must be closed when the run ends.
type ISession interface {
	Address() string
	SignAndExecute(ctx context.Context, tx *Transaction, opts ExecuteOptions) (*Receipt, error)
	Close() error
}

// IWalletSource returns the wallet currently configured, or (nil, nil) when there is none
type IWalletSource interface {
	CurrentWallet(ctx context.Context) (*Wallet, error)
}

// IPriceSource resolves USD prices for price feed identifiers
type IPriceSource interface {
	GetPrices(ctx context.Context, feedIDs []string) (map[string]decimal.Decimal, error)
}

// IBalanceSource returns raw on-chain balances in base units
type IBalanceSource interface {
	GetBalance(ctx context.Context, owner, coinType string) (decimal.Decimal, error)
}

// IRunStore persists completed run snapshots
type IRunStore interface {
	SaveRun(ctx context.Context, snap RunSnapshot) error
	LoadRun(ctx context.Context, id string) (*RunSnapshot, error) // nil, nil when unknown
	ListRuns(ctx context.Context, limit int) ([]RunSnapshot, error) // Newest first
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
