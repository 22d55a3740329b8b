package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"basket_swap/internal/aggregator"
	"basket_swap/internal/catalog"
	"basket_swap/internal/chain/sui"
	"basket_swap/internal/core"
	"basket_swap/internal/infrastructure/cache"
	"basket_swap/internal/mock"
	"basket_swap/internal/pricing"
	"basket_swap/internal/wallet"

	"github.com/shopspring/decimal"
)

// Venue bundles the collaborators the orchestrator and portfolio valuer talk to
type Venue struct {
	Quotes   core.IQuoteClient
	Builder  core.ITxBuilder
	Executor core.IExecutor
	Balances core.IBalanceSource
	Prices   core.IPriceSource

	// Optional health checks keyed by component name
	Checks  map[string]func() error
	Closers []io.Closer
}

// NewVenue builds the live or mock venue selected by cfg.App.Venue
func NewVenue(cfg *Config, baskets []catalog.Basket, logger core.ILogger) (*Venue, error) {
	if cfg.App.Venue == "mock" {
		logger.Info("Using MOCK venue, no transaction reaches the chain")
		return newMockVenue(baskets, fundingAsset(cfg)), nil
	}
	return newLiveVenue(cfg, logger)
}

func newLiveVenue(cfg *Config, logger core.ILogger) (*Venue, error) {
	client := aggregator.NewClient(aggregator.Config{
		BaseURL:   cfg.Aggregator.BaseURL,
		APIKey:    cfg.Aggregator.APIKey.Reveal(),
		Timeout:   cfg.Aggregator.Timeout(),
		RateLimit: cfg.Aggregator.RateLimit,
		RateBurst: cfg.Aggregator.RateBurst,
		Sources:   cfg.Aggregator.Sources,
	}, logger)

	rpc := sui.NewRPCClient(cfg.Chain.RPCURL, cfg.Chain.Timeout())
	v := &Venue{
		Quotes:   client,
		Builder:  client,
		Executor: sui.NewExecutor(rpc, logger),
		Balances: rpc,
		Prices:   pricing.NewHermesClient(cfg.Pricing.HermesURL, cfg.Pricing.Timeout(), logger),
		Checks:   make(map[string]func() error),
	}

	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.Config{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword.Reveal(),
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("quote cache: %w", err)
		}
		v.Quotes = aggregator.NewCachedQuoteClient(client, rc, cfg.Cache.QuoteTTL(), logger)
		v.Checks["quote_cache"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rc.Ping(ctx)
		}
		v.Closers = append(v.Closers, rc)
		logger.Info("Quote cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.QuoteTTL())
	}

	return v, nil
}

// newMockVenue quotes every basket asset at its reference price and reports the same prices
// for valuation
func newMockVenue(baskets []catalog.Basket, funding core.Asset) *Venue {
	venue := mock.NewMockVenue()
	if funding.PythFeedID != "" {
		venue.SetPrice(funding.PythFeedID, decimal.NewFromInt(1))
	}

	for _, b := range baskets {
		for _, e := range b.Weights {
			a := e.Asset
			if a.CoinType == "" || !a.Price.IsPositive() {
				continue
			}
			// Base units of a per base unit of funding
			rate := decimal.New(1, a.Decimals-funding.Decimals).Div(a.Price)
			venue.SetRate(a.CoinType, rate)
			if a.PythFeedID != "" {
				venue.SetPrice(a.PythFeedID, a.Price)
			}
		}
	}

	return &Venue{
		Quotes:   venue,
		Builder:  venue,
		Executor: venue,
		Balances: venue,
		Prices:   venue,
	}
}

// NewWalletSource returns the signing wallet source selected by cfg.Wallet.Source
func NewWalletSource(cfg *Config) core.IWalletSource {
	if cfg.Wallet.Source == "env" {
		return wallet.NewStaticSource(cfg.Wallet.Address, cfg.Wallet.PrivateKey.Reveal())
	}
	return wallet.NewFileSource(cfg.Wallet.File)
}

func fundingAsset(cfg *Config) core.Asset {
	asset := core.Asset{
		Symbol:   cfg.Funding.Symbol,
		CoinType: cfg.Funding.CoinType,
		Decimals: cfg.Funding.Decimals,
	}
	if t, ok := catalog.DefaultRegistry().ByCoinType(asset.CoinType); ok {
		asset.Name = t.Name
		asset.PythFeedID = t.PythFeedID
		asset.IconURL = t.IconURL
	}
	return asset
}
