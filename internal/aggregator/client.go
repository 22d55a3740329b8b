// Package aggregator talks to the swap routing aggregator: quotes over GET /quote and
// programmable transaction construction over the /build, /split and /transfer endpoints.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	pkghttp "basket_swap/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Config holds aggregator connection settings
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // Requests per second, 0 disables limiting
	RateBurst int
	Sources   []string // Liquidity sources to route through, empty means all
}

// Client implements core.IQuoteClient and core.ITxBuilder
type Client struct {
	http    *pkghttp.Client
	limiter *rate.Limiter
	sources string
	logger  core.ILogger
}

// NewClient creates an aggregator client
func NewClient(cfg Config, logger core.ILogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	signer := pkghttp.HeaderSigner{Header: "x-api-key", Value: cfg.APIKey}
	return &Client{
		http:    pkghttp.NewClient(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, signer, pkghttp.WithName("aggregator")),
		limiter: limiter,
		sources: strings.Join(cfg.Sources, ","),
		logger:  logger.WithField("component", "aggregator"),
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRateLimitExceeded, err)
	}
	return nil
}

// GetQuote fetches and validates a route
func (c *Client) GetQuote(ctx context.Context, req core.QuoteRequest) (*core.Quote, error) {
	if !req.AmountIn.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s", apperrors.ErrInvalidAmount, req.AmountIn)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	params := map[string]string{
		"amount": req.AmountIn.String(),
		"from":   req.TokenIn,
		"to":     req.TokenOut,
	}
	if c.sources != "" {
		params["sources"] = c.sources
	}

	raw, err := c.http.Get(ctx, "/quote", params)
	if err != nil {
		return nil, mapError(err, apperrors.ErrQuoteFailed)
	}

	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", apperrors.ErrInvalidResponse, err)
	}
	q, err := resp.toQuote(req, raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Quote received", "token_out", req.TokenOut, "amount_in", req.AmountIn.String(), "amount_out", q.AmountOut.String())
	return q, nil
}

// BuildSwap turns a quote into a transaction, extending req.Extend when set
func (c *Client) BuildSwap(ctx context.Context, req core.BuildRequest) (*core.BuildResult, error) {
	if req.Quote == nil || len(req.Quote.Route) == 0 {
		return nil, fmt.Errorf("%w: quote has no route", apperrors.ErrBuildFailed)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body := buildRequest{
		Quote:    req.Quote.Route,
		Sender:   req.Sender,
		Slippage: req.Slippage,
		Commission: commissionDTO{
			Partner:       req.Commission.Partner,
			CommissionBps: req.Commission.Bps,
		},
	}
	sender := req.Sender
	if req.Extend != nil {
		body.Extend = &txDTO{TxBytes: req.Extend.Bytes, Commands: req.Extend.Commands}
		sender = req.Extend.Sender
	}
	if req.CoinIn != nil {
		coin := toCoinDTO(*req.CoinIn)
		body.CoinIn = &coin
	}

	var resp buildResponse
	if err := c.http.PostJSON(ctx, "/build", body, &resp); err != nil {
		return nil, mapError(err, apperrors.ErrBuildFailed)
	}
	return resp.toResult(sender)
}

// SplitFunding starts a transaction that splits the sender's funding coins into one coin per amount
func (c *Client) SplitFunding(ctx context.Context, sender, coinType string, amounts []decimal.Decimal) (*core.Transaction, []core.CoinHandle, error) {
	if len(amounts) == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to split", apperrors.ErrInvalidAmount)
	}
	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}

	body := splitRequest{Sender: sender, CoinType: coinType, Amounts: make([]string, len(amounts))}
	for i, a := range amounts {
		body.Amounts[i] = a.String()
	}

	var resp splitResponse
	if err := c.http.PostJSON(ctx, "/split", body, &resp); err != nil {
		return nil, nil, mapError(err, apperrors.ErrBuildFailed)
	}
	if len(resp.TxBytes) == 0 {
		return nil, nil, fmt.Errorf("%w: empty split transaction", apperrors.ErrInvalidResponse)
	}
	if len(resp.Coins) != len(amounts) {
		return nil, nil, fmt.Errorf("%w: %d coins for %d amounts", apperrors.ErrInvalidResponse, len(resp.Coins), len(amounts))
	}

	coins := make([]core.CoinHandle, len(resp.Coins))
	for i, dto := range resp.Coins {
		h, err := dto.handle()
		if err != nil {
			return nil, nil, err
		}
		coins[i] = h
	}
	return &core.Transaction{Sender: sender, Bytes: resp.TxBytes, Commands: resp.Commands}, coins, nil
}

// TransferObjects appends a transfer of objects to recipient
func (c *Client) TransferObjects(ctx context.Context, tx *core.Transaction, objects []core.CoinHandle, recipient string) (*core.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: no transaction to extend", apperrors.ErrBuildFailed)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body := transferRequest{
		Tx:        txDTO{TxBytes: tx.Bytes, Commands: tx.Commands},
		Objects:   make([]coinDTO, len(objects)),
		Recipient: recipient,
	}
	for i, o := range objects {
		body.Objects[i] = toCoinDTO(o)
	}

	var resp txDTO
	if err := c.http.PostJSON(ctx, "/transfer", body, &resp); err != nil {
		return nil, mapError(err, apperrors.ErrBuildFailed)
	}
	if len(resp.TxBytes) == 0 {
		return nil, fmt.Errorf("%w: empty transfer transaction", apperrors.ErrInvalidResponse)
	}
	return &core.Transaction{Sender: tx.Sender, Bytes: resp.TxBytes, Commands: resp.Commands}, nil
}

// mapError translates transport failures into the venue sentinels
func mapError(err error, fallback error) error {
	var apiErr *pkghttp.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, apiErr.Body)
		case apiErr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", apperrors.ErrNoRoute, apiErr.Body)
		default:
			return fmt.Errorf("%w: status %d: %s", fallback, apiErr.StatusCode, apiErr.Body)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
}
