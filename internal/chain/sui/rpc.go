package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	pkghttp "basket_swap/pkg/http"

	"github.com/shopspring/decimal"
)

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type balanceResult struct {
	CoinType     string `json:"coinType"`
	TotalBalance string `json:"totalBalance"`
}

type responseOptions struct {
	ShowEffects bool `json:"showEffects"`
	ShowEvents  bool `json:"showEvents"`
}

// TransactionResponse is the subset of a transaction block response the service reads
type TransactionResponse struct {
	Digest  string            `json:"digest"`
	Effects *core.Effects     `json:"effects"`
	Events  []json.RawMessage `json:"events"`
}

// RPCClient is a Sui JSON-RPC client. Reads retry, submissions do not.
type RPCClient struct {
	reads  *pkghttp.Client
	writes *pkghttp.Client
	nextID atomic.Int64
}

// NewRPCClient creates an RPC client for url
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		reads:  pkghttp.NewClient(url, timeout, nil, pkghttp.WithName("sui-rpc")),
		writes: pkghttp.NewClient(url, timeout, nil, pkghttp.WithName("sui-rpc-submit"), pkghttp.WithMaxRetries(0)),
	}
}

func (c *RPCClient) call(ctx context.Context, client *pkghttp.Client, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}

	var resp rpcResponse
	if err := client.PostJSON(ctx, "", req, &resp); err != nil {
		var apiErr *pkghttp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, method)
		}
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s: %w", method, err)
		}
		return fmt.Errorf("%w: %s: %v", apperrors.ErrNetwork, method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidResponse, method, err)
	}
	return nil
}

// GetBalance returns the total balance of coinType owned by owner, in base units
func (c *RPCClient) GetBalance(ctx context.Context, owner, coinType string) (decimal.Decimal, error) {
	var res balanceResult
	if err := c.call(ctx, c.reads, "suix_getBalance", []any{owner, coinType}, &res); err != nil {
		return decimal.Zero, err
	}
	bal, err := decimal.NewFromString(res.TotalBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: totalBalance %q", apperrors.ErrInvalidResponse, res.TotalBalance)
	}
	return bal, nil
}

// ExecuteTransactionBlock submits signed transaction bytes
func (c *RPCClient) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string, opts core.ExecuteOptions) (*TransactionResponse, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(txBytes),
		signatures,
		responseOptions{ShowEffects: opts.ShowEffects, ShowEvents: opts.ShowEvents},
		opts.RequestType,
	}
	var res TransactionResponse
	if err := c.call(ctx, c.writes, "sui_executeTransactionBlock", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTransactionBlock reads an executed transaction. A digest the node has not indexed yet
// returns ErrTransactionPending.
func (c *RPCClient) GetTransactionBlock(ctx context.Context, digest string) (*TransactionResponse, error) {
	var res TransactionResponse
	err := c.call(ctx, c.reads, "sui_getTransactionBlock", []any{digest, responseOptions{ShowEffects: true}}, &res)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Message), "could not find") {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionPending, digest)
		}
		return nil, err
	}
	return &res, nil
}
