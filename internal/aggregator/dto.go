package aggregator

import (
	"encoding/json"
	"fmt"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	"github.com/shopspring/decimal"
)

// quoteResponse is the aggregator's /quote payload. Only the fields the service relies on are
// decoded; the whole payload is kept as the route and handed back to /build.
type quoteResponse struct {
	TokenIn                 string            `json:"tokenIn"`
	TokenOut                string            `json:"tokenOut"`
	SwapAmountWithDecimal   string            `json:"swapAmountWithDecimal"`
	ReturnAmountWithDecimal string            `json:"returnAmountWithDecimal"`
	PriceImpact             float64           `json:"priceImpact"`
	Routes                  []json.RawMessage `json:"routes"`
}

// toQuote validates the response against req
func (r *quoteResponse) toQuote(req core.QuoteRequest, raw []byte) (*core.Quote, error) {
	if len(r.Routes) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrNoRoute, req.TokenIn, req.TokenOut)
	}
	amountIn, err := decimal.NewFromString(r.SwapAmountWithDecimal)
	if err != nil {
		return nil, fmt.Errorf("%w: swapAmountWithDecimal %q", apperrors.ErrInvalidResponse, r.SwapAmountWithDecimal)
	}
	amountOut, err := decimal.NewFromString(r.ReturnAmountWithDecimal)
	if err != nil {
		return nil, fmt.Errorf("%w: returnAmountWithDecimal %q", apperrors.ErrInvalidResponse, r.ReturnAmountWithDecimal)
	}

	q := &core.Quote{
		TokenIn:   r.TokenIn,
		TokenOut:  r.TokenOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Route:     json.RawMessage(raw),
		FetchedAt: time.Now(),
	}
	// Some deployments omit the echoed pair
	if q.TokenIn == "" {
		q.TokenIn = req.TokenIn
	}
	if q.TokenOut == "" {
		q.TokenOut = req.TokenOut
	}
	if err := q.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidResponse, err)
	}
	q.ID = fmt.Sprintf("%s:%s:%s", q.TokenOut, q.AmountIn.String(), q.AmountOut.String())
	return q, nil
}

type commissionDTO struct {
	Partner       string `json:"partner"`
	CommissionBps int    `json:"commissionBps"`
}

type txDTO struct {
	TxBytes  []byte `json:"txBytes"`
	Commands int    `json:"commands"`
}

type coinDTO struct {
	Kind   core.ArgumentKind `json:"kind"`
	Index  int               `json:"index"`
	Nested int               `json:"nested,omitempty"`
}

func toCoinDTO(h core.CoinHandle) coinDTO {
	return coinDTO{Kind: h.Kind, Index: h.Index, Nested: h.Nested}
}

func (c coinDTO) handle() (core.CoinHandle, error) {
	switch c.Kind {
	case core.ArgumentInput, core.ArgumentResult, core.ArgumentNestedResult, core.ArgumentGasCoin:
		return core.CoinHandle{Kind: c.Kind, Index: c.Index, Nested: c.Nested}, nil
	default:
		return core.CoinHandle{}, fmt.Errorf("%w: unknown argument kind %q", apperrors.ErrInvalidResponse, c.Kind)
	}
}

type buildRequest struct {
	Quote      json.RawMessage `json:"quote"`
	Sender     string          `json:"accountAddress"`
	Slippage   float64         `json:"slippage"`
	Commission commissionDTO   `json:"commission"`
	Extend     *txDTO          `json:"extendTx,omitempty"`
	CoinIn     *coinDTO        `json:"coinIn,omitempty"`
}

type buildResponse struct {
	txDTO
	CoinOut *coinDTO `json:"coinOut"`
}

func (r *buildResponse) toResult(sender string) (*core.BuildResult, error) {
	if len(r.TxBytes) == 0 {
		return nil, fmt.Errorf("%w: empty transaction", apperrors.ErrBuildFailed)
	}
	if r.CoinOut == nil {
		return nil, fmt.Errorf("%w: missing output coin", apperrors.ErrInvalidResponse)
	}
	out, err := r.CoinOut.handle()
	if err != nil {
		return nil, err
	}
	return &core.BuildResult{
		Tx:      &core.Transaction{Sender: sender, Bytes: r.TxBytes, Commands: r.Commands},
		CoinOut: out,
	}, nil
}

type splitRequest struct {
	Sender   string   `json:"accountAddress"`
	CoinType string   `json:"coinType"`
	Amounts  []string `json:"amounts"`
}

type splitResponse struct {
	txDTO
	Coins []coinDTO `json:"coins"`
}

type transferRequest struct {
	Tx        txDTO     `json:"tx"`
	Objects   []coinDTO `json:"objects"`
	Recipient string    `json:"recipient"`
}
