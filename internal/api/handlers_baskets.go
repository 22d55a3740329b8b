package api

import (
	"context"
	"fmt"
	"net/http"

	"basket_swap/internal/catalog"
	"basket_swap/internal/core"
	"basket_swap/internal/trading/allocation"
	"basket_swap/internal/trading/planner"
	"basket_swap/pkg/cli"
	apperrors "basket_swap/pkg/errors"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// basketView is a catalog basket plus whether it can be bought on chain
type basketView struct {
	catalog.Basket
	Purchasable bool `json:"purchasable"`
}

// allocationInput is the optional part of every basket request. Weights follow the basket's
// asset order; omitted fields fall back to the basket defaults and the configured amount.
type allocationInput struct {
	Weights []float64        `json:"weights,omitempty"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Mode    string           `json:"mode,omitempty"`
}

type rebalanceInput struct {
	Weights []float64 `json:"weights,omitempty"`
	Index   int       `json:"index"`
	Value   float64   `json:"value"`
}

type rebalanceResponse struct {
	Weights core.WeightVector `json:"weights"`
	Sum     float64           `json:"sum"`
}

type estimateResponse struct {
	Basket    string                  `json:"basket"`
	Amount    decimal.Decimal         `json:"amount"`
	Funding   string                  `json:"funding"`
	Estimates []planner.AssetEstimate `json:"estimates"`
}

type previewResponse struct {
	Basket string             `json:"basket"`
	Amount decimal.Decimal    `json:"amount"`
	Mode   core.ExecutionMode `json:"mode"`
	Legs   []legPreview       `json:"legs"`
}

type legPreview struct {
	Symbol      string          `json:"symbol"`
	InputAmount decimal.Decimal `json:"input_amount"`
	AmountOut   string          `json:"amount_out,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (s *Server) handleListBaskets(w http.ResponseWriter, r *http.Request) {
	baskets, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	out := make([]basketView, len(baskets))
	for i, b := range baskets {
		out[i] = basketView{Basket: b, Purchasable: b.Purchasable()}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	basket, err := s.lookupBasket(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, basketView{Basket: *basket, Purchasable: basket.Purchasable()})
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var in rebalanceInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}

	basket, err := s.lookupBasket(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	current, err := basket.Allocation(in.Weights)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	editor, err := allocation.NewEditor(current)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	next, err := editor.Set(in.Index, in.Value)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rebalanceResponse{Weights: next, Sum: next.Sum()})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var in allocationInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}

	basket, req, err := s.buildRequest(r.Context(), mux.Vars(r)["slug"], in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, estimateResponse{
		Basket:    basket.Slug,
		Amount:    req.Amount,
		Funding:   s.deps.Previewer.Funding().Symbol,
		Estimates: planner.Estimate(req.Weights, req.Amount),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var in allocationInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}

	basket, req, err := s.buildRequest(r.Context(), mux.Vars(r)["slug"], in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	previews, err := s.deps.Previewer.Preview(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	resp := previewResponse{Basket: basket.Slug, Amount: req.Amount, Mode: req.Mode, Legs: make([]legPreview, len(previews))}
	for i, p := range previews {
		lp := legPreview{Symbol: p.Leg.OutputAsset.Symbol, InputAmount: p.Leg.InputAmount, Error: p.Error}
		if p.Quote != nil {
			lp.AmountOut = p.Quote.AmountOut.String()
		}
		resp.Legs[i] = lp
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) lookupBasket(ctx context.Context, ref string) (*catalog.Basket, error) {
	if err := cli.ValidateBasketRef(ref); err != nil {
		return nil, err
	}
	return s.deps.Catalog.Get(ctx, ref)
}

// buildRequest resolves a basket reference and optional overrides into a purchase request
func (s *Server) buildRequest(ctx context.Context, ref string, in allocationInput) (*catalog.Basket, core.PurchaseRequest, error) {
	basket, err := s.lookupBasket(ctx, ref)
	if err != nil {
		return nil, core.PurchaseRequest{}, err
	}

	weights, err := basket.Allocation(in.Weights)
	if err != nil {
		return nil, core.PurchaseRequest{}, err
	}
	if err := allocation.Validate(weights); err != nil {
		return nil, core.PurchaseRequest{}, err
	}

	amount := s.cfg.Limits.Default
	if in.Amount != nil {
		amount = *in.Amount
	}
	if err := cli.CheckAmount(amount, s.cfg.Limits.Max); err != nil {
		return nil, core.PurchaseRequest{}, err
	}

	mode := s.cfg.DefaultMode
	if in.Mode != "" {
		if mode, err = core.ParseExecutionMode(in.Mode); err != nil {
			return nil, core.PurchaseRequest{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidMode, err)
		}
	}

	return basket, core.PurchaseRequest{
		BasketID: basket.ID,
		Weights:  weights,
		Amount:   amount,
		Mode:     mode,
	}, nil
}
