package api

import (
	"net/http"
	"strconv"
	"time"

	"basket_swap/internal/core"
	"basket_swap/pkg/cli"

	"github.com/gorilla/mux"
)

type purchaseInput struct {
	Basket string `json:"basket"`
	allocationInput
}

type cancelResponse struct {
	Cancelled bool             `json:"cancelled"`
	Run       core.RunSnapshot `json:"run"`
}

// handleStartPurchase starts a run in the background and answers 202 with the run as soon as
// it begins. Errors raised before the first leg (busy, no signer, bad input) are returned
// synchronously.
func (s *Server) handleStartPurchase(w http.ResponseWriter, r *http.Request) {
	var in purchaseInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}

	if in.Basket == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "basket is required")
		return
	}

	_, req, err := s.buildRequest(r.Context(), in.Basket, in.allocationInput)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	started := make(chan core.RunSnapshot, 1)
	done := make(chan error, 1)
	s.setWaiter(started)
	defer s.setWaiter(nil)

	s.purchases.Add(1)
	go func() {
		defer s.purchases.Done()
		snap, err := s.deps.Engine.Purchase(s.baseCtx, req)
		if err != nil && snap.ID != "" {
			s.logger.Warn("Purchase ended with error", "run_id", snap.ID, "error", err)
		}
		done <- err
	}()

	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case snap := <-started:
		respondJSON(w, http.StatusAccepted, snap)
	case err := <-done:
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusAccepted, s.deps.Engine.Snapshot())
	case <-timer.C:
		respondJSON(w, http.StatusAccepted, s.deps.Engine.Snapshot())
	}
}

func (s *Server) handleCurrentPurchase(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

// handleCancelPurchase stops the run before its next leg. Cancelling with nothing running is
// not an error.
func (s *Server) handleCancelPurchase(w http.ResponseWriter, r *http.Request) {
	cancelled := s.deps.Engine.Cancel()
	respondJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled, Run: s.deps.Engine.Snapshot()})
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := s.deps.Engine.History(r.Context(), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.RunSnapshot{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Portfolio == nil {
		respondError(w, http.StatusNotImplemented, ErrCodeInternalError, "portfolio valuation is not configured")
		return
	}

	address := mux.Vars(r)["address"]
	if err := cli.ValidateAddress(address); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	valuation, err := s.deps.Portfolio.Value(r.Context(), address)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, valuation)
}
