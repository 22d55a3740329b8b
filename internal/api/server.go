// Package api serves the basket REST API
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"basket_swap/internal/catalog"
	"basket_swap/internal/core"
	"basket_swap/internal/engine"
	"basket_swap/internal/trading/orchestrator"
	"basket_swap/internal/trading/portfolio"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
)

// Previewer quotes a purchase without executing it
type Previewer interface {
	Preview(ctx context.Context, req core.PurchaseRequest) ([]orchestrator.LegPreview, error)
	Funding() core.Asset
}

// PortfolioValuer values the holdings of an address
type PortfolioValuer interface {
	Value(ctx context.Context, address string) (*portfolio.Valuation, error)
}

// Limits bounds investment amounts. A zero Max disables the upper bound.
type Limits struct {
	Default decimal.Decimal
	Max     decimal.Decimal
}

// Config holds server configuration
type Config struct {
	Listen         string
	AllowedOrigins []string
	Limits         Limits
	DefaultMode    core.ExecutionMode
	StartTimeout   time.Duration // How long POST /api/purchases waits for the run to begin
}

// Deps are the collaborators behind the routes. Portfolio and Ops may be nil.
type Deps struct {
	Catalog   catalog.Store
	Engine    engine.Engine
	Previewer Previewer
	Portfolio PortfolioValuer
	Ops       http.Handler // Serves /health and /metrics
	Auth      func(http.Handler) http.Handler
}

// Server is the HTTP API. It also observes runs so an async purchase can answer with the
// snapshot of the run it started.
type Server struct {
	cfg    Config
	deps   Deps
	logger core.ILogger
	router *mux.Router

	httpServer *http.Server
	baseCtx    context.Context
	purchases  sync.WaitGroup

	startMu sync.Mutex
	waitMu  sync.Mutex
	waiter  chan core.RunSnapshot
}

func NewServer(cfg Config, deps Deps, logger core.ILogger) *Server {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 10 * time.Second
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = core.ModeSequential
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.WithField("component", "api"),
		router:  mux.NewRouter(),
		baseCtx: context.Background(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.deps.Ops != nil {
		s.router.Handle("/health", s.deps.Ops).Methods(http.MethodGet)
		s.router.Handle("/metrics", s.deps.Ops).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/baskets", s.handleListBaskets).Methods(http.MethodGet)
	api.HandleFunc("/baskets/{slug}", s.handleGetBasket).Methods(http.MethodGet)
	api.HandleFunc("/baskets/{slug}/rebalance", s.handleRebalance).Methods(http.MethodPost)
	api.HandleFunc("/baskets/{slug}/estimate", s.handleEstimate).Methods(http.MethodPost)
	api.HandleFunc("/baskets/{slug}/preview", s.handlePreview).Methods(http.MethodPost)

	api.HandleFunc("/purchases", s.handleStartPurchase).Methods(http.MethodPost)
	api.HandleFunc("/purchases", s.handleListPurchases).Methods(http.MethodGet)
	api.HandleFunc("/purchases/current", s.handleCurrentPurchase).Methods(http.MethodGet)
	api.HandleFunc("/purchases/current/cancel", s.handleCancelPurchase).Methods(http.MethodPost)

	api.HandleFunc("/portfolio/{address}", s.handlePortfolio).Methods(http.MethodGet)
}

// Handler returns the router behind CORS and, when configured, API-key authentication
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.deps.Auth != nil {
		h = s.deps.Auth(h)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(h)
}

// Run serves until ctx is done, then drains requests and waits for purchases started through
// the API to finish
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "addr", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.purchases.Wait()
	s.logger.Info("API server stopped")
	return err
}

// OnRunStarted hands the new run to a purchase request waiting for it
func (s *Server) OnRunStarted(snap core.RunSnapshot) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	if s.waiter != nil {
		select {
		case s.waiter <- snap:
		default:
		}
	}
}

func (s *Server) OnLegResult(string, core.SwapResult) {}

func (s *Server) OnRunCompleted(core.RunSnapshot) {}

func (s *Server) setWaiter(ch chan core.RunSnapshot) {
	s.waitMu.Lock()
	s.waiter = ch
	s.waitMu.Unlock()
}
