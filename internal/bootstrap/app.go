package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"basket_swap/internal/alert"
	"basket_swap/internal/api"
	"basket_swap/internal/auth"
	"basket_swap/internal/catalog"
	"basket_swap/internal/core"
	"basket_swap/internal/engine"
	grpcserver "basket_swap/internal/infrastructure/grpc"
	"basket_swap/internal/infrastructure/health"
	"basket_swap/internal/infrastructure/server"
	"basket_swap/internal/trading/orchestrator"
	"basket_swap/internal/trading/portfolio"
	"basket_swap/pkg/concurrency"
	"basket_swap/pkg/liveserver"
	"basket_swap/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App represents the application context and holds core dependencies.
type App struct {
	Cfg    *Config
	Logger core.ILogger

	Catalog      catalog.Store
	Registry     *catalog.Registry
	Wallets      core.IWalletSource
	Orchestrator *orchestrator.Orchestrator
	Engine       engine.Engine
	Valuer       *portfolio.Valuer
	Tracker      *portfolio.Tracker
	Health       *health.HealthManager
	Alerts       *alert.AlertManager
	Broadcaster  *liveserver.RunBroadcaster

	API  *api.Server
	Ops  *server.HealthServer
	Hub  *liveserver.Hub
	Live *liveserver.Server
	GRPC *grpcserver.HealthServer // nil when grpc_port is 0

	validator *auth.APIKeyValidator
	pool      *concurrency.WorkerPool
	telemetry *telemetry.Telemetry
	closers   []io.Closer
	runners   []Runner
	closeOnce sync.Once
}

// NewApp creates a new App instance by bootstrapping all dependencies.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	return NewAppFromConfig(context.Background(), cfg, logger)
}

// NewAppFromConfig wires every component for an already loaded configuration. Nothing listens
// until Run.
func NewAppFromConfig(ctx context.Context, cfg *Config, logger core.ILogger) (*App, error) {
	a := &App{
		Cfg:      cfg,
		Logger:   logger,
		Registry: catalog.DefaultRegistry(),
	}
	wired := false
	defer func() {
		if !wired {
			a.shutdown()
		}
	}()

	a.initTelemetry()

	store, baskets, closer, err := LoadCatalog(ctx, cfg, a.Registry, logger)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	a.Catalog = store
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	venue, err := NewVenue(cfg, baskets, logger)
	if err != nil {
		return nil, fmt.Errorf("venue: %w", err)
	}
	a.closers = append(a.closers, venue.Closers...)
	a.Wallets = NewWalletSource(cfg)

	a.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "QuotePool",
		MaxWorkers:  cfg.Concurrency.QuotePoolSize,
		MaxCapacity: cfg.Concurrency.QuotePoolBuffer,
	}, logger)

	a.Orchestrator = orchestrator.NewOrchestrator(orchestrator.Config{
		Funding:  fundingAsset(cfg),
		Slippage: cfg.Swap.Slippage,
		Commission: core.Commission{
			Partner: cfg.Swap.CommissionPartner,
			Bps:     cfg.Swap.CommissionBps,
		},
		ExecuteOptions: core.ExecuteOptions{
			RequestType: cfg.Chain.RequestType,
			ShowEffects: true,
			ShowEvents:  true,
		},
		PrefetchQuotes: cfg.App.PrefetchQuotes,
	}, venue.Quotes, venue.Builder, venue.Executor, a.Wallets, a.pool, logger)

	eng, engineClosers, err := NewEngine(cfg, a.Orchestrator, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	a.Engine = eng
	a.closers = append(a.closers, engineClosers...)

	a.initAlerts()
	a.initPortfolio(ctx, venue)
	a.initHealth(venue)
	a.initServers()

	wired = true
	return a, nil
}

func (a *App) initTelemetry() {
	if a.Cfg.Telemetry.Enabled {
		t, err := telemetry.Setup(a.Cfg.Telemetry.ServiceName)
		if err != nil {
			a.Logger.Warn("Failed to initialize telemetry", "error", err)
			return
		}
		a.telemetry = t
		a.Logger.Info("Telemetry initialized")
		return
	}
	if err := telemetry.InitMetrics(a.Cfg.Telemetry.ServiceName); err != nil {
		a.Logger.Warn("Failed to initialize metrics exporter", "error", err)
	}
}

func (a *App) initAlerts() {
	a.Alerts = alert.NewAlertManager(a.Logger)
	if level, err := alert.ParseLevel(a.Cfg.Alerts.MinLevel); err == nil {
		a.Alerts.SetMinLevel(level)
	}
	if url := a.Cfg.Alerts.SlackWebhookURL.Reveal(); url != "" {
		a.Alerts.AddChannel(alert.NewSlackChannel(url))
	}
	if token := a.Cfg.Alerts.TelegramBotToken.Reveal(); token != "" && a.Cfg.Alerts.TelegramChatID != "" {
		a.Alerts.AddChannel(alert.NewTelegramChannel(token, a.Cfg.Alerts.TelegramChatID))
	}
	if a.Alerts.Channels() > 0 {
		a.Orchestrator.Subscribe(alert.NewRunNotifier(a.Alerts))
		a.Logger.Info("Run alerts enabled", "channels", a.Alerts.Channels())
	}
}

func (a *App) initPortfolio(ctx context.Context, venue *Venue) {
	a.Valuer = portfolio.NewValuer(venue.Balances, venue.Prices, a.Registry.Tokens(), a.Logger)
	a.Tracker = portfolio.NewTracker(a.Valuer, time.Duration(a.Cfg.Pricing.RefreshInterval)*time.Second, a.Logger)

	address := a.Cfg.Pricing.TrackAddress
	if address == "" {
		if w, err := a.Wallets.CurrentWallet(ctx); err == nil && w != nil {
			address = w.Address
		}
	}
	a.Tracker.Track(address)
}

func (a *App) initHealth(venue *Venue) {
	a.Health = health.NewHealthManager(a.Logger)
	a.Health.Register("catalog", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := a.Catalog.List(ctx)
		return err
	})
	a.Health.RegisterOptional("wallet", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w, err := a.Wallets.CurrentWallet(ctx)
		if err != nil {
			return err
		}
		if w == nil {
			return errors.New("no wallet configured")
		}
		return nil
	})
	a.Health.RegisterOptional("quote_pool", a.pool.Check)
	for name, check := range venue.Checks {
		a.Health.RegisterOptional(name, check)
	}
}

func (a *App) initServers() {
	cfg := a.Cfg

	a.Ops = server.NewHealthServer(cfg.Server.HealthPort, a.Logger, a.Health, a.Orchestrator)
	a.Ops.UpdateStatus("engine", cfg.App.EngineType)
	a.Ops.UpdateStatus("venue", cfg.App.Venue)

	a.validator = auth.NewAPIKeyValidator(cfg.Server.APIKeyList(), cfg.Server.RateLimit, a.Logger)
	if cfg.Server.GRPCPort > 0 {
		a.GRPC = grpcserver.NewHealthServer(a.Health, a.validator, 5*time.Second, a.Logger)
	}

	a.Hub = liveserver.NewHub(a.Logger)
	a.Broadcaster = liveserver.NewRunBroadcaster(a.Hub)
	a.Orchestrator.Subscribe(a.Broadcaster)

	a.Live = liveserver.NewServer(a.Hub, a.Logger, cfg.Server.AllowedOrigins)
	a.Live.SetProduction(cfg.Server.Production)
	a.Live.SetAllowMissingOrigin(cfg.Server.AllowMissingOrigin)

	a.API = api.NewServer(api.Config{
		Listen:         cfg.Server.Listen,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limits: api.Limits{
			Default: decimal.NewFromFloat(cfg.Swap.DefaultInvestment),
			Max:     decimal.NewFromFloat(cfg.Swap.MaxInvestment),
		},
		DefaultMode: core.ExecutionMode(cfg.App.ExecutionMode),
	}, api.Deps{
		Catalog:   a.Catalog,
		Engine:    a.Engine,
		Previewer: a.Orchestrator,
		Portfolio: a.Valuer,
		Ops:       a.Ops.Handler(),
		Auth:      a.validator.Middleware("/health", "/metrics"),
	}, a.Logger)
	a.Orchestrator.Subscribe(a.API)

	a.runners = []Runner{
		RunnerFunc(func(ctx context.Context) error {
			a.Hub.Run(ctx)
			return nil
		}),
		RunnerFunc(func(ctx context.Context) error {
			return a.Live.Start(ctx, cfg.Server.WebsocketListen, a.WebsocketHandler())
		}),
		a.API,
		RunnerFunc(func(ctx context.Context) error {
			a.Ops.Start()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.Ops.Stop(shutdownCtx)
		}),
		RunnerFunc(func(ctx context.Context) error {
			return a.Tracker.Start(ctx)
		}),
	}
	if a.GRPC != nil {
		a.runners = append(a.runners, RunnerFunc(func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- a.GRPC.ListenAndServe(cfg.Server.GRPCPort) }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.GRPC.Stop(shutdownCtx)
				return nil
			}
		}))
	}
}

// WebsocketHandler serves the run stream behind the same API keys as the REST API
func (a *App) WebsocketHandler() http.Handler {
	return a.validator.Middleware("/health")(a.Live.Handler())
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Run starts the engine and every runner, then blocks until a termination signal or the first
// runner failure. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	// Create a context that is canceled when a termination signal is received.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.shutdown()

	if err := a.Engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application",
		"api", a.Cfg.Server.Listen,
		"websocket", a.Cfg.Server.WebsocketListen,
		"health_port", a.Cfg.Server.HealthPort,
		"grpc_port", a.Cfg.Server.GRPCPort)

	for _, runner := range a.runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Close releases resources without running. Run calls it on exit.
func (a *App) Close() {
	a.shutdown()
}

func (a *App) shutdown() {
	a.closeOnce.Do(func() {
		if a.Tracker != nil {
			a.Tracker.Stop()
		}
		if a.Engine != nil {
			if err := a.Engine.Stop(); err != nil {
				a.Logger.Warn("Engine stop failed", "error", err)
			}
		}
		if a.Alerts != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.Alerts.Flush(ctx)
			cancel()
		}
		if a.pool != nil {
			a.pool.Stop()
		}
		closeAll(a.closers, a.Logger)
		if a.telemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.telemetry.Shutdown(ctx); err != nil {
				a.Logger.Warn("Telemetry shutdown failed", "error", err)
			}
			cancel()
		}
	})
}
