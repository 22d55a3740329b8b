package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"basket_swap/internal/bootstrap"
	"basket_swap/internal/core"
	"basket_swap/internal/infrastructure/websocket"
	"basket_swap/pkg/cli"
	"basket_swap/pkg/liveserver"
	"basket_swap/pkg/logging"

	"github.com/shopspring/decimal"
)

// pollInterval is how often the current run is fetched in case stream events were missed
var pollInterval = 2 * time.Second

type purchaseBody struct {
	Basket string `json:"basket"`
	allocationBody
}

// streamMessage is a progress frame whose payload is decoded once its type is known
type streamMessage struct {
	Type  string          `json:"type"`
	RunID string          `json:"run_id"`
	Data  json.RawMessage `json:"data"`
}

func (c *commands) buy(ctx context.Context, args []string) error {
	fs := c.newFlagSet("buy")
	amount := fs.String("amount", "", "Investment in funding units (default from config)")
	mode := fs.String("mode", "", "Execution mode: sequential or batched (default from config)")
	weights := fs.String("weights", "", "Comma-separated weights in basket order, e.g. 50,25,25")
	local := fs.Bool("local", false, "Run the purchase in-process from -config instead of through basketd")
	ref, err := parseWithTarget(fs, args, "basket")
	if err != nil {
		return err
	}

	if *mode != "" {
		if _, err := core.ParseExecutionMode(*mode); err != nil {
			return usageErrorf("%v", err)
		}
	}
	body, err := allocationFlags(ref, *amount, *weights, *mode)
	if err != nil {
		return err
	}

	p := newPrinter(c.out)
	var snap core.RunSnapshot
	if *local {
		snap, err = c.buyLocal(ctx, ref, body, p)
	} else {
		snap, err = c.buyRemote(ctx, ref, body, p)
	}
	if err != nil {
		return err
	}
	if !snap.AllOK {
		return errRunFailed
	}
	return nil
}

// buyRemote submits the purchase to basketd and follows it on the progress stream, polling the
// current run as a fallback. Interrupting asks basketd to stop before the next leg.
func (c *commands) buyRemote(ctx context.Context, ref string, body allocationBody, p *printer) (core.RunSnapshot, error) {
	logger, err := logging.NewZapLoggerWithWriter(c.g.logLevel, c.errOut)
	if err != nil {
		return core.RunSnapshot{}, err
	}

	events := make(chan streamMessage, 256)
	header := http.Header{}
	if c.g.apiKey != "" {
		header.Set(apiKeyHeader, c.g.apiKey)
	}
	stream := websocket.NewClient(c.g.ws, func(raw []byte) {
		var m streamMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			logger.Debug("Dropping malformed stream frame", "error", err)
			return
		}
		select {
		case events <- m:
		default:
			logger.Warn("Progress stream backlog full, relying on polling")
		}
	}, logger, websocket.WithHeader(header), websocket.WithReconnectWait(time.Second))
	stream.Start()
	defer stream.Stop()

	api := newAPIClient(c.g)
	var started core.RunSnapshot
	if err := api.submit(ctx, "/api/purchases", purchaseBody{Basket: ref, allocationBody: body}, &started); err != nil {
		return core.RunSnapshot{}, err
	}
	p.follow(started.ID)
	p.sync(started)

	// Requests made after an interrupt must still go through
	bg := context.WithoutCancel(ctx)
	interrupted := ctx.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case snap := <-p.Done():
			return snap, nil

		case m := <-events:
			c.apply(p, m, logger)

		case <-ticker.C:
			var current core.RunSnapshot
			if err := api.get(bg, "/api/purchases/current", nil, &current); err != nil {
				logger.Warn("Failed to poll current purchase", "error", err)
				continue
			}
			if current.ID == started.ID {
				p.sync(current)
			}

		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(c.errOut, "Cancelling, the current leg will finish first")
			var resp struct {
				Cancelled bool `json:"cancelled"`
			}
			if err := api.submit(bg, "/api/purchases/current/cancel", nil, &resp); err != nil {
				return core.RunSnapshot{}, fmt.Errorf("cancel failed: %w", err)
			}
		}
	}
}

func (c *commands) apply(p *printer, m streamMessage, logger core.ILogger) {
	switch m.Type {
	case liveserver.TypeLegResult:
		var r core.SwapResult
		if err := json.Unmarshal(m.Data, &r); err != nil {
			logger.Debug("Bad leg result frame", "error", err)
			return
		}
		p.OnLegResult(m.RunID, r)
	case liveserver.TypeRunStarted, liveserver.TypeSnapshot, liveserver.TypeRunCompleted:
		var snap core.RunSnapshot
		if err := json.Unmarshal(m.Data, &snap); err != nil {
			logger.Debug("Bad snapshot frame", "error", err)
			return
		}
		p.sync(snap)
	}
}

// buyLocal wires the full service from -config and runs the purchase in this process
func (c *commands) buyLocal(ctx context.Context, ref string, body allocationBody, p *printer) (core.RunSnapshot, error) {
	cfg, err := bootstrap.LoadConfig(c.g.config)
	if err != nil {
		return core.RunSnapshot{}, err
	}
	logger, err := logging.NewZapLoggerWithWriter(c.g.logLevel, c.errOut)
	if err != nil {
		return core.RunSnapshot{}, err
	}

	app, err := bootstrap.NewAppFromConfig(ctx, cfg, logger)
	if err != nil {
		return core.RunSnapshot{}, err
	}
	defer app.Close()

	app.Orchestrator.Subscribe(p)
	if err := app.Engine.Start(ctx); err != nil {
		return core.RunSnapshot{}, err
	}

	basket, err := app.Catalog.Get(ctx, ref)
	if err != nil {
		return core.RunSnapshot{}, err
	}
	weights, err := basket.Allocation(body.Weights)
	if err != nil {
		return core.RunSnapshot{}, err
	}

	amount := decimal.NewFromFloat(cfg.Swap.DefaultInvestment)
	if body.Amount != nil {
		amount = *body.Amount
	}
	if err := cli.CheckAmount(amount, decimal.NewFromFloat(cfg.Swap.MaxInvestment)); err != nil {
		return core.RunSnapshot{}, err
	}
	if body.Mode == "" {
		body.Mode = cfg.App.ExecutionMode
	}
	mode, err := core.ParseExecutionMode(body.Mode)
	if err != nil {
		return core.RunSnapshot{}, err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.errOut, "Cancelling, the current leg will finish first")
			app.Engine.Cancel()
		case <-finished:
		}
	}()

	snap, err := app.Engine.Purchase(context.WithoutCancel(ctx), core.PurchaseRequest{
		BasketID: basket.ID,
		Weights:  weights,
		Amount:   amount,
		Mode:     mode,
	})
	if err != nil && snap.ID == "" {
		return snap, err
	}
	return snap, nil
}
