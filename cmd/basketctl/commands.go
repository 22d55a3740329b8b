package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"strconv"
	"strings"
	"text/tabwriter"

	"basket_swap/internal/bootstrap"
	"basket_swap/internal/catalog"
	"basket_swap/internal/config"
	"basket_swap/internal/trading/planner"
	"basket_swap/internal/trading/portfolio"
	"basket_swap/internal/wallet"
	"basket_swap/pkg/cli"

	"github.com/shopspring/decimal"
)

type commands struct {
	g      *globals
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

type basketRow struct {
	catalog.Basket
	Purchasable bool `json:"purchasable"`
}

// allocationBody mirrors the optional allocation fields every basket request accepts
type allocationBody struct {
	Weights []float64        `json:"weights,omitempty"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Mode    string           `json:"mode,omitempty"`
}

type estimateBody struct {
	Basket    string                  `json:"basket"`
	Amount    decimal.Decimal         `json:"amount"`
	Funding   string                  `json:"funding"`
	Estimates []planner.AssetEstimate `json:"estimates"`
}

func (c *commands) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *commands) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *commands) baskets(ctx context.Context, args []string) error {
	fs := c.newFlagSet("baskets")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var rows []basketRow
	if err := newAPIClient(c.g).get(ctx, "/api/baskets", nil, &rows); err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "SLUG\tNAME\tTYPE\tCAGR\tSCORE\tASSETS\tBUYABLE")
	for _, b := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%%\t%s\t%s\t%s\n",
			b.Slug, b.Name, b.Category, formatFloat(b.CAGR), formatFloat(b.Score),
			describeWeights(b.Basket), yesNo(b.Purchasable))
	}
	return tw.Flush()
}

func (c *commands) estimate(ctx context.Context, args []string) error {
	fs := c.newFlagSet("estimate")
	amount := fs.String("amount", "", "Investment in funding units (default from server config)")
	weights := fs.String("weights", "", "Comma-separated weights in basket order, e.g. 50,25,25")
	ref, err := parseWithTarget(fs, args, "basket")
	if err != nil {
		return err
	}

	body, err := allocationFlags(ref, *amount, *weights, "")
	if err != nil {
		return err
	}

	var est estimateBody
	if err := newAPIClient(c.g).query(ctx, basketPath(ref, "/estimate"), body, &est); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s: %s %s at reference prices\n\n", est.Basket, est.Amount, est.Funding)
	tw := c.table()
	fmt.Fprintf(tw, "ASSET\tWEIGHT\tSPEND (%s)\tPRICE\tUNITS\n", est.Funding)
	for _, e := range est.Estimates {
		fmt.Fprintf(tw, "%s\t%s%%\t%s\t%s\t%s\n",
			e.Asset.Symbol, formatFloat(e.Weight), e.QuoteAmount.StringFixed(2), e.Asset.Price, e.Units.StringFixed(6))
	}
	return tw.Flush()
}

func (c *commands) portfolio(ctx context.Context, args []string) error {
	fs := c.newFlagSet("portfolio")
	addr, err := parseWithTarget(fs, args, "address")
	if err != nil {
		return err
	}
	if err := cli.ValidateAddress(addr); err != nil {
		return usageErrorf("%v", err)
	}

	var v portfolio.Valuation
	if err := newAPIClient(c.g).get(ctx, "/api/portfolio/"+addr, nil, &v); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Portfolio %s as of %s\n\n", v.Address, v.AsOf.Format("2006-01-02 15:04:05"))
	tw := c.table()
	fmt.Fprintln(tw, "TOKEN\tBALANCE\tPRICE\tVALUE (USD)\t")
	for _, h := range v.Holdings {
		price, value := "-", "-"
		if h.Priced {
			price = h.Price.String()
			value = h.Value.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.Token.Symbol, h.Balance, price, value, h.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: $%s\n", v.TotalUSD.StringFixed(2))
	return nil
}

func (c *commands) wallet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErrorf("wallet requires one of: new, show, import")
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	switch args[0] {
	case "show":
		w, err := bootstrap.NewWalletSource(cfg).CurrentWallet(ctx)
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("no wallet configured, run 'basketctl wallet new'")
		}
		fmt.Fprintf(c.out, "Address: %s\n", w.Address)
		if cfg.Wallet.Source == "file" {
			fmt.Fprintf(c.out, "File:    %s\n", cfg.Wallet.File)
		} else {
			fmt.Fprintln(c.out, "Source:  environment")
		}
		return nil

	case "new":
		fs := c.newFlagSet("wallet new")
		force := fs.Bool("force", false, "Replace an existing wallet")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		src, err := c.fileSource(ctx, cfg, *force)
		if err != nil {
			return err
		}
		w, err := wallet.New()
		if err != nil {
			return err
		}
		if err := src.Save(w); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Created wallet %s\nSaved to %s\nFund it with gas and the funding asset before buying.\n", w.Address, src.Path())
		return nil

	case "import":
		fs := c.newFlagSet("wallet import")
		force := fs.Bool("force", false, "Replace an existing wallet")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		key, err := c.readKey(fs.Args())
		if err != nil {
			return err
		}
		src, err := c.fileSource(ctx, cfg, *force)
		if err != nil {
			return err
		}
		w, err := wallet.Import(key)
		if err != nil {
			return err
		}
		if err := src.Save(w); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Imported wallet %s\nSaved to %s\n", w.Address, src.Path())
		return nil

	default:
		return usageErrorf("unknown wallet command %q", args[0])
	}
}

// loadConfig reads the configuration file, falling back to defaults when it does not exist
func (c *commands) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(c.g.config)
	if errors.Is(err, iofs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

func (c *commands) fileSource(ctx context.Context, cfg *config.Config, force bool) (*wallet.FileSource, error) {
	if cfg.Wallet.Source != "file" {
		return nil, fmt.Errorf("wallet source is %q, only file wallets can be written", cfg.Wallet.Source)
	}
	src := wallet.NewFileSource(cfg.Wallet.File)
	existing, err := src.CurrentWallet(ctx)
	if err != nil && !force {
		return nil, err
	}
	if existing != nil && !force {
		return nil, fmt.Errorf("wallet %s already exists at %s, use -force to replace it", existing.Address, src.Path())
	}
	return src, nil
}

// readKey takes the key from args or, when absent, from the first line of stdin
func (c *commands) readKey(args []string) (string, error) {
	if len(args) > 1 {
		return "", usageErrorf("wallet import takes at most one key")
	}
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	scanner := bufio.NewScanner(c.in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", usageErrorf("no private key on stdin")
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return "", usageErrorf("no private key on stdin")
	}
	return key, nil
}

// allocationFlags validates the shared -amount and -weights flags before anything is sent
func allocationFlags(ref, amount, weights, mode string) (allocationBody, error) {
	var body allocationBody
	if err := cli.ValidateBasketRef(ref); err != nil {
		return body, usageErrorf("%v", err)
	}
	if amount != "" {
		a, err := cli.ParseAmount(amount, decimal.Zero, decimal.Zero)
		if err != nil {
			return body, usageErrorf("%v", err)
		}
		body.Amount = &a
	}
	w, err := cli.ParseWeights(weights)
	if err != nil {
		return body, usageErrorf("%v", err)
	}
	body.Weights = w
	body.Mode = mode
	return body, nil
}

func describeWeights(b catalog.Basket) string {
	parts := make([]string, len(b.Weights))
	for i, e := range b.Weights {
		parts[i] = fmt.Sprintf("%s %s%%", e.Asset.Symbol, formatFloat(e.Weight))
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
