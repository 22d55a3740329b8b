package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"basket_swap/internal/api"
	"basket_swap/internal/catalog"
	"basket_swap/internal/core"
	"basket_swap/internal/engine/simple"
	"basket_swap/internal/mock"
	"basket_swap/internal/trading/orchestrator"
	"basket_swap/internal/trading/portfolio"
	"basket_swap/internal/wallet"
	"basket_swap/pkg/liveserver"
	"basket_swap/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type basketd struct {
	venue *mock.MockVenue
	api   string
	ws    string
}

// newBasketd serves the HTTP API and the progress stream over a mock venue
func newBasketd(t *testing.T) *basketd {
	t.Helper()
	logger := logging.NopLogger{}
	reg := catalog.DefaultRegistry()
	usdc, _ := reg.BySymbol("USDC")

	venue := mock.NewMockVenue()
	venue.SetRate(catalog.SUICoinType, decimal.NewFromInt(2))
	venue.SetRate(catalog.DEEPCoinType, decimal.NewFromInt(5))
	venue.SetRate(catalog.NSCoinType, decimal.NewFromInt(8))

	orch := orchestrator.NewOrchestrator(orchestrator.Config{Funding: usdc.Asset(), Slippage: 0.01},
		venue, venue, venue, venue, nil, logger)
	eng := simple.NewSimpleEngine(orch, simple.NewMemoryStore(), logger)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop() })

	srv := api.NewServer(api.Config{
		Limits: api.Limits{Default: decimal.NewFromInt(100), Max: decimal.NewFromInt(10000)},
	}, api.Deps{
		Catalog:   catalog.NewCatalog(catalog.Defaults(reg)),
		Engine:    eng,
		Previewer: orch,
		Portfolio: portfolio.NewValuer(venue, venue, reg.Tokens(), logger),
	}, logger)
	orch.Subscribe(srv)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := liveserver.NewHub(logger)
	go hub.Run(ctx)
	orch.Subscribe(liveserver.NewRunBroadcaster(hub))
	live := liveserver.NewServer(hub, logger, nil)
	live.SetAllowMissingOrigin(true)

	apiTS := httptest.NewServer(srv.Handler())
	t.Cleanup(apiTS.Close)
	wsTS := httptest.NewServer(live.Handler())
	t.Cleanup(wsTS.Close)

	return &basketd{
		venue: venue,
		api:   apiTS.URL,
		ws:    "ws" + strings.TrimPrefix(wsTS.URL, "http") + "/ws",
	}
}

func (d *basketd) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-server", d.api, "-ws", d.ws, "-timeout", "5s"}, args...)
	code := run(full, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_VersionAndUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"-version"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "basketctl version dev")

	assert.Equal(t, 2, run(nil, nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Commands:")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"rebalance"}, nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "rebalance"`)
}

func TestBaskets(t *testing.T) {
	d := newBasketd(t)

	code, out, _ := d.run(t, "baskets")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "SLUG")
	assert.Regexp(t, `defi-basket\s+DeFi Basket\s+RWA`, out)
	assert.Contains(t, out, "SUI 50%, DEEP 25%, NS 25%")
	assert.Regexp(t, `meme-stack.*no\n`, out)
}

func TestEstimate(t *testing.T) {
	d := newBasketd(t)

	code, out, _ := d.run(t, "estimate", "defi-basket", "-amount", "200")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "defi-basket: 200 USDC")
	assert.Regexp(t, `SUI\s+50%\s+100.00\s+1.5\s+66.666667`, out)

	code, _, errOut := d.run(t, "estimate", "defi-basket", "-amount", "-5")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "must be positive")

	code, _, errOut = d.run(t, "estimate", "no-such-basket")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "404")
}

func TestPortfolio(t *testing.T) {
	d := newBasketd(t)
	d.venue.Fund("0xb0b", catalog.SUICoinType, decimal.NewFromInt(2_000_000_000))
	d.venue.SetPrice(catalog.SUIFeedID, decimal.NewFromInt(3))

	code, out, _ := d.run(t, "portfolio", "0xb0b")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Portfolio 0xb0b")
	assert.Regexp(t, `SUI\s+2\s+3\s+6.00`, out)
	assert.Contains(t, out, "Total: $6.00")

	code, _, errOut := d.run(t, "portfolio", "alice")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "invalid address")
}

func TestBuy_Remote(t *testing.T) {
	pollInterval = 20 * time.Millisecond
	d := newBasketd(t)
	d.venue.SetWallet(&core.Wallet{Address: "0xa11ce", PrivateKey: "suiprivkey1test"})

	code, out, errOut := d.run(t, "buy", "defi-basket", "-amount", "50")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "buying defi-basket with 50")
	for _, sym := range []string{"SUI", "DEEP", "NS"} {
		assert.Equal(t, 1, strings.Count(out, "[ok]   "+sym), sym)
	}
	assert.Contains(t, out, "Completed: 3 of 3 legs succeeded")
}

func TestBuy_RemoteFailures(t *testing.T) {
	pollInterval = 20 * time.Millisecond
	d := newBasketd(t)

	code, _, errOut := d.run(t, "buy", "defi-basket")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "412")

	d.venue.SetWallet(&core.Wallet{Address: "0xa11ce", PrivateKey: "suiprivkey1test"})
	d.venue.FailQuote(catalog.NSCoinType, assert.AnError)

	code, out, _ := d.run(t, "buy", "defi-basket", "-mode", "sequential")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "[fail] NS")
	assert.Contains(t, out, "Completed with errors: 2 of 3 legs succeeded")

	code, _, errOut = d.run(t, "buy", "defi-basket", "-mode", "parallel")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unknown execution mode")
}

func TestBuy_Local(t *testing.T) {
	dir := t.TempDir()
	walletPath := filepath.Join(dir, "wallet.json")
	cfgPath := filepath.Join(dir, "basketd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
wallet:
  source: file
  file: `+walletPath+`
server:
  health_port: "0"
`), 0o600))

	w, err := wallet.New()
	require.NoError(t, err)
	require.NoError(t, wallet.NewFileSource(walletPath).Save(w))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "buy", "-local", "-weights", "60,20,20", "defi-basket"}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Completed: 3 of 3 legs succeeded")
}

func TestWallet(t *testing.T) {
	dir := t.TempDir()
	walletPath := filepath.Join(dir, "keys", "wallet.json")
	cfgPath := filepath.Join(dir, "basketd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("wallet:\n  source: file\n  file: "+walletPath+"\n"), 0o600))

	walletCmd := func(stdin string, args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		code := run(append([]string{"-config", cfgPath, "wallet"}, args...), strings.NewReader(stdin), &stdout, &stderr)
		return code, stdout.String(), stderr.String()
	}

	code, _, errOut := walletCmd("", "show")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no wallet configured")

	code, out, _ := walletCmd("", "new")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Created wallet 0x")

	info, err := os.Stat(walletPath)
	require.NoError(t, err)
	assert.Equal(t, wallet.FileMode, info.Mode().Perm())

	code, _, errOut = walletCmd("", "new")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "-force")

	created, err := wallet.NewFileSource(walletPath).CurrentWallet(context.Background())
	require.NoError(t, err)

	code, out, _ = walletCmd("", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, created.Address)
	assert.NotContains(t, out, created.PrivateKey)

	other, err := wallet.New()
	require.NoError(t, err)
	code, out, errOut = walletCmd(other.PrivateKey+"\n", "import", "-force")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Imported wallet "+other.Address)

	code, _, _ = walletCmd("", "rotate")
	assert.Equal(t, 2, code)
}
