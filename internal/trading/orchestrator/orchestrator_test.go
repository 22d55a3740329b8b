package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"basket_swap/internal/core"
	"basket_swap/pkg/concurrency"
	apperrors "basket_swap/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	usdcType = "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"
	suiType  = "0x2::sui::SUI"
	deepType = "0xdeeb::deep::DEEP"
	nsType   = "0x5145::ns::NS"
	sender   = "0x7a1f"
)

var usdc = core.Asset{Symbol: "USDC", CoinType: usdcType, Decimals: 6}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

// fakeQuotes echoes the request back as a quote
type fakeQuotes struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []core.QuoteRequest
	gate  chan struct{}
	// entered receives once a call is waiting on gate
	entered chan struct{}
}

func (f *fakeQuotes) GetQuote(ctx context.Context, req core.QuoteRequest) (*core.Quote, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.fail[req.TokenOut]; err != nil {
		return nil, err
	}
	return &core.Quote{
		ID:        "q-" + req.TokenOut,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		AmountOut: req.AmountIn.Mul(decimal.NewFromInt(2)),
	}, nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeBuilder builds recognisable transaction bytes
type fakeBuilder struct {
	mu          sync.Mutex
	fail        map[string]error
	builds      []core.BuildRequest
	splits      [][]decimal.Decimal
	transferred []core.CoinHandle
	onTransfer  func()
}

func (f *fakeBuilder) BuildSwap(ctx context.Context, req core.BuildRequest) (*core.BuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, req)
	if err := f.fail[req.Quote.TokenOut]; err != nil {
		return nil, err
	}
	tx := &core.Transaction{Sender: req.Sender, Bytes: []byte("swap:" + req.Quote.TokenOut), Commands: 1}
	if req.Extend != nil {
		tx = &core.Transaction{
			Sender:   req.Extend.Sender,
			Bytes:    append(append([]byte{}, req.Extend.Bytes...), []byte("|swap:"+req.Quote.TokenOut)...),
			Commands: req.Extend.Commands + 1,
		}
	}
	return &core.BuildResult{Tx: tx, CoinOut: core.CoinHandle{Kind: core.ArgumentNestedResult, Index: tx.Commands - 1}}, nil
}

func (f *fakeBuilder) SplitFunding(ctx context.Context, owner, coinType string, amounts []decimal.Decimal) (*core.Transaction, []core.CoinHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits = append(f.splits, amounts)
	coins := make([]core.CoinHandle, len(amounts))
	for i := range amounts {
		coins[i] = core.CoinHandle{Kind: core.ArgumentNestedResult, Index: 0, Nested: i}
	}
	return &core.Transaction{Sender: owner, Bytes: []byte("split"), Commands: 1}, coins, nil
}

func (f *fakeBuilder) TransferObjects(ctx context.Context, tx *core.Transaction, objects []core.CoinHandle, recipient string) (*core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferred = append(f.transferred, objects...)
	if f.onTransfer != nil {
		f.onTransfer()
	}
	return &core.Transaction{
		Sender:   tx.Sender,
		Bytes:    append(append([]byte{}, tx.Bytes...), []byte("|transfer")...),
		Commands: tx.Commands + 1,
	}, nil
}

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Address() string {
	return sender
}

func (m *mockSession) SignAndExecute(ctx context.Context, tx *core.Transaction, opts core.ExecuteOptions) (*core.Receipt, error) {
	args := m.Called(ctx, tx, opts)
	r, _ := args.Get(0).(*core.Receipt)
	return r, args.Error(1)
}

func (m *mockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

type fakeExecutor struct {
	session core.ISession
	err     error
}

func (f *fakeExecutor) Acquire(ctx context.Context, w *core.Wallet) (core.ISession, error) {
	return f.session, f.err
}

type fakeWallets struct {
	wallet *core.Wallet
	err    error
	onLoad func()
}

func (f *fakeWallets) CurrentWallet(ctx context.Context) (*core.Wallet, error) {
	if f.onLoad != nil {
		f.onLoad()
	}
	return f.wallet, f.err
}

func okReceipt(digest string) *core.Receipt {
	return &core.Receipt{Digest: digest, Effects: core.Effects{Status: core.ExecutionStatus{Status: "success"}}}
}

func defiWeights() core.WeightVector {
	return core.WeightVector{
		{Asset: core.Asset{Symbol: "SUI", CoinType: suiType, Decimals: 9}, Weight: 50},
		{Asset: core.Asset{Symbol: "DEEP", CoinType: deepType, Decimals: 6}, Weight: 25},
		{Asset: core.Asset{Symbol: "NS", CoinType: nsType, Decimals: 6}, Weight: 25},
	}
}

func purchase(mode core.ExecutionMode) core.PurchaseRequest {
	return core.PurchaseRequest{BasketID: "2", Weights: defiWeights(), Amount: decimal.NewFromInt(100), Mode: mode}
}

type harness struct {
	orch    *Orchestrator
	quotes  *fakeQuotes
	builder *fakeBuilder
	session *mockSession
	wallets *fakeWallets
}

func newHarness(cfg Config, pool *concurrency.WorkerPool) *harness {
	cfg.Funding = usdc
	cfg.Slippage = 0.01
	h := &harness{
		quotes:  &fakeQuotes{fail: map[string]error{}},
		builder: &fakeBuilder{fail: map[string]error{}},
		session: &mockSession{},
		wallets: &fakeWallets{wallet: &core.Wallet{Address: sender, PrivateKey: "seed"}},
	}
	h.session.On("Close").Return(nil)
	h.orch = NewOrchestrator(cfg, h.quotes, h.builder,
		&fakeExecutor{session: h.session}, h.wallets, pool, &mockLogger{})
	return h
}

func statuses(results []core.SwapResult) []core.ResultStatus {
	out := make([]core.ResultStatus, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}

func TestOrchestrator_SequentialAllSucceed(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, core.DefaultExecuteOptions()).Return(okReceipt("D1"), nil).Once()
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, core.DefaultExecuteOptions()).Return(okReceipt("D2"), nil).Once()
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, core.DefaultExecuteOptions()).Return(okReceipt("D3"), nil).Once()

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, core.RunCompleted, snap.Status)
	assert.True(t, snap.AllOK)
	assert.NotEmpty(t, snap.ID)
	require.Len(t, snap.Results, 3)
	assert.Equal(t, []string{"D1", "D2", "D3"}, []string{snap.Results[0].Digest, snap.Results[1].Digest, snap.Results[2].Digest})
	assert.Equal(t, "SUI", snap.Results[0].Symbol)

	// Legs are quoted in vector order with floored base units
	require.Equal(t, 3, h.quotes.callCount())
	assert.Equal(t, suiType, h.quotes.calls[0].TokenOut)
	assert.Equal(t, "50000000", h.quotes.calls[0].AmountIn.String())
	assert.Equal(t, usdcType, h.quotes.calls[0].TokenIn)

	// Builds carry sender, slippage and no extension
	for _, b := range h.builder.builds {
		assert.Equal(t, sender, b.Sender)
		assert.Equal(t, 0.01, b.Slippage)
		assert.Nil(t, b.Extend)
	}

	h.session.AssertNumberOfCalls(t, "SignAndExecute", 3)
	h.session.AssertNumberOfCalls(t, "Close", 1)
	assert.False(t, h.orch.IsRunning())
}

func TestOrchestrator_SequentialQuoteFailureContinues(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.quotes.fail[deepType] = fmt.Errorf("%w: DEEP", apperrors.ErrNoRoute)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, []core.ResultStatus{core.ResultSuccess, core.ResultError, core.ResultSuccess}, statuses(snap.Results))
	assert.Equal(t, core.ErrorKindQuote, snap.Results[1].Kind)
	assert.Contains(t, snap.Results[1].Error, "no route found")
	assert.Equal(t, core.RunCompleted, snap.Status)
	assert.False(t, snap.AllOK)
	h.session.AssertNumberOfCalls(t, "SignAndExecute", 2)
}

func TestOrchestrator_SequentialBuildAndExecutionFailures(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.builder.fail[suiType] = errors.New("route unbuildable")
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("signing refused")).Once()
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(&core.Receipt{
		Digest:  "D3",
		Effects: core.Effects{Status: core.ExecutionStatus{Status: "failure", Error: "InsufficientCoinBalance"}},
	}, nil).Once()

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	require.Len(t, snap.Results, 3)
	assert.Equal(t, core.ErrorKindBuild, snap.Results[0].Kind)
	assert.Equal(t, "route unbuildable", snap.Results[0].Error)
	assert.Equal(t, core.ErrorKindExecution, snap.Results[1].Kind)
	assert.Equal(t, "signing refused", snap.Results[1].Error)
	assert.Equal(t, core.ErrorKindExecution, snap.Results[2].Kind)
	assert.Equal(t, "InsufficientCoinBalance", snap.Results[2].Error)
	assert.Equal(t, "D3", snap.Results[2].Digest)
	assert.False(t, snap.AllOK)
}

func TestOrchestrator_FailedStatusWithoutMessage(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(&core.Receipt{
		Digest:  "D",
		Effects: core.Effects{Status: core.ExecutionStatus{Status: "failure"}},
	}, nil)

	req := purchase(core.ModeSequential)
	req.Weights = core.WeightVector{{Asset: core.Asset{Symbol: "SUI", CoinType: suiType}, Weight: 100}}

	snap, err := h.orch.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "Transaction failed", snap.Results[0].Error)
}

func TestOrchestrator_ZeroAmountLegIsSkipped(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	req := purchase(core.ModeSequential)
	req.Weights[0].Weight = 75
	req.Weights[1].Weight = 0

	snap, err := h.orch.Execute(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, snap.Results, 3)
	assert.Equal(t, core.ResultSuccess, snap.Results[1].Status)
	assert.True(t, snap.Results[1].Skipped)
	assert.Empty(t, snap.Results[1].Digest)
	assert.True(t, snap.AllOK)

	assert.Equal(t, 2, h.quotes.callCount())
	for _, q := range h.quotes.calls {
		assert.NotEqual(t, deepType, q.TokenOut)
	}
	h.session.AssertNumberOfCalls(t, "SignAndExecute", 2)
}

func TestOrchestrator_NoSignerConfigured(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.orch.wallets = &fakeWallets{}

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoSignerConfigured)

	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, snap.ID)
	assert.Equal(t, core.RunNotStarted, h.orch.Snapshot().Status)
	assert.Equal(t, 0, h.quotes.callCount())

	// The orchestrator was released, the same error comes back
	_, err = h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	assert.ErrorIs(t, err, apperrors.ErrNoSignerConfigured)
}

func TestOrchestrator_SignerUnavailable(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.orch.executor = &fakeExecutor{err: errors.New("bad key")}

	_, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	assert.ErrorIs(t, err, apperrors.ErrNoSignerConfigured)
	assert.Contains(t, err.Error(), "bad key")
}

func TestOrchestrator_AlreadyRunningKeepsResults(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.quotes.gate = make(chan struct{})
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	done := make(chan core.RunSnapshot)
	go func() {
		snap, _ := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
		done <- snap
	}()

	require.Eventually(t, func() bool {
		return len(h.orch.Snapshot().Results) == 1
	}, time.Second, 5*time.Millisecond)
	before := h.orch.Snapshot()

	_, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRunning)

	after := h.orch.Snapshot()
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, core.RunRunning, after.Status)
	require.Len(t, after.Results, 1)
	assert.Equal(t, core.ResultPending, after.Results[0].Status)

	close(h.quotes.gate)
	snap := <-done
	assert.True(t, snap.AllOK)
	assert.Len(t, snap.Results, 3)
}

func TestOrchestrator_NewRunResetsResults(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	first, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	req := purchase(core.ModeSequential)
	req.Weights = core.WeightVector{{Asset: core.Asset{Symbol: "SUI", CoinType: suiType}, Weight: 100}}
	second, err := h.orch.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.Results, 1)
	assert.Len(t, h.orch.Snapshot().Results, 1)
}

func TestOrchestrator_CancelStopsBeforeNextLeg(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	h.orch.Subscribe(ObserverFuncs{LegResult: func(runID string, r core.SwapResult) {
		if r.LegIndex == 0 && r.IsTerminal() {
			assert.True(t, h.orch.Cancel())
		}
	}})

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.ResultSuccess, snap.Results[0].Status)
	assert.True(t, snap.Cancelled)
	assert.False(t, snap.AllOK)
	assert.Equal(t, core.RunCompleted, snap.Status)
	assert.Equal(t, 1, h.quotes.callCount())

	assert.False(t, h.orch.Cancel(), "nothing left to cancel")
}

func TestOrchestrator_CancelWhileAcquiringSessionIsKept(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)
	h.wallets.onLoad = func() {
		assert.True(t, h.orch.Cancel(), "the run already holds the orchestrator")
	}

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)
	assert.True(t, snap.Cancelled)
	assert.Empty(t, snap.Results)
	assert.Zero(t, h.quotes.callCount())

	// a finished run leaves no cancel behind for the next one
	assert.False(t, h.orch.Cancel())
	h.wallets.onLoad = nil
	snap, err = h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)
	assert.False(t, snap.Cancelled)
	assert.True(t, snap.AllOK)
}

func TestOrchestrator_ContextCancelledBeforeStart(t *testing.T) {
	h := newHarness(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := h.orch.Execute(ctx, purchase(core.ModeSequential))
	require.NoError(t, err)
	assert.True(t, snap.Cancelled)
	assert.Empty(t, snap.Results)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_ObserversSeePendingThenTerminal(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	var events []string
	h.orch.Subscribe(ObserverFuncs{
		RunStarted: func(s core.RunSnapshot) { events = append(events, "started:"+string(s.Status)) },
		LegResult: func(_ string, r core.SwapResult) {
			events = append(events, fmt.Sprintf("%d:%s", r.LegIndex, r.Status))
		},
		RunCompleted: func(s core.RunSnapshot) { events = append(events, fmt.Sprintf("completed:%v", s.AllOK)) },
	})

	_, err := h.orch.Execute(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"started:running",
		"0:pending", "0:success",
		"1:pending", "1:success",
		"2:pending", "2:success",
		"completed:true",
	}, events)
}

func TestOrchestrator_RejectsInvalidInput(t *testing.T) {
	h := newHarness(Config{}, nil)

	req := purchase(core.ModeSequential)
	req.Weights[0].Weight = 90
	_, err := h.orch.Execute(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWeights)

	req = purchase(core.ModeSequential)
	req.Amount = decimal.NewFromInt(-5)
	_, err = h.orch.Execute(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	req = purchase("parallel")
	_, err = h.orch.Execute(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrInvalidMode)

	assert.Equal(t, core.RunNotStarted, h.orch.Snapshot().Status)
}

func TestOrchestrator_BatchedSingleSubmission(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.MatchedBy(func(tx *core.Transaction) bool {
		return string(tx.Bytes) == "split|swap:"+suiType+"|swap:"+deepType+"|swap:"+nsType+"|transfer"
	}), mock.Anything).Return(okReceipt("BATCH"), nil).Once()

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	require.NoError(t, err)

	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.BatchLegIndex, snap.Results[0].LegIndex)
	assert.Equal(t, "batch", snap.Results[0].Symbol)
	assert.Equal(t, core.ResultSuccess, snap.Results[0].Status)
	assert.Equal(t, "BATCH", snap.Results[0].Digest)
	assert.True(t, snap.AllOK)

	require.Len(t, h.builder.splits, 1)
	assert.Equal(t, []string{"50000000", "25000000", "25000000"}, []string{
		h.builder.splits[0][0].String(), h.builder.splits[0][1].String(), h.builder.splits[0][2].String(),
	})
	require.Len(t, h.builder.builds, 3)
	for k, b := range h.builder.builds {
		require.NotNil(t, b.Extend)
		require.NotNil(t, b.CoinIn)
		assert.Equal(t, k, b.CoinIn.Nested)
	}
	// Three outputs plus three split leftovers
	assert.Len(t, h.builder.transferred, 6)
	h.session.AssertNumberOfCalls(t, "SignAndExecute", 1)
}

func TestOrchestrator_BatchedQuoteFailureAborts(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.quotes.fail[nsType] = errors.New("pair not supported")

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBatchAborted)
	assert.ErrorIs(t, err, apperrors.ErrQuoteFailed)

	var abort *core.BatchAbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, 2, abort.Leg)

	assert.Equal(t, core.RunCompleted, snap.Status)
	assert.False(t, snap.AllOK)
	assert.NotEmpty(t, snap.Error)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.ErrorKindQuote, snap.Results[0].Kind)
	assert.Empty(t, h.builder.splits)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_BatchedBuildFailureAborts(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.builder.fail[deepType] = errors.New("no liquidity")

	_, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	assert.ErrorIs(t, err, apperrors.ErrBatchAborted)
	assert.ErrorIs(t, err, apperrors.ErrBuildFailed)

	var abort *core.BatchAbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, 1, abort.Leg)
	assert.Empty(t, h.builder.transferred)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_BatchedSubmissionFailureIsSingleError(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("node unreachable")).Once()

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	require.NoError(t, err)

	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.ResultError, snap.Results[0].Status)
	assert.Equal(t, core.ErrorKindExecution, snap.Results[0].Kind)
	assert.Equal(t, "node unreachable", snap.Results[0].Error)
	assert.Equal(t, core.RunCompleted, snap.Status)
	assert.False(t, snap.AllOK)
}

func TestOrchestrator_BatchedCancelBeforeSubmission(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.builder.onTransfer = func() { h.orch.Cancel() }

	snap, err := h.orch.Execute(context.Background(), purchase(core.ModeBatched))
	require.NoError(t, err)

	require.Len(t, snap.Results, 1)
	res := snap.Results[0]
	assert.Equal(t, core.BatchLegIndex, res.LegIndex)
	assert.Equal(t, core.ResultError, res.Status)
	assert.Equal(t, core.ErrorKindNone, res.Kind)
	assert.Equal(t, "cancelled before submission", res.Error)
	assert.True(t, snap.Cancelled)
	assert.False(t, snap.AllOK)
	assert.Len(t, h.builder.builds, 3)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_BatchedContextCancelledDuringQuotes(t *testing.T) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "quotes", MaxWorkers: 1}, &mockLogger{})
	defer pool.Stop()

	h := newHarness(Config{}, pool)
	h.quotes.gate = make(chan struct{})
	h.quotes.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-h.quotes.entered
		cancel()
		close(h.quotes.gate)
	}()

	snap, err := h.orch.Execute(ctx, purchase(core.ModeBatched))
	require.NoError(t, err, "an interrupted quote fan-out is a cancel, not an abort")

	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.ErrorKindNone, snap.Results[0].Kind)
	assert.Equal(t, "cancelled before submission", snap.Results[0].Error)
	assert.True(t, snap.Cancelled)
	assert.Equal(t, 1, h.quotes.callCount(), "queued quotes are skipped")
	assert.Empty(t, h.builder.splits)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_PrefetchQuotesThroughPool(t *testing.T) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "quotes", MaxWorkers: 3}, &mockLogger{})
	defer pool.Stop()

	h := newHarness(Config{PrefetchQuotes: true}, pool)
	h.quotes.fail[deepType] = errors.New("stale pool")
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	rec := &recordingSteps{}
	snap, err := h.orch.ExecuteWithSteps(context.Background(), purchase(core.ModeSequential), rec)
	require.NoError(t, err)

	assert.Equal(t, []core.ResultStatus{core.ResultSuccess, core.ResultError, core.ResultSuccess}, statuses(snap.Results))
	assert.Equal(t, core.ErrorKindQuote, snap.Results[1].Kind)
	assert.Equal(t, 3, h.quotes.callCount())
	assert.Equal(t, []string{"run-id", "quote-all", "build-0", "execute-0", "build-2", "execute-2"}, rec.names)
}

type recordingSteps struct {
	names []string
}

func (r *recordingSteps) RunStep(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	r.names = append(r.names, name)
	return fn(ctx)
}

func TestOrchestrator_StepsPerCollaboratorCall(t *testing.T) {
	h := newHarness(Config{}, nil)
	h.quotes.fail[nsType] = errors.New("down")
	h.session.On("SignAndExecute", mock.Anything, mock.Anything, mock.Anything).Return(okReceipt("D"), nil)

	rec := &recordingSteps{}
	_, err := h.orch.ExecuteWithSteps(context.Background(), purchase(core.ModeSequential), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"run-id",
		"quote-0", "build-0", "execute-0",
		"quote-1", "build-1", "execute-1",
		"quote-2",
	}, rec.names)

	rec = &recordingSteps{}
	h.quotes.fail = map[string]error{}
	_, err = h.orch.ExecuteWithSteps(context.Background(), purchase(core.ModeBatched), rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-id", "quote-all", "split", "build-0", "build-1", "build-2", "transfer", "execute"}, rec.names)
}

func TestOrchestrator_Preview(t *testing.T) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "preview", MaxWorkers: 2}, &mockLogger{})
	defer pool.Stop()

	h := newHarness(Config{}, pool)
	h.quotes.fail[suiType] = errors.New("no route")

	previews, err := h.orch.Preview(context.Background(), purchase(core.ModeSequential))
	require.NoError(t, err)
	require.Len(t, previews, 3)

	assert.Nil(t, previews[0].Quote)
	assert.Contains(t, previews[0].Error, "no route")
	require.NotNil(t, previews[1].Quote)
	assert.Equal(t, "50000000", previews[1].Quote.AmountOut.String())
	assert.Equal(t, "DEEP", previews[1].Leg.OutputAsset.Symbol)

	// Preview never touches the run
	assert.Equal(t, core.RunNotStarted, h.orch.Snapshot().Status)
	h.session.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything, mock.Anything)
}
