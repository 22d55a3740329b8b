package simple

import (
	"context"
	"errors"
	"testing"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/mock"
	"basket_swap/internal/trading/orchestrator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcType = "0xusdc::usdc::USDC"
	suiType  = "0x2::sui::SUI"
	deepType = "0xdeep::deep::DEEP"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, fields ...interface{})                 {}
func (m *mockLogger) Info(msg string, fields ...interface{})                  {}
func (m *mockLogger) Warn(msg string, fields ...interface{})                  {}
func (m *mockLogger) Error(msg string, fields ...interface{})                 {}
func (m *mockLogger) Fatal(msg string, fields ...interface{})                 {}
func (m *mockLogger) WithField(key string, value interface{}) core.ILogger    { return m }
func (m *mockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

func newTestEngine(t *testing.T, store core.IRunStore) (*SimpleEngine, *mock.MockVenue) {
	t.Helper()
	venue := mock.NewMockVenue()
	venue.SetRate(suiType, decimal.NewFromInt(2))
	venue.SetRate(deepType, decimal.NewFromInt(40))
	venue.SetWallet(&core.Wallet{Address: "0xabc", PrivateKey: "seed"})

	orch := orchestrator.NewOrchestrator(orchestrator.Config{
		Funding:  core.Asset{Symbol: "USDC", CoinType: usdcType, Decimals: 6},
		Slippage: 0.01,
	}, venue, venue, venue, venue, nil, &mockLogger{})

	eng := NewSimpleEngine(orch, store, &mockLogger{}).(*SimpleEngine)
	return eng, venue
}

func purchaseRequest(mode core.ExecutionMode) core.PurchaseRequest {
	return core.PurchaseRequest{
		BasketID: "custom",
		Weights: core.WeightVector{
			{Asset: core.Asset{Symbol: "SUI", CoinType: suiType, Decimals: 9}, Weight: 60},
			{Asset: core.Asset{Symbol: "DEEP", CoinType: deepType, Decimals: 6}, Weight: 40},
		},
		Amount: decimal.NewFromInt(10),
		Mode:   mode,
	}
}

func TestSimpleEngine_PurchaseRecordsRun(t *testing.T) {
	store := NewMemoryStore()
	eng, venue := newTestEngine(t, store)
	require.NoError(t, eng.Start(context.Background()))

	snap, err := eng.Purchase(context.Background(), purchaseRequest(core.ModeSequential))
	require.NoError(t, err)
	assert.True(t, snap.AllOK)
	assert.Len(t, venue.Executed(), 2)

	stored, err := store.LoadRun(context.Background(), snap.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Results, 2)

	history, err := eng.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	second, err := eng.Purchase(context.Background(), purchaseRequest(core.ModeSequential))
	require.NoError(t, err)
	history, err = eng.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1, "the default store keeps only the latest run")
	assert.Equal(t, second.ID, history[0].ID)
}

func TestSimpleEngine_BatchedSubmitsOnce(t *testing.T) {
	eng, venue := newTestEngine(t, NewMemoryStore())

	snap, err := eng.Purchase(context.Background(), purchaseRequest(core.ModeBatched))
	require.NoError(t, err)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, core.ResultSuccess, snap.Results[0].Status)

	executed := venue.Executed()
	require.Len(t, executed, 1)
	assert.Len(t, executed[0].Swaps, 2)
	assert.Equal(t, "6000000", executed[0].Swaps[0].AmountIn.String())
	assert.Equal(t, "4000000", executed[0].Swaps[1].AmountIn.String())
}

func TestSimpleEngine_NoWalletDoesNotRecord(t *testing.T) {
	store := NewMemoryStore()
	eng, venue := newTestEngine(t, store)
	venue.SetWallet(nil)

	_, err := eng.Purchase(context.Background(), purchaseRequest(core.ModeSequential))
	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	runs, _ := store.ListRuns(context.Background(), 0)
	assert.Empty(t, runs)
}

func TestSimpleEngine_StartRestoresLastRun(t *testing.T) {
	store := NewMemoryStore()
	prev := sampleRun("previous", time.Now())
	require.NoError(t, store.SaveRun(context.Background(), prev))

	eng, _ := newTestEngine(t, store)
	assert.Equal(t, core.RunNotStarted, eng.Snapshot().Status)

	require.NoError(t, eng.Start(context.Background()))
	assert.Equal(t, "previous", eng.Snapshot().ID)

	snap, err := eng.Purchase(context.Background(), purchaseRequest(core.ModeSequential))
	require.NoError(t, err)
	assert.Equal(t, snap.ID, eng.Snapshot().ID)
}

func TestSimpleEngine_CancelWithoutRun(t *testing.T) {
	eng, _ := newTestEngine(t, NewMemoryStore())
	assert.False(t, eng.Cancel())
	assert.NoError(t, eng.Stop())
}
