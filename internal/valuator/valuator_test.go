package valuator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradeforge/internal/ledger"
	"tradeforge/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedHolding(t *testing.T, store *ledger.Store, account, sym, quantity, avgPrice string, invested int64) {
	t.Helper()
	acct, err := store.Account(context.Background(), account)
	require.NoError(t, err)
	err = store.ApplyTrade(context.Background(), ledger.TradeApplication{
		AccountID:      account,
		NewCashBalance: acct.CashBalance - invested,
		UpsertHolding: &ledger.Holding{
			AccountID:     account,
			Symbol:        sym,
			Quantity:      decimal.RequireFromString(quantity),
			AvgEntryPrice: decimal.RequireFromString(avgPrice),
			TotalInvested: invested,
		},
		Record: ledger.TradeRecord{
			ID:           sym + "-" + quantity,
			AccountID:    account,
			Symbol:       sym,
			Side:         ledger.SideBuy,
			Quantity:     decimal.RequireFromString(quantity),
			Price:        decimal.RequireFromString(avgPrice),
			TotalValue:   invested,
			BalanceAfter: acct.CashBalance - invested,
			Status:       ledger.TradeStatusFilled,
			ExecutedAtMs: time.Now().UnixMilli(),
		},
	})
	require.NoError(t, err)
}

func TestSnapshotValuesHoldingsAtLatestPrice(t *testing.T) {
	store := newTestStore(t)
	cache := market.NewPriceCache()
	ctx := context.Background()

	_, err := store.EnsureAccount(ctx, "alice", 1_000_000)
	require.NoError(t, err)
	seedHolding(t, store, "alice", "BTCUSDT", "10", "500", 500_000)

	// price moved up 10% since entry
	cache.Put(market.Tick{Exchange: "binance", Symbol: "BTCUSDT", Price: decimal.NewFromInt(550), At: time.Now()})

	v := New(store, cache, time.Minute)
	snap, err := v.Snapshot(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(500_000), snap.CashBalance)
	assert.Equal(t, int64(550_000), snap.HoldingsValue)
	assert.Equal(t, int64(1_050_000), snap.TotalValue)
	assert.Equal(t, int64(500_000), snap.TotalInvested)
	assert.Equal(t, int64(50_000), snap.UnrealizedPnL)
	assert.True(t, snap.PnLPercent.Equal(decimal.RequireFromString("10")), "got %s", snap.PnLPercent)
	assert.Equal(t, int64(1_000_000), snap.StartingBalance)
	assert.Equal(t, int64(50_000), snap.TotalPnL)
	assert.True(t, snap.TotalPnLPercent.Equal(decimal.RequireFromString("5")))

	require.Len(t, snap.Holdings, 1)
	h := snap.Holdings[0]
	assert.Equal(t, "BTCUSDT", h.Symbol)
	assert.Equal(t, "binance", h.Exchange)
	assert.False(t, h.PriceStale)
	assert.Equal(t, int64(550_000), h.CurrentValue)
	assert.Equal(t, int64(50_000), h.UnrealizedPnL)
	assert.True(t, h.AllocationPercent.Equal(decimal.RequireFromString("100")))
}

func TestSnapshotDegradesToEntryPriceWhenStale(t *testing.T) {
	store := newTestStore(t)
	cache := market.NewPriceCache()
	ctx := context.Background()

	_, err := store.EnsureAccount(ctx, "alice", 1_000_000)
	require.NoError(t, err)
	seedHolding(t, store, "alice", "BTCUSDT", "10", "500", 500_000)

	cache.Put(market.Tick{Exchange: "binance", Symbol: "BTCUSDT", Price: decimal.NewFromInt(9999), At: time.Now()})

	v := New(store, cache, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	snap, err := v.Snapshot(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, snap.Holdings, 1)
	h := snap.Holdings[0]
	assert.True(t, h.PriceStale)
	assert.True(t, h.CurrentPrice.Equal(decimal.RequireFromString("500")), "stale holding falls back to entry price")
	assert.Equal(t, int64(500_000), h.CurrentValue)
	assert.Equal(t, int64(0), h.UnrealizedPnL)
	assert.Equal(t, int64(500_000), snap.HoldingsValue)
}

func TestSnapshotAllocationAcrossHoldings(t *testing.T) {
	store := newTestStore(t)
	cache := market.NewPriceCache()
	ctx := context.Background()

	_, err := store.EnsureAccount(ctx, "alice", 1_000_000)
	require.NoError(t, err)
	seedHolding(t, store, "alice", "BTCUSDT", "3", "1000", 300_000)
	seedHolding(t, store, "alice", "ETHUSDT", "10", "100", 100_000)

	cache.Put(market.Tick{Exchange: "binance", Symbol: "BTCUSDT", Price: decimal.NewFromInt(1000), At: time.Now()})
	cache.Put(market.Tick{Exchange: "bybit", Symbol: "ETHUSDT", Price: decimal.NewFromInt(100), At: time.Now()})

	v := New(store, cache, time.Minute)
	snap, err := v.Snapshot(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, snap.Holdings, 2)

	// sorted by current value, largest first
	assert.Equal(t, "BTCUSDT", snap.Holdings[0].Symbol)
	assert.Equal(t, "ETHUSDT", snap.Holdings[1].Symbol)
	assert.True(t, snap.Holdings[0].AllocationPercent.Equal(decimal.RequireFromString("75")), "got %s", snap.Holdings[0].AllocationPercent)
	assert.True(t, snap.Holdings[1].AllocationPercent.Equal(decimal.RequireFromString("25")))
}

func TestSnapshotUnknownAccountIsZeroed(t *testing.T) {
	store := newTestStore(t)
	v := New(store, market.NewPriceCache(), time.Minute)

	snap, err := v.Snapshot(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", snap.AccountID)
	assert.Zero(t, snap.CashBalance)
	assert.Zero(t, snap.TotalValue)
	assert.NotNil(t, snap.Holdings)
	assert.Empty(t, snap.Holdings)
}

func TestSnapshotCashOnlyAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnsureAccount(ctx, "alice", 1_000_000)
	require.NoError(t, err)

	v := New(store, market.NewPriceCache(), time.Minute)
	snap, err := v.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), snap.CashBalance)
	assert.Equal(t, int64(1_000_000), snap.TotalValue)
	assert.Zero(t, snap.TotalPnL)
	assert.True(t, snap.TotalPnLPercent.IsZero())
	assert.Empty(t, snap.Holdings)
}
