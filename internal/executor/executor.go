package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradeforge/internal/ledger"
	"tradeforge/internal/logger"
	"tradeforge/internal/market"
	symbolpkg "tradeforge/internal/pkg/symbol"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRequest is the inbound order boundary contract.
type OrderRequest struct {
	AccountID string
	Symbol    string
	Side      string
	Quantity  decimal.Decimal
}

type Config struct {
	StalenessThreshold time.Duration
	LockTimeout        time.Duration
	TradablePairs      []string
}

func (c Config) withDefaults() Config {
	if c.StalenessThreshold <= 0 {
		c.StalenessThreshold = 60 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	return c
}

// Executor validates and atomically applies market orders against one
// account's cash and holdings, pricing them from the injected cache. All
// money math is decimal / fixed-point; nothing here touches float64.
type Executor struct {
	store *ledger.Store
	cache *market.PriceCache
	locks *accountLocks

	cfgMu     sync.RWMutex
	staleness time.Duration
	lockWait  time.Duration
	pairs     map[string]struct{}

	nowFn func() time.Time
}

func New(store *ledger.Store, cache *market.PriceCache, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		store:     store,
		cache:     cache,
		locks:     newAccountLocks(),
		staleness: cfg.StalenessThreshold,
		lockWait:  cfg.LockTimeout,
		nowFn:     time.Now,
	}
	e.SetTradablePairs(cfg.TradablePairs)
	return e
}

// SetTradablePairs replaces the allowed pair set. Called at startup and again
// on config hot-reload.
func (e *Executor) SetTradablePairs(pairs []string) {
	set := make(map[string]struct{}, len(pairs))
	for _, p := range symbolpkg.NormalizeList(pairs) {
		set[p] = struct{}{}
	}
	e.cfgMu.Lock()
	e.pairs = set
	e.cfgMu.Unlock()
}

// SetStalenessThreshold replaces the maximum usable tick age.
func (e *Executor) SetStalenessThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	e.cfgMu.Lock()
	e.staleness = d
	e.cfgMu.Unlock()
}

// ExecuteOrder runs the full order algorithm as one atomic unit per account:
// validate, lock, price, mutate cash + holdings, append the trade record.
// Failures before the ledger write leave state untouched; the record exists
// only for accepted orders.
func (e *Executor) ExecuteOrder(ctx context.Context, req OrderRequest) (ledger.TradeRecord, error) {
	side := strings.ToLower(strings.TrimSpace(req.Side))
	if side != ledger.SideBuy && side != ledger.SideSell {
		return ledger.TradeRecord{}, fmt.Errorf("%w: %q", ErrInvalidSide, req.Side)
	}
	if req.Quantity.Sign() <= 0 {
		return ledger.TradeRecord{}, ErrInvalidQuantity
	}
	sym := symbolpkg.Normalize(req.Symbol)
	if sym == "" || !e.tradable(sym) {
		return ledger.TradeRecord{}, fmt.Errorf("%w: %q", ErrUnknownSymbol, req.Symbol)
	}

	release, err := e.locks.acquire(ctx, req.AccountID, e.lockTimeout())
	if err != nil {
		return ledger.TradeRecord{}, err
	}
	defer release()

	price, err := e.resolvePrice(sym)
	if err != nil {
		return ledger.TradeRecord{}, err
	}

	acct, err := e.store.Account(ctx, req.AccountID)
	if err != nil {
		return ledger.TradeRecord{}, err
	}
	holding, hasHolding, err := e.store.Holding(ctx, req.AccountID, sym)
	if err != nil {
		return ledger.TradeRecord{}, err
	}

	// quantity × price, truncated to minor units (round down, as the cash
	// ledger is integer cents).
	totalValue := req.Quantity.Mul(price).Shift(2).IntPart()
	if totalValue <= 0 {
		return ledger.TradeRecord{}, fmt.Errorf("%w: order value rounds to zero", ErrInvalidQuantity)
	}

	var app ledger.TradeApplication
	switch side {
	case ledger.SideBuy:
		app, err = buildBuy(acct, sym, holding, hasHolding, req.Quantity, price, totalValue)
	case ledger.SideSell:
		app, err = buildSell(acct, sym, holding, hasHolding, req.Quantity, totalValue)
	}
	if err != nil {
		return ledger.TradeRecord{}, err
	}

	app.Record = ledger.TradeRecord{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Symbol:       sym,
		Side:         side,
		Quantity:     req.Quantity,
		Price:        price,
		TotalValue:   totalValue,
		BalanceAfter: app.NewCashBalance,
		Status:       ledger.TradeStatusFilled,
		ExecutedAtMs: e.nowFn().UnixMilli(),
	}
	if err := e.store.ApplyTrade(ctx, app); err != nil {
		return ledger.TradeRecord{}, err
	}
	logger.Infof("order filled account=%s %s %s %s @ %s value=%d balance=%d",
		req.AccountID, side, req.Quantity, sym, price, totalValue, app.NewCashBalance)
	return app.Record, nil
}

func buildBuy(acct ledger.Account, sym string, holding ledger.Holding, hasHolding bool, qty, price decimal.Decimal, totalValue int64) (ledger.TradeApplication, error) {
	if totalValue > acct.CashBalance {
		return ledger.TradeApplication{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, totalValue, acct.CashBalance)
	}
	next := ledger.Holding{
		AccountID:     acct.ID,
		Symbol:        sym,
		Quantity:      qty,
		AvgEntryPrice: price,
		TotalInvested: totalValue,
	}
	if hasHolding {
		newQty := holding.Quantity.Add(qty)
		// quantity-weighted average entry price
		oldCost := holding.Quantity.Mul(holding.AvgEntryPrice)
		newCost := qty.Mul(price)
		next.Quantity = newQty
		next.AvgEntryPrice = oldCost.Add(newCost).Div(newQty)
		next.TotalInvested = holding.TotalInvested + totalValue
	}
	return ledger.TradeApplication{
		AccountID:      acct.ID,
		NewCashBalance: acct.CashBalance - totalValue,
		UpsertHolding:  &next,
	}, nil
}

func buildSell(acct ledger.Account, sym string, holding ledger.Holding, hasHolding bool, qty decimal.Decimal, totalValue int64) (ledger.TradeApplication, error) {
	if !hasHolding || qty.GreaterThan(holding.Quantity) {
		held := decimal.Zero
		if hasHolding {
			held = holding.Quantity
		}
		return ledger.TradeApplication{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientHoldings, qty, held)
	}
	app := ledger.TradeApplication{
		AccountID:      acct.ID,
		NewCashBalance: acct.CashBalance + totalValue,
	}
	newQty := holding.Quantity.Sub(qty)
	if newQty.IsZero() {
		app.RemoveSymbol = sym
		return app, nil
	}
	// Average entry price is unchanged by a sell; cost basis leaves the
	// holding proportionally.
	removedCost := qty.Mul(holding.AvgEntryPrice).Shift(2).IntPart()
	remaining := holding.TotalInvested - removedCost
	if remaining < 0 {
		remaining = 0
	}
	next := holding
	next.Quantity = newQty
	next.TotalInvested = remaining
	app.UpsertHolding = &next
	return app, nil
}

func (e *Executor) resolvePrice(sym string) (decimal.Decimal, error) {
	entry, exists, fresh := e.cache.LatestFresh(sym, e.stalenessThreshold())
	if !exists {
		return decimal.Decimal{}, fmt.Errorf("%w: %s has no cached tick", ErrPriceUnavailable, sym)
	}
	if !fresh {
		return decimal.Decimal{}, fmt.Errorf("%w: %s tick from %s is stale", ErrPriceUnavailable, sym, entry.Tick.Exchange)
	}
	return entry.Tick.Price, nil
}

func (e *Executor) tradable(sym string) bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	_, ok := e.pairs[sym]
	return ok
}

func (e *Executor) stalenessThreshold() time.Duration {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.staleness
}

func (e *Executor) lockTimeout() time.Duration {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.lockWait
}
