package valuator

import (
	"context"
	"errors"
	"sort"
	"time"

	"tradeforge/internal/ledger"
	"tradeforge/internal/market"

	"github.com/shopspring/decimal"
)

// HoldingView is one holding priced at the latest usable tick. When no fresh
// tick exists the last known average entry price stands in and PriceStale is
// set, so one dead feed never fails the whole valuation.
type HoldingView struct {
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvgEntryPrice     decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	Exchange          string          `json:"exchange,omitempty"`
	TotalInvested     int64           `json:"total_invested"`
	CurrentValue      int64           `json:"current_value"`
	UnrealizedPnL     int64           `json:"unrealized_pnl"`
	PnLPercent        decimal.Decimal `json:"pnl_percent"`
	AllocationPercent decimal.Decimal `json:"allocation_percent"`
	PriceStale        bool            `json:"price_stale"`
}

// PortfolioSnapshot is the read-only valuation result. All money fields are
// minor units; percents are decimals rounded to two places.
type PortfolioSnapshot struct {
	AccountID       string          `json:"account_id"`
	CashBalance     int64           `json:"cash_balance"`
	HoldingsValue   int64           `json:"holdings_value"`
	TotalValue      int64           `json:"total_value"`
	TotalInvested   int64           `json:"total_invested"`
	UnrealizedPnL   int64           `json:"unrealized_pnl"`
	PnLPercent      decimal.Decimal `json:"pnl_percent"`
	StartingBalance int64           `json:"starting_balance"`
	TotalPnL        int64           `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
	Holdings        []HoldingView   `json:"holdings"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Valuator prices stored holdings against the tick cache. It takes no locks
// against the executor; it reads a point-in-time view of the ledger and is a
// pure function of that view plus the cache.
type Valuator struct {
	store     *ledger.Store
	cache     *market.PriceCache
	staleness time.Duration
	nowFn     func() time.Time
}

func New(store *ledger.Store, cache *market.PriceCache, staleness time.Duration) *Valuator {
	if staleness <= 0 {
		staleness = 60 * time.Second
	}
	return &Valuator{store: store, cache: cache, staleness: staleness, nowFn: time.Now}
}

// Snapshot values one account. An unknown account yields a zeroed snapshot
// rather than an error.
func (v *Valuator) Snapshot(ctx context.Context, accountID string) (PortfolioSnapshot, error) {
	snap := PortfolioSnapshot{
		AccountID:       accountID,
		PnLPercent:      decimal.Zero,
		TotalPnLPercent: decimal.Zero,
		Holdings:        []HoldingView{},
		UpdatedAt:       v.nowFn(),
	}

	acct, err := v.store.Account(ctx, accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return snap, nil
	}
	if err != nil {
		return PortfolioSnapshot{}, err
	}
	snap.CashBalance = acct.CashBalance
	snap.StartingBalance = acct.StartingBalance

	holdings, err := v.store.Holdings(ctx, accountID)
	if err != nil {
		return PortfolioSnapshot{}, err
	}

	for _, h := range holdings {
		if h.Quantity.Sign() <= 0 {
			continue
		}
		view := v.valueHolding(h)
		snap.HoldingsValue += view.CurrentValue
		snap.TotalInvested += view.TotalInvested
		snap.Holdings = append(snap.Holdings, view)
	}

	for i := range snap.Holdings {
		snap.Holdings[i].AllocationPercent = percentOf(snap.Holdings[i].CurrentValue, snap.HoldingsValue)
	}
	sort.Slice(snap.Holdings, func(i, j int) bool {
		return snap.Holdings[i].CurrentValue > snap.Holdings[j].CurrentValue
	})

	snap.TotalValue = snap.CashBalance + snap.HoldingsValue
	snap.UnrealizedPnL = snap.HoldingsValue - snap.TotalInvested
	snap.PnLPercent = percentOf(snap.UnrealizedPnL, snap.TotalInvested)
	snap.TotalPnL = snap.TotalValue - snap.StartingBalance
	snap.TotalPnLPercent = percentOf(snap.TotalPnL, snap.StartingBalance)
	return snap, nil
}

func (v *Valuator) valueHolding(h ledger.Holding) HoldingView {
	view := HoldingView{
		Symbol:        h.Symbol,
		Quantity:      h.Quantity,
		AvgEntryPrice: h.AvgEntryPrice,
		TotalInvested: h.TotalInvested,
	}
	entry, exists, fresh := v.cache.LatestFresh(h.Symbol, v.staleness)
	if exists && fresh {
		view.CurrentPrice = entry.Tick.Price
		view.Exchange = entry.Tick.Exchange
	} else {
		view.CurrentPrice = h.AvgEntryPrice
		view.PriceStale = true
	}
	view.CurrentValue = h.Quantity.Mul(view.CurrentPrice).Shift(2).IntPart()
	view.UnrealizedPnL = view.CurrentValue - h.TotalInvested
	view.PnLPercent = percentOf(view.UnrealizedPnL, h.TotalInvested)
	return view
}

// percentOf returns part/whole×100 rounded to two places, and zero when the
// denominator is zero.
func percentOf(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Div(decimal.NewFromInt(whole)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
