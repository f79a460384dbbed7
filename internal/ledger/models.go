package ledger

import (
	"github.com/shopspring/decimal"
)

// Account is one user's cash ledger. Balances are fixed-point integers in
// minor units (cents) and only the trade executor mutates them, inside a
// per-account critical section.
type Account struct {
	ID              string `gorm:"column:id;primaryKey" json:"id"`
	CashBalance     int64  `gorm:"column:cash_balance" json:"cash_balance"`
	StartingBalance int64  `gorm:"column:starting_balance" json:"starting_balance"`
	CreatedAtUnix   int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAtUnix   int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Holding is one account's position in one symbol. Quantity and entry price
// are stored as decimal strings; TotalInvested is in minor units.
type Holding struct {
	AccountID     string          `gorm:"column:account_id;primaryKey" json:"account_id"`
	Symbol        string          `gorm:"column:symbol;primaryKey" json:"symbol"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:TEXT" json:"quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"column:avg_entry_price;type:TEXT" json:"avg_entry_price"`
	TotalInvested int64           `gorm:"column:total_invested" json:"total_invested"`
	UpdatedAtUnix int64           `gorm:"column:updated_at" json:"updated_at"`
}

func (Holding) TableName() string { return "holdings" }

const (
	SideBuy  = "buy"
	SideSell = "sell"

	TradeStatusFilled = "filled"
)

// TradeRecord is the append-only audit row written exactly once per accepted
// order. Never updated or deleted.
type TradeRecord struct {
	ID             string          `gorm:"column:id;primaryKey" json:"id"`
	AccountID      string          `gorm:"column:account_id;index" json:"account_id"`
	Symbol         string          `gorm:"column:symbol" json:"symbol"`
	Side           string          `gorm:"column:side" json:"side"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:TEXT" json:"quantity"`
	Price          decimal.Decimal `gorm:"column:price;type:TEXT" json:"price"`
	TotalValue     int64           `gorm:"column:total_value" json:"total_value"`
	BalanceAfter   int64           `gorm:"column:balance_after" json:"balance_after"`
	Status         string          `gorm:"column:status" json:"status"`
	ExecutedAtMs   int64           `gorm:"column:executed_at_ms;index" json:"executed_at_ms"`
}

func (TradeRecord) TableName() string { return "trade_records" }
