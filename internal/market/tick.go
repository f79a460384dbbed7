package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one price observation from an exchange feed. Price and Volume are
// decimal so repeated arithmetic downstream never accumulates binary rounding
// drift.
type Tick struct {
	Exchange string
	Symbol   string
	Price    decimal.Decimal
	Volume   decimal.Decimal
	At       time.Time
}

// Session is one established streaming connection. Ticks closes when the
// session ends; Err reports why (nil on a deliberate Close).
type Session interface {
	Ticks() <-chan Tick
	Err() error
	Close() error
}

// Source opens streaming sessions against one exchange. A Source performs a
// single connection attempt per Connect call; reconnection policy lives in the
// feed connector, not here.
type Source interface {
	Name() string
	Connect(ctx context.Context, symbols []string) (Session, error)
}
