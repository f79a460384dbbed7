package bybit

import (
	"strings"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/market"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// parseTradeMessage validates a raw Bybit v5 message and extracts ticks from
// publicTrade topics. Entries missing required fields (symbol, positive price,
// timestamp) are dropped and logged; extra fields are ignored. Non-trade
// messages (subscription acks, pong) yield nothing.
func parseTradeMessage(raw []byte) []market.Tick {
	if !gjson.ValidBytes(raw) {
		logger.Debugf("[bybit] dropped invalid json payload (%d bytes)", len(raw))
		return nil
	}
	parsed := gjson.ParseBytes(raw)
	topic := parsed.Get("topic").String()
	if !strings.HasPrefix(topic, "publicTrade.") {
		return nil
	}

	entries := parsed.Get("data").Array()
	out := make([]market.Tick, 0, len(entries))
	for _, entry := range entries {
		t, ok := convertTradeEntry(entry)
		if !ok {
			logger.Debugf("[bybit] dropped malformed trade entry: %s", entry.Raw)
			continue
		}
		out = append(out, t)
	}
	return out
}

func convertTradeEntry(entry gjson.Result) (market.Tick, bool) {
	sym := strings.ToUpper(strings.TrimSpace(entry.Get("s").String()))
	if sym == "" {
		return market.Tick{}, false
	}
	priceRaw := strings.TrimSpace(entry.Get("p").String())
	if priceRaw == "" {
		return market.Tick{}, false
	}
	price, err := decimal.NewFromString(priceRaw)
	if err != nil || price.Sign() <= 0 {
		return market.Tick{}, false
	}
	ts := entry.Get("T").Int()
	if ts <= 0 {
		return market.Tick{}, false
	}
	volume := decimal.Zero
	if volRaw := strings.TrimSpace(entry.Get("v").String()); volRaw != "" {
		if v, err := decimal.NewFromString(volRaw); err == nil && v.Sign() >= 0 {
			volume = v
		}
	}
	return market.Tick{
		Exchange: "bybit",
		Symbol:   sym,
		Price:    price,
		Volume:   volume,
		At:       time.UnixMilli(ts),
	}, true
}
