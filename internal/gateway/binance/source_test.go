package binance

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertAggTrade(t *testing.T) {
	tick, ok := convertAggTrade(&futures.WsAggTradeEvent{
		Symbol:    "btcusdt",
		Price:     "16578.50",
		Quantity:  "0.25",
		TradeTime: 1672304486865,
	})
	require.True(t, ok)
	assert.Equal(t, "binance", tick.Exchange)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.True(t, tick.Price.Equal(decimal.RequireFromString("16578.50")))
	assert.True(t, tick.Volume.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, int64(1672304486865), tick.At.UnixMilli())
}

func TestConvertAggTradeFallsBackToEventTime(t *testing.T) {
	tick, ok := convertAggTrade(&futures.WsAggTradeEvent{
		Symbol: "ETHUSDT",
		Price:  "1200",
		Time:   1672304486000,
	})
	require.True(t, ok)
	assert.Equal(t, int64(1672304486000), tick.At.UnixMilli())
	assert.True(t, tick.Volume.IsZero())
}

func TestConvertAggTradeRejectsMalformedEvents(t *testing.T) {
	cases := map[string]*futures.WsAggTradeEvent{
		"nil event":       nil,
		"empty symbol":    {Price: "100", TradeTime: 1},
		"bad price":       {Symbol: "BTCUSDT", Price: "oops", TradeTime: 1},
		"zero price":      {Symbol: "BTCUSDT", Price: "0", TradeTime: 1},
		"negative price":  {Symbol: "BTCUSDT", Price: "-3", TradeTime: 1},
		"missing instant": {Symbol: "BTCUSDT", Price: "100"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := convertAggTrade(ev)
			assert.False(t, ok)
		})
	}
}
