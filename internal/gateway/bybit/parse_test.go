package bybit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeMessage(t *testing.T) {
	raw := []byte(`{
		"topic": "publicTrade.BTCUSDT",
		"type": "snapshot",
		"ts": 1672304486868,
		"data": [
			{"T": 1672304486865, "s": "BTCUSDT", "S": "Buy", "v": "0.001", "p": "16578.50", "i": "20f43950-d8dd-5b31-9112-a178eb6023af"},
			{"T": 1672304486867, "s": "BTCUSDT", "S": "Sell", "v": "0.02", "p": "16578.00", "i": "3c8b5d02-f7ae-5a3b-b252-a74b0b0b57e2"}
		]
	}`)

	ticks := parseTradeMessage(raw)
	require.Len(t, ticks, 2)
	assert.Equal(t, "bybit", ticks[0].Exchange)
	assert.Equal(t, "BTCUSDT", ticks[0].Symbol)
	assert.True(t, ticks[0].Price.Equal(decimal.RequireFromString("16578.50")))
	assert.True(t, ticks[0].Volume.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, int64(1672304486865), ticks[0].At.UnixMilli())
	assert.True(t, ticks[1].Price.Equal(decimal.RequireFromString("16578.00")))
}

func TestParseTradeMessageDropsMalformedEntries(t *testing.T) {
	raw := []byte(`{
		"topic": "publicTrade.BTCUSDT",
		"data": [
			{"T": 1672304486865, "s": "", "p": "100"},
			{"T": 1672304486865, "s": "BTCUSDT", "p": "not-a-number"},
			{"T": 1672304486865, "s": "BTCUSDT", "p": "-5"},
			{"T": 0, "s": "BTCUSDT", "p": "100"},
			{"T": 1672304486865, "s": "BTCUSDT", "p": "100"}
		]
	}`)

	ticks := parseTradeMessage(raw)
	require.Len(t, ticks, 1, "only the well-formed entry survives")
	assert.True(t, ticks[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, ticks[0].Volume.IsZero(), "missing volume defaults to zero")
}

func TestParseTradeMessageIgnoresNonTradeTraffic(t *testing.T) {
	assert.Empty(t, parseTradeMessage([]byte(`{"op":"pong"}`)))
	assert.Empty(t, parseTradeMessage([]byte(`{"success":true,"op":"subscribe","conn_id":"abc"}`)))
	assert.Empty(t, parseTradeMessage([]byte(`{"topic":"orderbook.50.BTCUSDT","data":{}}`)))
	assert.Empty(t, parseTradeMessage([]byte(`not json at all`)))
	assert.Empty(t, parseTradeMessage(nil))
}
