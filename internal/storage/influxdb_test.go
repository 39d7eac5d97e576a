package storage

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestSignalPoint(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := signalPoint(testutil.LongSignal("s1", "binance", "BTCUSDT", created))

	assert.Equal(t, "signals", p.Name())
	assert.True(t, p.Time().Equal(created))
	assert.Equal(t, map[string]string{"exchange": "binance", "symbol": "BTCUSDT", "timeframe": "1h"}, tags(p))

	f := fields(p)
	assert.Equal(t, "s1", f["id"])
	assert.Equal(t, "LONG", f["direction"])
	assert.Equal(t, 100.0, f["entry_price"])
	assert.Equal(t, "106,109", f["take_profits"])
	assert.InDelta(t, 2.0, f["risk_reward"], 1e-9)
}

func TestCandlePoints(t *testing.T) {
	end := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	md := testutil.MarketData("ETHUSDT", "1h", testutil.FlatCandles(3, 50, "1h", end), end)

	points := candlePoints(md)
	require.Len(t, points, 3)
	assert.Equal(t, "candles", points[0].Name())
	assert.Equal(t, "1h", tags(points[0])["interval"])
	assert.True(t, points[2].Time().Equal(end))
	assert.Equal(t, 50.0, fields(points[1])["close"])
}
