package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFluxQuery(t *testing.T) {
	q := fluxQuery("market", "candles", "-3600s", 50, "symbol", "BTC/USDT", "interval", "1h")

	lines := strings.Split(strings.TrimSpace(q), "\n")
	assert.Equal(t, `from(bucket: "market")`, lines[0])
	assert.Contains(t, q, "|> range(start: -3600s)")
	assert.Contains(t, q, `r._measurement == "candles"`)
	assert.Contains(t, q, `r.symbol == "BTC/USDT"`)
	assert.Contains(t, q, `r.interval == "1h"`)
	assert.Less(t, strings.Index(q, "r.symbol"), strings.Index(q, "r.interval"))
	assert.Equal(t, "\t|> limit(n: 50)", lines[len(lines)-1])
}

func TestFluxQueryIgnoresUnpairedTag(t *testing.T) {
	q := fluxQuery("market", "signals", "-30d", 10, "symbol")
	assert.NotContains(t, q, "r.symbol")
}

func TestFloatValue(t *testing.T) {
	assert.Equal(t, 1.5, floatValue(1.5))
	assert.Equal(t, 3.0, floatValue(int64(3)))
	assert.Equal(t, 4.0, floatValue(uint64(4)))
	assert.Zero(t, floatValue("x"))
	assert.Zero(t, floatValue(nil))
}
