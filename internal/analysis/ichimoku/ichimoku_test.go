package ichimoku

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func risingCandles(n int) []*models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i)
		candles[i] = &models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     p,
			High:     p + 2,
			Low:      p - 1,
			Close:    p + 1,
			Volume:   10,
		}
	}
	return candles
}

func flatCandles(n int, price float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := range candles {
		candles[i] = &models.Candle{Open: price, High: price, Low: price, Close: price}
	}
	return candles
}

func TestCalculateShortHistoryIsEmpty(t *testing.T) {
	e := NewEngine(DefaultConfig())

	res := e.Calculate(risingCandles(51))
	require.NotNil(t, res)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Future)

	assert.True(t, e.Calculate(nil).Empty())
}

func TestCalculateAlignedAndNilBeforeWindow(t *testing.T) {
	e := NewEngine(DefaultConfig())
	candles := risingCandles(120)

	res := e.Calculate(candles)
	require.Len(t, res.Points, len(candles))
	require.Len(t, res.Future, 26)

	for i, p := range res.Points {
		if i < 8 {
			assert.Nil(t, p.TenkanSen, "tenkan at %d", i)
		} else {
			require.NotNil(t, p.TenkanSen)
			assert.False(t, math.IsNaN(*p.TenkanSen))
		}
		if i < 25 {
			assert.Nil(t, p.KijunSen, "kijun at %d", i)
			assert.Nil(t, p.SenkouSpanA, "spanA at %d", i)
		} else {
			require.NotNil(t, p.KijunSen)
			require.NotNil(t, p.SenkouSpanA)
		}
		if i < 51 {
			assert.Nil(t, p.SenkouSpanB, "spanB at %d", i)
			assert.Nil(t, p.CloudTop)
			assert.Empty(t, p.CloudColor)
		} else {
			require.NotNil(t, p.SenkouSpanB)
			require.NotNil(t, p.CloudTop)
			require.NotNil(t, p.CloudBottom)
			assert.GreaterOrEqual(t, *p.CloudTop, *p.CloudBottom)
		}
		require.NotNil(t, p.ChikouSpan)
		assert.Equal(t, candles[i].Close, *p.ChikouSpan)
	}
}

func TestCalculateKnownValues(t *testing.T) {
	// high = 10+i, low = i
	candles := make([]*models.Candle, 6)
	for i := range candles {
		candles[i] = &models.Candle{High: 10 + float64(i), Low: float64(i), Open: 5, Close: 5}
	}
	e := NewEngine(Config{Conversion: 2, Base: 3, LeadingSpanB: 4, Displacement: 2})

	res := e.Calculate(candles)
	require.Len(t, res.Points, 6)

	last := res.Points[5]
	assert.Equal(t, 9.5, *last.TenkanSen)
	assert.Equal(t, 9.0, *last.KijunSen)
	assert.Equal(t, 9.25, *last.SenkouSpanA)
	assert.Equal(t, 8.5, *last.SenkouSpanB)
	assert.Equal(t, 9.25, *last.CloudTop)
	assert.Equal(t, 8.5, *last.CloudBottom)
	assert.Equal(t, Bullish, last.CloudColor)

	require.Len(t, res.Future, 2)
	assert.Equal(t, 1, res.Future[0].Offset)
	assert.Equal(t, 8.25, *res.Future[0].SenkouSpanA)
	assert.Equal(t, 7.5, *res.Future[0].SenkouSpanB)
	assert.Equal(t, 9.25, *res.Future[1].SenkouSpanA)
	assert.Equal(t, 8.5, *res.Future[1].SenkouSpanB)
}

func TestCalculateFlatSeriesIsBullishTie(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res := e.Calculate(flatCandles(80, 42))

	require.Len(t, res.Points, 80)
	for i, p := range res.Points {
		if p.SenkouSpanA == nil || p.SenkouSpanB == nil {
			continue
		}
		assert.Equal(t, *p.SenkouSpanA, *p.SenkouSpanB, "index %d", i)
		assert.Equal(t, Bullish, p.CloudColor, "index %d", i)
	}
	for _, fp := range res.Future {
		require.NotNil(t, fp.SenkouSpanA)
		assert.Equal(t, Bullish, fp.CloudColor)
	}
}

func TestCalculateBearishCloud(t *testing.T) {
	// Падающий рынок: короткие окна ниже длинных
	n := 80
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		p := 500 - float64(i)*3
		candles[i] = &models.Candle{Open: p, High: p + 1, Low: p - 1, Close: p - 0.5}
	}
	res := NewEngine(DefaultConfig()).Calculate(candles)
	assert.Equal(t, Bearish, res.Points[n-1].CloudColor)
}

func TestFutureCloudWithinBounds(t *testing.T) {
	// 60 свечей: первые будущие точки ссылаются на индексы без spanB
	res := NewEngine(DefaultConfig()).Calculate(risingCandles(60))
	require.Len(t, res.Future, 26)
	assert.Nil(t, res.Future[0].SenkouSpanB)
	assert.NotNil(t, res.Future[25].SenkouSpanB)
}

func TestCloudAt(t *testing.T) {
	res := NewEngine(DefaultConfig()).Calculate(risingCandles(100))

	_, _, _, ok := res.CloudAt(60)
	assert.False(t, ok, "source index 34 has no span B")

	top, bottom, color, ok := res.CloudAt(99)
	require.True(t, ok)
	assert.Equal(t, *res.Points[73].CloudTop, top)
	assert.Equal(t, *res.Points[73].CloudBottom, bottom)
	assert.Equal(t, res.Points[73].CloudColor, color)

	_, _, _, ok = res.CloudAt(500)
	assert.False(t, ok)
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(Config{})
	assert.Equal(t, DefaultConfig(), e.Config())
	assert.Equal(t, 52, e.Config().MinCandles())
}
