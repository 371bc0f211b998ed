package signal

import (
	"math"
	"testing"

	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var votes = []Vote{Bearish, Flat, Bullish}

// allConditions перебирает все 3^5 комбинаций голосов
func allConditions() []Conditions {
	var out []Conditions
	for _, a := range votes {
		for _, b := range votes {
			for _, c := range votes {
				for _, d := range votes {
					for _, e := range votes {
						out = append(out, Conditions{a, b, c, d, e})
					}
				}
			}
		}
	}
	return out
}

// buyward уверенность в сторону покупки со знаком
func buyward(s models.Signal) float64 {
	switch s.Type {
	case models.Sell, models.StrongSell:
		return -s.Confidence
	case models.Neutral:
		return 0
	}
	return s.Confidence
}

func TestEvaluateBounded(t *testing.T) {
	for _, c := range allConditions() {
		s := Evaluate(c)
		assert.GreaterOrEqual(t, s.Confidence, 0.0, "%+v", c)
		assert.LessOrEqual(t, s.Confidence, 100.0, "%+v", c)
	}
}

func TestEvaluateSymmetric(t *testing.T) {
	mirrored := map[models.SignalType]models.SignalType{
		models.StrongBuy:  models.StrongSell,
		models.Buy:        models.Sell,
		models.Neutral:    models.Neutral,
		models.Sell:       models.Buy,
		models.StrongSell: models.StrongBuy,
	}
	for _, c := range allConditions() {
		s := Evaluate(c)
		m := Evaluate(c.Mirror())
		assert.Equal(t, mirrored[s.Type], m.Type, "%+v", c)
		assert.Equal(t, s.Confidence, m.Confidence, "%+v", c)
	}
}

func TestEvaluateMonotonic(t *testing.T) {
	// Перевод любого голоса в сторону покупки не уменьшает score
	for _, c := range allConditions() {
		base := c.Score()
		baseBuyward := buyward(Evaluate(c))
		fields := []*Vote{&c.PriceVsCloud, &c.TenkanKijun, &c.CloudColor, &c.ChikouVsPast, &c.PriceVsKijun}
		for _, f := range fields {
			if *f == Bullish {
				continue
			}
			orig := *f
			*f++
			assert.Greater(t, c.Score(), base)
			assert.GreaterOrEqual(t, buyward(Evaluate(c)), baseBuyward)
			*f = orig
		}
	}
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name string
		c    Conditions
		want models.SignalType
		conf float64
	}{
		{"all bullish", Conditions{1, 1, 1, 1, 1}, models.StrongBuy, 100},
		{"all bearish", Conditions{-1, -1, -1, -1, -1}, models.StrongSell, 100},
		{"nothing", Conditions{}, models.Neutral, 0},
		{"cloud + tk + color", Conditions{1, 1, 1, 0, 0}, models.StrongBuy, 75},
		{"cloud + tk", Conditions{1, 1, 0, 0, 0}, models.Buy, 55},
		{"cloud only", Conditions{1, 0, 0, 0, 0}, models.Neutral, 30},
		{"bearish cloud + tk", Conditions{-1, -1, 0, 0, 0}, models.Sell, 55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(tt.c)
			assert.Equal(t, tt.want, s.Type)
			assert.Equal(t, tt.conf, s.Confidence)
		})
	}
}

func FuzzEvaluate(f *testing.F) {
	f.Add(1, 1, 1, 1, 1)
	f.Add(-1, 0, 1, -1, 0)
	f.Fuzz(func(t *testing.T, a, b, c, d, e int) {
		clamp := func(v int) Vote {
			switch {
			case v > 0:
				return Bullish
			case v < 0:
				return Bearish
			}
			return Flat
		}
		s := Evaluate(Conditions{clamp(a), clamp(b), clamp(c), clamp(d), clamp(e)})
		if s.Confidence < 0 || s.Confidence > 100 {
			t.Fatalf("confidence out of range: %v", s.Confidence)
		}
	})
}

func trend(n int, step float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		open := 1000 + float64(i)*step
		closePrice := open + step/2
		candles[i] = &models.Candle{
			Open:  open,
			High:  math.Max(open, closePrice) + 1,
			Low:   math.Min(open, closePrice) - 1,
			Close: closePrice,
		}
	}
	return candles
}

func TestAnalyzeTrends(t *testing.T) {
	engine := ichimoku.NewEngine(ichimoku.DefaultConfig())
	a := NewAnalyzer()

	up := trend(120, 5)
	s := a.Analyze(up, engine.Calculate(up))
	assert.Equal(t, models.StrongBuy, s.Type)
	assert.Equal(t, 100.0, s.Confidence)

	down := trend(120, -5)
	s = a.Analyze(down, engine.Calculate(down))
	assert.Equal(t, models.StrongSell, s.Type)
	assert.Equal(t, 100.0, s.Confidence)
}

func TestAnalyzeFlatIsNeutral(t *testing.T) {
	candles := make([]*models.Candle, 90)
	for i := range candles {
		candles[i] = &models.Candle{Open: 10, High: 10, Low: 10, Close: 10}
	}
	res := ichimoku.NewEngine(ichimoku.DefaultConfig()).Calculate(candles)

	c, ok := NewAnalyzer().Conditions(candles, res)
	require.True(t, ok)
	assert.Equal(t, Conditions{}, c)
	assert.Equal(t, models.Signal{Type: models.Neutral, Confidence: 0}, Evaluate(c))
}

func TestAnalyzeEmptyIndicator(t *testing.T) {
	candles := trend(10, 1)
	res := ichimoku.NewEngine(ichimoku.DefaultConfig()).Calculate(candles)

	s := NewAnalyzer().Analyze(candles, res)
	assert.Equal(t, models.Neutral, s.Type)
	assert.Zero(t, s.Confidence)

	s = NewAnalyzer().Analyze(nil, nil)
	assert.Equal(t, models.Neutral, s.Type)
}
