// Package signal сводит показания Ichimoku в торговый сигнал с уверенностью 0..100.
package signal

import (
	"math"

	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Vote направление одного условия: +1 бычье, -1 медвежье, 0 нейтрально
type Vote int

const (
	Bearish Vote = -1
	Flat    Vote = 0
	Bullish Vote = 1
)

// Conditions голоса условий в порядке оценки
type Conditions struct {
	PriceVsCloud Vote `json:"priceVsCloud"` // цена над / под облаком
	TenkanKijun  Vote `json:"tenkanKijun"`  // пересечение tenkan/kijun
	CloudColor   Vote `json:"cloudColor"`   // цвет облака впереди
	ChikouVsPast Vote `json:"chikouVsPast"` // chikou относительно цены displacement назад
	PriceVsKijun Vote `json:"priceVsKijun"` // цена относительно kijun
}

// Веса условий, сумма 100
const (
	weightPriceVsCloud = 30
	weightTenkanKijun  = 25
	weightCloudColor   = 20
	weightChikou       = 15
	weightPriceVsKijun = 10
)

// Пороги типов сигнала
const (
	StrongThreshold = 75
	Threshold       = 50
)

// Score взвешенная сумма голосов в диапазоне -100..100
func (c Conditions) Score() float64 {
	score := float64(c.PriceVsCloud)*weightPriceVsCloud +
		float64(c.TenkanKijun)*weightTenkanKijun +
		float64(c.CloudColor)*weightCloudColor +
		float64(c.ChikouVsPast)*weightChikou +
		float64(c.PriceVsKijun)*weightPriceVsKijun
	return math.Max(math.Min(score, 100), -100)
}

// Mirror зеркальные условия
func (c Conditions) Mirror() Conditions {
	return Conditions{
		PriceVsCloud: -c.PriceVsCloud,
		TenkanKijun:  -c.TenkanKijun,
		CloudColor:   -c.CloudColor,
		ChikouVsPast: -c.ChikouVsPast,
		PriceVsKijun: -c.PriceVsKijun,
	}
}

// Evaluate переводит условия в сигнал
func Evaluate(c Conditions) models.Signal {
	score := c.Score()
	confidence := math.Abs(score)

	var t models.SignalType
	switch {
	case score >= StrongThreshold:
		t = models.StrongBuy
	case score >= Threshold:
		t = models.Buy
	case score <= -StrongThreshold:
		t = models.StrongSell
	case score <= -Threshold:
		t = models.Sell
	default:
		t = models.Neutral
	}

	return models.Signal{Type: t, Confidence: confidence}
}

// Analyzer строит условия по свечам и результату Ichimoku
type Analyzer struct{}

// NewAnalyzer создает анализатор сигналов
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze оценивает последнюю свечу. Пустой индикатор дает нейтральный сигнал с нулевой уверенностью.
func (a *Analyzer) Analyze(candles []*models.Candle, res *ichimoku.Result) models.Signal {
	c, ok := a.Conditions(candles, res)
	if !ok {
		return models.Signal{Type: models.Neutral}
	}
	return Evaluate(c)
}

// Conditions вычисляет голоса условий для последней свечи
func (a *Analyzer) Conditions(candles []*models.Candle, res *ichimoku.Result) (Conditions, bool) {
	if res.Empty() || len(candles) != len(res.Points) {
		return Conditions{}, false
	}

	last := len(candles) - 1
	price := candles[last].Close
	p := res.Points[last]
	var c Conditions

	// Облако над текущей свечой, при недостатке истории - текущие спаны
	top, bottom, _, ok := res.CloudAt(last)
	if !ok && p.CloudTop != nil {
		top, bottom, ok = *p.CloudTop, *p.CloudBottom, true
	}
	if ok {
		switch {
		case price > top:
			c.PriceVsCloud = Bullish
		case price < bottom:
			c.PriceVsCloud = Bearish
		}
	}

	if p.TenkanSen != nil && p.KijunSen != nil {
		c.TenkanKijun = compare(*p.TenkanSen, *p.KijunSen)
	}

	// Облако впереди: цвет последней точки проекции. Равенство спанов не голосует.
	if fp := lastFuture(res); fp != nil {
		c.CloudColor = compare(*fp.SenkouSpanA, *fp.SenkouSpanB)
	} else if p.SenkouSpanA != nil && p.SenkouSpanB != nil {
		c.CloudColor = compare(*p.SenkouSpanA, *p.SenkouSpanB)
	}

	if past := last - res.Config.Displacement; past >= 0 {
		c.ChikouVsPast = compare(price, candles[past].Close)
	}

	if p.KijunSen != nil {
		c.PriceVsKijun = compare(price, *p.KijunSen)
	}

	return c, true
}

func lastFuture(res *ichimoku.Result) *ichimoku.FutureCloudPoint {
	if len(res.Future) == 0 {
		return nil
	}
	fp := &res.Future[len(res.Future)-1]
	if fp.SenkouSpanA == nil || fp.SenkouSpanB == nil {
		return nil
	}
	return fp
}

func compare(a, b float64) Vote {
	switch {
	case a > b:
		return Bullish
	case a < b:
		return Bearish
	default:
		return Flat
	}
}
