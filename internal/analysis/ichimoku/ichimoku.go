// Package ichimoku рассчитывает облако Ichimoku по последовательности свечей.
package ichimoku

import (
	"github.com/markcheno/go-talib"
	"github.com/skalibog/cryptodash/pkg/models"
)

// CloudColor цвет облака
type CloudColor string

const (
	Bullish CloudColor = "bullish"
	Bearish CloudColor = "bearish"
)

// Config длины окон индикатора
type Config struct {
	Conversion   int
	Base         int
	LeadingSpanB int
	Displacement int
}

// DefaultConfig каноничные 9/26/52/26
func DefaultConfig() Config {
	return Config{Conversion: 9, Base: 26, LeadingSpanB: 52, Displacement: 26}
}

// MinCandles минимальная длина истории для расчета
func (c Config) MinCandles() int {
	return maxInt(c.Conversion, maxInt(c.Base, c.LeadingSpanB))
}

// Point значения индикатора для свечи с тем же индексом.
// nil означает, что истории еще недостаточно.
type Point struct {
	TenkanSen   *float64   `json:"tenkanSen"`
	KijunSen    *float64   `json:"kijunSen"`
	SenkouSpanA *float64   `json:"senkouSpanA"`
	SenkouSpanB *float64   `json:"senkouSpanB"`
	ChikouSpan  *float64   `json:"chikouSpan"`
	CloudTop    *float64   `json:"cloudTop"`
	CloudBottom *float64   `json:"cloudBottom"`
	CloudColor  CloudColor `json:"cloudColor,omitempty"`
}

// FutureCloudPoint проекция облака за последнюю свечу.
// Offset 1 соответствует индексу len(candles).
type FutureCloudPoint struct {
	Offset      int        `json:"offset"`
	SenkouSpanA *float64   `json:"senkouSpanA"`
	SenkouSpanB *float64   `json:"senkouSpanB"`
	CloudColor  CloudColor `json:"cloudColor,omitempty"`
}

// Result выход индикатора, Points выровнен 1:1 со свечами
type Result struct {
	Config Config             `json:"config"`
	Points []Point            `json:"points"`
	Future []FutureCloudPoint `json:"future"`
}

// Empty результат без данных
func (r *Result) Empty() bool {
	return r == nil || len(r.Points) == 0
}

// Engine калькулятор Ichimoku
type Engine struct {
	config Config
}

// NewEngine создает калькулятор, нулевые окна заменяются каноничными
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Conversion <= 0 {
		cfg.Conversion = def.Conversion
	}
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.LeadingSpanB <= 0 {
		cfg.LeadingSpanB = def.LeadingSpanB
	}
	if cfg.Displacement <= 0 {
		cfg.Displacement = def.Displacement
	}
	return &Engine{config: cfg}
}

// Config возвращает окна калькулятора
func (e *Engine) Config() Config {
	return e.config
}

// Calculate рассчитывает индикатор. Для истории короче MinCandles возвращает
// пустой результат, это не ошибка.
func (e *Engine) Calculate(candles []*models.Candle) *Result {
	cfg := e.config
	n := len(candles)
	if n < cfg.MinCandles() {
		return &Result{Config: cfg}
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	tenkan := midpoint(highs, lows, cfg.Conversion)
	kijun := midpoint(highs, lows, cfg.Base)
	spanB := midpoint(highs, lows, cfg.LeadingSpanB)

	points := make([]Point, n)
	spanA := make([]*float64, n)
	spanBAt := make([]*float64, n)

	for i := 0; i < n; i++ {
		p := &points[i]
		if i >= cfg.Conversion-1 {
			p.TenkanSen = ptr(tenkan[i])
		}
		if i >= cfg.Base-1 {
			p.KijunSen = ptr(kijun[i])
		}
		if p.TenkanSen != nil && p.KijunSen != nil {
			p.SenkouSpanA = ptr((*p.TenkanSen + *p.KijunSen) / 2)
		}
		if i >= cfg.LeadingSpanB-1 {
			p.SenkouSpanB = ptr(spanB[i])
		}
		p.ChikouSpan = ptr(candles[i].Close)

		if p.SenkouSpanA != nil && p.SenkouSpanB != nil {
			top, bottom, color := cloud(*p.SenkouSpanA, *p.SenkouSpanB)
			p.CloudTop = ptr(top)
			p.CloudBottom = ptr(bottom)
			p.CloudColor = color
		}

		spanA[i] = p.SenkouSpanA
		spanBAt[i] = p.SenkouSpanB
	}

	// Проекция: спаны последних displacement свечей, сдвинутые вперед.
	// Будущие high/low не используются.
	future := make([]FutureCloudPoint, 0, cfg.Displacement)
	for k := 1; k <= cfg.Displacement; k++ {
		src := n - 1 - cfg.Displacement + k
		fp := FutureCloudPoint{Offset: k}
		if src >= 0 && src < n {
			fp.SenkouSpanA = spanA[src]
			fp.SenkouSpanB = spanBAt[src]
			if fp.SenkouSpanA != nil && fp.SenkouSpanB != nil {
				_, _, fp.CloudColor = cloud(*fp.SenkouSpanA, *fp.SenkouSpanB)
			}
		}
		future = append(future, fp)
	}

	return &Result{Config: cfg, Points: points, Future: future}
}

// CloudAt облако, которое визуально находится над свечой index:
// спаны, рассчитанные displacement периодов назад.
func (r *Result) CloudAt(index int) (top, bottom float64, color CloudColor, ok bool) {
	src := index - r.Config.Displacement
	if src < 0 || src >= len(r.Points) {
		return 0, 0, "", false
	}
	p := r.Points[src]
	if p.CloudTop == nil || p.CloudBottom == nil {
		return 0, 0, "", false
	}
	return *p.CloudTop, *p.CloudBottom, p.CloudColor, true
}

// cloud границы и цвет облака, при равенстве спанов облако бычье
func cloud(a, b float64) (top, bottom float64, color CloudColor) {
	if a >= b {
		return a, b, Bullish
	}
	return b, a, Bearish
}

// midpoint скользящая середина (max high + min low) / 2, выровненная по индексам
func midpoint(highs, lows []float64, period int) []float64 {
	if period > 1 {
		return talib.MidPrice(highs, lows, period)
	}
	out := make([]float64, len(highs))
	for i := range highs {
		out[i] = (highs[i] + lows[i]) / 2
	}
	return out
}

func ptr(v float64) *float64 {
	return &v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
