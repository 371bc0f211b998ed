// Package chart раскладывает свечи и Ichimoku в пиксельные координаты и
// описывает отрисовку набором команд. Растровый бэкенд отделен (Surface).
package chart

import (
	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Color цвет в формате #rrggbb
type Color string

// Фиксированная палитра
const (
	ColorBullish     Color = "#26a69a"
	ColorBearish     Color = "#ef5350"
	ColorGrid        Color = "#2a2e39"
	ColorAxisText    Color = "#787b86"
	ColorTenkan      Color = "#2962ff"
	ColorKijun       Color = "#b71c1c"
	ColorChikou      Color = "#7e57c2"
	ColorSpanA       Color = "#43a047"
	ColorSpanB       Color = "#e53935"
	ColorCloudBull   Color = "#1b5e20"
	ColorCloudBear   Color = "#5d1a1a"
	ColorFutureBull  Color = "#2e7d32"
	ColorFutureBear  Color = "#8e2424"
	ColorEntry       Color = "#f5f5f5"
	ColorStopLoss    Color = "#ff1744"
	ColorTakeProfit  Color = "#00e676"
	ColorLivePrice   Color = "#ffb300"
	ColorMarkerLabel Color = "#d1d4dc"
)

// MarkerKind тип горизонтальной отметки позиции
type MarkerKind string

const (
	MarkerEntry      MarkerKind = "entry"
	MarkerStopLoss   MarkerKind = "sl"
	MarkerTakeProfit MarkerKind = "tp"
)

// Marker отметка позиции на графике
type Marker struct {
	Kind  MarkerKind
	Price float64
	Label string
}

// Scene все, что нужно для одного полного перерисовывания
type Scene struct {
	Candles        []*models.Candle
	Indicators     *ichimoku.Result
	ShowIndicators bool
	Markers        []Marker
	LivePrice      float64
	HasLivePrice   bool
	GridLines      int

	// lead точки индикатора перед окном: их спаны отображаются над первыми свечами
	lead []ichimoku.Point
}

// indicatorsVisible включены и рассчитаны ли индикаторы
func (s *Scene) indicatorsVisible() bool {
	return s.ShowIndicators && !s.Indicators.Empty() && len(s.Indicators.Points) == len(s.Candles)
}

// displacement сдвиг облака, 0 без индикаторов
func (s *Scene) displacement() int {
	if !s.indicatorsVisible() {
		return 0
	}
	return s.Indicators.Config.Displacement
}

// Window оставляет последние count свечей вместе с выровненными точками индикатора.
// До displacement точек перед окном сохраняются для облака над левым краем.
func (s Scene) Window(count int) Scene {
	n := len(s.Candles)
	if count <= 0 || count >= n {
		return s
	}
	from := n - count
	out := s
	out.Candles = s.Candles[from:]
	out.lead = nil
	if s.Indicators != nil && len(s.Indicators.Points) == n {
		out.Indicators = &ichimoku.Result{
			Config: s.Indicators.Config,
			Points: s.Indicators.Points[from:],
			Future: s.Indicators.Future,
		}
		start := max(from-s.Indicators.Config.Displacement, 0)
		out.lead = s.Indicators.Points[start:from]
	}
	return out
}

// spanSource точка, чьи спаны отображаются над видимой свечой j
func (s *Scene) spanSource(j int) (ichimoku.Point, bool) {
	k := j - s.Indicators.Config.Displacement
	if k >= 0 {
		return s.Indicators.Points[k], true
	}
	if i := len(s.lead) + k; i >= 0 {
		return s.lead[i], true
	}
	return ichimoku.Point{}, false
}
