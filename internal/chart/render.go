package chart

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
)

// Layer слой отрисовки, порядок констант = порядок рисования (от заднего к переднему)
type Layer int

const (
	LayerGrid Layer = iota
	LayerFutureCloud
	LayerCloud
	LayerLines
	LayerCandles
	LayerMarkers
	LayerPriceLine
)

func (l Layer) String() string {
	switch l {
	case LayerGrid:
		return "grid"
	case LayerFutureCloud:
		return "future-cloud"
	case LayerCloud:
		return "cloud"
	case LayerLines:
		return "lines"
	case LayerCandles:
		return "candles"
	case LayerMarkers:
		return "markers"
	case LayerPriceLine:
		return "price-line"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// Op примитив отрисовки
type Op int

const (
	OpLine Op = iota
	OpPolyline
	OpFillRect
	OpFillPolygon
	OpText
)

// Point точка в пикселях
type Point struct {
	X, Y float64
}

// Rect прямоугольник в пикселях
type Rect struct {
	X, Y, W, H float64
}

// Command одна операция отрисовки
type Command struct {
	Layer  Layer
	Op     Op
	Color  Color
	Points []Point // OpLine: 2 точки, OpPolyline/OpFillPolygon: n точек, OpText: 1 точка
	Rect   Rect
	Text   string
	Dashed bool
}

// Параметры отрисовки свечей
const (
	bodyWidthRatio   = 0.7
	minBodyHeight    = 1.0
	defaultGridLines = 5
)

// Render строит полный список команд для сцены. Всегда полная перерисовка.
func Render(scene *Scene, vp Viewport) []Command {
	l := NewLayout(scene, vp)
	r := &renderer{scene: scene, layout: l, vp: vp}

	r.grid()
	if scene.indicatorsVisible() {
		r.futureCloud()
		r.cloud()
		r.lines()
	}
	r.candles()
	r.markers()
	r.livePrice()

	return r.cmds
}

type renderer struct {
	scene  *Scene
	layout *Layout
	vp     Viewport
	cmds   []Command
}

func (r *renderer) add(c Command) {
	r.cmds = append(r.cmds, c)
}

func (r *renderer) hline(layer Layer, price float64, color Color, dashed bool) {
	y := r.layout.PriceToY(price)
	r.add(Command{
		Layer:  layer,
		Op:     OpLine,
		Color:  color,
		Points: []Point{{r.vp.Left, y}, {r.vp.Left + r.vp.ChartWidth(), y}},
		Dashed: dashed,
	})
}

// grid горизонтальные линии с подписями цен справа
func (r *renderer) grid() {
	n := r.scene.GridLines
	if n <= 0 {
		n = defaultGridLines
	}
	lo, hi := r.layout.PriceRange()
	step := (hi - lo) / float64(n+1)
	for i := 1; i <= n; i++ {
		price := lo + step*float64(i)
		r.hline(LayerGrid, price, ColorGrid, false)
		r.add(Command{
			Layer:  LayerGrid,
			Op:     OpText,
			Color:  ColorAxisText,
			Points: []Point{{r.vp.Left + r.vp.ChartWidth() + 1, r.layout.PriceToY(price)}},
			Text:   FormatPrice(price),
		})
	}
}

// cloudSample значения спанов в позиции X
type cloudSample struct {
	index int
	a, b  float64
	color ichimoku.CloudColor
}

// historicalSamples облако, отображаемое над свечами: спаны сдвинуты на displacement вперед
func (r *renderer) historicalSamples() []cloudSample {
	var out []cloudSample
	for j := range r.scene.Indicators.Points {
		p, ok := r.scene.spanSource(j)
		if !ok || p.SenkouSpanA == nil || p.SenkouSpanB == nil {
			continue
		}
		out = append(out, cloudSample{j, *p.SenkouSpanA, *p.SenkouSpanB, p.CloudColor})
	}
	return out
}

// futureSamples проекция за последней свечой, начиная с последней исторической точки
func (r *renderer) futureSamples() []cloudSample {
	res := r.scene.Indicators
	n := len(r.scene.Candles)
	var out []cloudSample
	if hist := r.historicalSamples(); len(hist) > 0 && hist[len(hist)-1].index == n-1 {
		out = append(out, hist[len(hist)-1])
	}
	for _, fp := range res.Future {
		if fp.SenkouSpanA == nil || fp.SenkouSpanB == nil {
			continue
		}
		out = append(out, cloudSample{n - 1 + fp.Offset, *fp.SenkouSpanA, *fp.SenkouSpanB, fp.CloudColor})
	}
	return out
}

// fill закрашивает облако четырехугольниками между соседними точками
func (r *renderer) fill(layer Layer, samples []cloudSample, bull, bear Color) {
	for i := 0; i+1 < len(samples); i++ {
		s0, s1 := samples[i], samples[i+1]
		if s1.index != s0.index+1 {
			continue
		}
		color := bull
		if s0.color == ichimoku.Bearish {
			color = bear
		}
		x0, x1 := r.layout.IndexToX(s0.index), r.layout.IndexToX(s1.index)
		r.add(Command{
			Layer: layer,
			Op:    OpFillPolygon,
			Color: color,
			Points: []Point{
				{x0, r.layout.PriceToY(s0.a)},
				{x1, r.layout.PriceToY(s1.a)},
				{x1, r.layout.PriceToY(s1.b)},
				{x0, r.layout.PriceToY(s0.b)},
			},
		})
	}
}

// edges контуры спанов A и B
func (r *renderer) edges(layer Layer, samples []cloudSample) {
	if len(samples) < 2 {
		return
	}
	a := make([]Point, len(samples))
	b := make([]Point, len(samples))
	for i, s := range samples {
		x := r.layout.IndexToX(s.index)
		a[i] = Point{x, r.layout.PriceToY(s.a)}
		b[i] = Point{x, r.layout.PriceToY(s.b)}
	}
	r.add(Command{Layer: layer, Op: OpPolyline, Color: ColorSpanA, Points: a})
	r.add(Command{Layer: layer, Op: OpPolyline, Color: ColorSpanB, Points: b})
}

func (r *renderer) futureCloud() {
	samples := r.futureSamples()
	r.fill(LayerFutureCloud, samples, ColorFutureBull, ColorFutureBear)
	r.edges(LayerFutureCloud, samples)
}

func (r *renderer) cloud() {
	samples := r.historicalSamples()
	r.fill(LayerCloud, samples, ColorCloudBull, ColorCloudBear)
	r.edges(LayerCloud, samples)
}

// lines tenkan, kijun и chikou (сдвинут назад на displacement)
func (r *renderer) lines() {
	res := r.scene.Indicators
	disp := res.Config.Displacement

	r.series(ColorTenkan, func(i int) *float64 { return res.Points[i].TenkanSen }, 0)
	r.series(ColorKijun, func(i int) *float64 { return res.Points[i].KijunSen }, 0)
	r.series(ColorChikou, func(i int) *float64 { return res.Points[i].ChikouSpan }, -disp)
}

// series рисует полилинии по непрерывным участкам значений
func (r *renderer) series(color Color, value func(i int) *float64, shift int) {
	var run []Point
	flush := func() {
		if len(run) >= 2 {
			r.add(Command{Layer: LayerLines, Op: OpPolyline, Color: color, Points: run})
		}
		run = nil
	}
	for i := range r.scene.Indicators.Points {
		x := i + shift
		v := value(i)
		if v == nil || x < 0 {
			flush()
			continue
		}
		run = append(run, Point{r.layout.IndexToX(x), r.layout.PriceToY(*v)})
	}
	flush()
}

// candles фитиль high-low и тело open-close с минимальной высотой
func (r *renderer) candles() {
	bodyW := math.Max(r.layout.SlotWidth()*bodyWidthRatio, 1)
	for i, c := range r.scene.Candles {
		color := ColorBearish
		if c.Bullish() {
			color = ColorBullish
		}
		x := r.layout.IndexToX(i)
		r.add(Command{
			Layer:  LayerCandles,
			Op:     OpLine,
			Color:  color,
			Points: []Point{{x, r.layout.PriceToY(c.High)}, {x, r.layout.PriceToY(c.Low)}},
		})

		yOpen, yClose := r.layout.PriceToY(c.Open), r.layout.PriceToY(c.Close)
		top := math.Min(yOpen, yClose)
		h := math.Max(math.Abs(yOpen-yClose), minBodyHeight)
		r.add(Command{
			Layer: LayerCandles,
			Op:    OpFillRect,
			Color: color,
			Rect:  Rect{X: x - bodyW/2, Y: top, W: bodyW, H: h},
		})
	}
}

// markers вход, стоп и тейк позиций; вне диапазона не рисуются
func (r *renderer) markers() {
	for _, m := range r.scene.Markers {
		if !r.layout.InPriceRange(m.Price) {
			continue
		}
		color := ColorEntry
		dashed := false
		switch m.Kind {
		case MarkerStopLoss:
			color, dashed = ColorStopLoss, true
		case MarkerTakeProfit:
			color, dashed = ColorTakeProfit, true
		}
		r.hline(LayerMarkers, m.Price, color, dashed)
		label := m.Label
		if label == "" {
			label = string(m.Kind)
		}
		r.add(Command{
			Layer:  LayerMarkers,
			Op:     OpText,
			Color:  ColorMarkerLabel,
			Points: []Point{{r.vp.Left, r.layout.PriceToY(m.Price)}},
			Text:   label,
		})
	}
}

func (r *renderer) livePrice() {
	if !r.scene.HasLivePrice || !r.layout.InPriceRange(r.scene.LivePrice) {
		return
	}
	r.hline(LayerPriceLine, r.scene.LivePrice, ColorLivePrice, true)
	r.add(Command{
		Layer:  LayerPriceLine,
		Op:     OpText,
		Color:  ColorLivePrice,
		Points: []Point{{r.vp.Left + r.vp.ChartWidth() + 1, r.layout.PriceToY(r.scene.LivePrice)}},
		Text:   FormatPrice(r.scene.LivePrice),
	})
}

// FormatPrice форматирует цену с точностью по величине
func FormatPrice(p float64) string {
	abs := math.Abs(p)
	switch {
	case abs >= 1000:
		return fmt.Sprintf("%.1f", p)
	case abs >= 1:
		return fmt.Sprintf("%.2f", p)
	case abs >= 0.01:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.6f", p)
	}
}
