package chart

import (
	"testing"

	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wave(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i%20)
		if (i/20)%2 == 1 {
			p = 120 - float64(i%20)
		}
		candles[i] = &models.Candle{Open: p, High: p + 3, Low: p - 3, Close: p + 1}
		if i%3 == 0 {
			candles[i].Close = p - 1
		}
	}
	return candles
}

func sceneWithIndicators(n int) *Scene {
	candles := wave(n)
	return &Scene{
		Candles:        candles,
		Indicators:     ichimoku.NewEngine(ichimoku.DefaultConfig()).Calculate(candles),
		ShowIndicators: true,
	}
}

var vp = Viewport{Width: 800, Height: 400, Left: 0, Right: 60, Top: 10, Bottom: 10}

func TestIndexToXAffineSpacing(t *testing.T) {
	s := sceneWithIndicators(100)
	l := NewLayout(s, vp)

	n := 100 + 26
	require.Equal(t, n, l.Slots())
	got := l.IndexToX(n-1) - l.IndexToX(0)
	want := vp.ChartWidth() * float64(n-1) / float64(n)
	assert.InDelta(t, want, got, 1e-9)

	// Без индикаторов проекции нет
	s.ShowIndicators = false
	assert.Equal(t, 100, NewLayout(s, vp).Slots())
}

func TestPriceToYPadding(t *testing.T) {
	candles := []*models.Candle{
		{Open: 100, High: 110, Low: 90, Close: 105},
		{Open: 105, High: 108, Low: 95, Close: 96},
	}
	l := NewLayout(&Scene{Candles: candles}, vp)

	lo, hi := l.PriceRange()
	assert.InDelta(t, 88, lo, 1e-9)
	assert.InDelta(t, 112, hi, 1e-9)
	assert.InDelta(t, vp.Top, l.PriceToY(hi), 1e-9)
	assert.InDelta(t, vp.Top+vp.ChartHeight(), l.PriceToY(lo), 1e-9)
	assert.Less(t, l.PriceToY(110), l.PriceToY(90))
	assert.InDelta(t, 100, l.YToPrice(l.PriceToY(100)), 1e-9)
}

func TestFlatRangeUsesUnitRange(t *testing.T) {
	candles := []*models.Candle{{Open: 50, High: 50, Low: 50, Close: 50}}
	l := NewLayout(&Scene{Candles: candles}, vp)

	lo, hi := l.PriceRange()
	assert.InDelta(t, 49.4, lo, 1e-9)
	assert.InDelta(t, 50.6, hi, 1e-9)
}

func TestRangeIncludesIndicators(t *testing.T) {
	s := sceneWithIndicators(100)
	withInd := NewLayout(s, vp)
	s.ShowIndicators = false
	without := NewLayout(s, vp)

	lo1, hi1 := withInd.PriceRange()
	lo2, hi2 := without.PriceRange()
	assert.LessOrEqual(t, lo1, lo2)
	assert.GreaterOrEqual(t, hi1, hi2)

	// Все точки облака и линий внутри области графика
	for _, c := range Render(sceneWithIndicators(100), vp) {
		if c.Layer == LayerGrid || c.Op == OpText || c.Op == OpFillRect {
			continue
		}
		for _, p := range c.Points {
			assert.GreaterOrEqual(t, p.Y, vp.Top-1e-9)
			assert.LessOrEqual(t, p.Y, vp.Top+vp.ChartHeight()+1e-9)
		}
	}
}

func TestRenderDrawOrder(t *testing.T) {
	s := sceneWithIndicators(120)
	s.Markers = []Marker{
		{Kind: MarkerEntry, Price: 110},
		{Kind: MarkerStopLoss, Price: 101},
		{Kind: MarkerTakeProfit, Price: 118},
	}
	s.LivePrice = 111
	s.HasLivePrice = true

	cmds := Render(s, vp)
	require.NotEmpty(t, cmds)

	seen := map[Layer]bool{}
	for i := 1; i < len(cmds); i++ {
		assert.LessOrEqual(t, cmds[i-1].Layer, cmds[i].Layer, "command %d goes back from %s to %s", i, cmds[i-1].Layer, cmds[i].Layer)
	}
	for _, c := range cmds {
		seen[c.Layer] = true
	}
	for _, l := range []Layer{LayerGrid, LayerFutureCloud, LayerCloud, LayerLines, LayerCandles, LayerMarkers, LayerPriceLine} {
		assert.True(t, seen[l], "missing layer %s", l)
	}
	assert.Equal(t, LayerPriceLine, cmds[len(cmds)-1].Layer)
}

func TestRenderWithoutIndicatorsOmitsOverlays(t *testing.T) {
	candles := wave(30)
	s := &Scene{
		Candles:        candles,
		Indicators:     ichimoku.NewEngine(ichimoku.DefaultConfig()).Calculate(candles),
		ShowIndicators: true,
	}
	require.True(t, s.Indicators.Empty())

	for _, c := range Render(s, vp) {
		assert.NotContains(t, []Layer{LayerFutureCloud, LayerCloud, LayerLines}, c.Layer)
	}
}

func TestCandleBodies(t *testing.T) {
	candles := []*models.Candle{
		{Open: 100, High: 110, Low: 90, Close: 105},
		{Open: 100, High: 110, Low: 90, Close: 100}, // без движения
		{Open: 105, High: 110, Low: 90, Close: 95},
	}
	cmds := Render(&Scene{Candles: candles}, vp)

	var bodies []Command
	var wicks []Command
	for _, c := range cmds {
		if c.Layer != LayerCandles {
			continue
		}
		if c.Op == OpFillRect {
			bodies = append(bodies, c)
		} else {
			wicks = append(wicks, c)
		}
	}
	require.Len(t, bodies, 3)
	require.Len(t, wicks, 3)

	assert.Equal(t, ColorBullish, bodies[0].Color)
	assert.Equal(t, ColorBullish, bodies[1].Color, "close == open is bullish")
	assert.Equal(t, ColorBearish, bodies[2].Color)
	assert.Equal(t, minBodyHeight, bodies[1].Rect.H)

	l := NewLayout(&Scene{Candles: candles}, vp)
	assert.InDelta(t, l.PriceToY(110), wicks[0].Points[0].Y, 1e-9)
	assert.InDelta(t, l.PriceToY(90), wicks[0].Points[1].Y, 1e-9)
	assert.InDelta(t, l.PriceToY(105), bodies[0].Rect.Y, 1e-9)
}

func TestMarkersOutsideRangeSkipped(t *testing.T) {
	candles := []*models.Candle{{Open: 100, High: 110, Low: 90, Close: 105}}
	s := &Scene{
		Candles: candles,
		Markers: []Marker{{Kind: MarkerStopLoss, Price: 10}},
	}
	for _, c := range Render(s, vp) {
		assert.NotEqual(t, LayerMarkers, c.Layer)
	}
}

func TestChikouShiftedBack(t *testing.T) {
	s := sceneWithIndicators(100)
	l := NewLayout(s, vp)
	cmds := Render(s, vp)
	var chikou *Command
	for i := range cmds {
		if cmds[i].Color == ColorChikou {
			chikou = &cmds[i]
			break
		}
	}
	require.NotNil(t, chikou)
	assert.InDelta(t, l.IndexToX(0), chikou.Points[0].X, 1e-9)
	assert.InDelta(t, l.PriceToY(s.Candles[26].Close), chikou.Points[0].Y, 1e-9)
}

func TestSceneWindow(t *testing.T) {
	s := sceneWithIndicators(100)
	w := s.Window(60)
	require.Len(t, w.Candles, 60)
	require.Len(t, w.Indicators.Points, 60)
	assert.Same(t, s.Candles[40], w.Candles[0])
	assert.Len(t, w.Indicators.Future, 26)

	assert.Len(t, s.Window(0).Candles, 100)
	assert.Len(t, s.Window(500).Candles, 100)
}

func TestWindowKeepsCloudAtLeftEdge(t *testing.T) {
	full := sceneWithIndicators(200)
	w := full.Window(100)
	require.Len(t, w.lead, 26)

	l := NewLayout(&w, vp)
	var first *Command
	for _, c := range Render(&w, vp) {
		if c.Layer == LayerCloud && c.Op == OpFillPolygon {
			c := c
			first = &c
			break
		}
	}
	require.NotNil(t, first)
	assert.InDelta(t, l.IndexToX(0), first.Points[0].X, 1e-9)

	// над свечой 0 окна спаны точки 100-26 полной истории
	src := full.Indicators.Points[100-26]
	assert.InDelta(t, l.PriceToY(*src.SenkouSpanA), first.Points[0].Y, 1e-9)
	assert.InDelta(t, l.PriceToY(*src.SenkouSpanB), first.Points[3].Y, 1e-9)
}

func TestWindowLeadClampedAtHistoryStart(t *testing.T) {
	w := sceneWithIndicators(100).Window(90)
	assert.Len(t, w.lead, 10)
}

type recordingSurface struct {
	ops []string
}

func (r *recordingSurface) Line(a, b Point, color Color, dashed bool) { r.ops = append(r.ops, "line") }
func (r *recordingSurface) Polyline(points []Point, color Color)      { r.ops = append(r.ops, "polyline") }
func (r *recordingSurface) FillRect(rect Rect, color Color)           { r.ops = append(r.ops, "rect") }
func (r *recordingSurface) FillPolygon(points []Point, color Color)   { r.ops = append(r.ops, "polygon") }
func (r *recordingSurface) Text(at Point, text string, color Color)   { r.ops = append(r.ops, "text") }

func TestPaintDispatch(t *testing.T) {
	surface := &recordingSurface{}
	Paint(surface, []Command{
		{Op: OpLine, Points: []Point{{0, 0}, {1, 1}}},
		{Op: OpLine, Points: []Point{{0, 0}}}, // неполная линия пропускается
		{Op: OpPolyline},
		{Op: OpFillRect},
		{Op: OpFillPolygon},
		{Op: OpText, Points: []Point{{0, 0}}, Text: "x"},
	})
	assert.Equal(t, []string{"line", "polyline", "rect", "polygon", "text"}, surface.ops)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "101500.0", FormatPrice(101500))
	assert.Equal(t, "225.50", FormatPrice(225.5))
	assert.Equal(t, "0.4100", FormatPrice(0.41))
	assert.Equal(t, "0.000012", FormatPrice(0.000012))
}
