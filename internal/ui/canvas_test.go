package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/internal/chart"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(c *Canvas) []string {
	return strings.Split(c.Plain(), "\n")
}

func TestCanvasLines(t *testing.T) {
	c := NewCanvas(10, 4)
	c.Line(chart.Point{X: 0, Y: 1}, chart.Point{X: 9.9, Y: 1.4}, chart.ColorGrid, false)
	c.Line(chart.Point{X: 3, Y: 0}, chart.Point{X: 3, Y: 3}, chart.ColorBullish, true)

	r := rows(c)
	require.Len(t, r, 4)
	assert.Equal(t, "───╎──────", r[1])
	assert.Equal(t, "   ╎      ", r[0])
	assert.Equal(t, "   ╎      ", r[3])
}

func TestCanvasFillRectMinimumCell(t *testing.T) {
	c := NewCanvas(5, 3)
	c.FillRect(chart.Rect{X: 2.2, Y: 1.1, W: 0.5, H: 0.2}, chart.ColorBearish)

	assert.Equal(t, "  █  ", rows(c)[1])
	assert.Equal(t, chart.ColorBearish, c.at(2, 1).fg)
}

func TestCanvasPolygonKeepsRunes(t *testing.T) {
	c := NewCanvas(8, 6)
	c.Line(chart.Point{X: 0, Y: 3}, chart.Point{X: 7, Y: 3}, chart.ColorGrid, false)
	c.FillPolygon([]chart.Point{{X: 1, Y: 1}, {X: 6, Y: 1}, {X: 6, Y: 5}, {X: 1, Y: 5}}, chart.ColorCloudBull)

	assert.Equal(t, '─', c.at(3, 3).r)
	assert.Equal(t, chart.ColorCloudBull, c.at(3, 3).bg)
	assert.Equal(t, chart.ColorCloudBull, c.at(1, 2).bg)
	assert.Empty(t, c.at(0, 2).bg)
	assert.Empty(t, c.at(3, 0).bg)
}

func TestCanvasClipsOutOfBounds(t *testing.T) {
	c := NewCanvas(6, 2)
	assert.NotPanics(t, func() {
		c.Text(chart.Point{X: 3, Y: 0}, "123456", chart.ColorAxisText)
		c.Line(chart.Point{X: -5, Y: -5}, chart.Point{X: 20, Y: 20}, chart.ColorGrid, false)
		c.FillRect(chart.Rect{X: 4, Y: 1, W: 10, H: 10}, chart.ColorBullish)
		c.FillPolygon([]chart.Point{{X: -10, Y: -10}, {X: 30, Y: -10}, {X: 30, Y: 30}}, chart.ColorCloudBear)
	})
	assert.True(t, strings.HasSuffix(rows(c)[0], "123"), rows(c)[0])
}

func TestCanvasRenderKeepsText(t *testing.T) {
	c := NewCanvas(12, 1)
	c.Text(chart.Point{X: 0, Y: 0}, "65000.0", chart.ColorLivePrice)
	assert.Contains(t, c.Render(), "65000.0")
}

func TestCanvasPaintsRenderedScene(t *testing.T) {
	var candles []*models.Candle
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 80; i++ {
		p := 100 + float64(i)
		candles = append(candles, &models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     p, High: p + 2, Low: p - 1, Close: p + 1,
		})
	}
	res := ichimoku.NewEngine(ichimoku.DefaultConfig()).Calculate(candles)
	scene := chart.Scene{Candles: candles, Indicators: res, ShowIndicators: true, LivePrice: 181, HasLivePrice: true}

	c := NewCanvas(120, 20)
	chart.Paint(c, chart.Render(&scene, chart.Viewport{Width: 120, Height: 20, Right: axisWidth}))

	plain := c.Plain()
	assert.Contains(t, plain, string(runeBody))
	assert.Contains(t, plain, string(runeSeries))
	assert.Contains(t, plain, "181.00")

	var cloud int
	for _, cl := range c.cells {
		if cl.bg != "" {
			cloud++
		}
	}
	assert.Positive(t, cloud)
}
