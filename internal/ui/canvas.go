package ui

import (
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/cryptodash/internal/chart"
)

// Символы отрисовки
const (
	runeEmpty       = ' '
	runeHLine       = '─'
	runeHLineDashed = '╌'
	runeVLine       = '│'
	runeVLineDashed = '╎'
	runeDiagonal    = '·'
	runeSeries      = '•'
	runeBody        = '█'
)

type cell struct {
	r  rune
	fg chart.Color
	bg chart.Color
}

// Canvas сетка ячеек терминала. Один пиксель графика равен одной ячейке.
type Canvas struct {
	width, height int
	cells         []cell
}

var _ chart.Surface = (*Canvas)(nil)

// NewCanvas создает пустой холст
func NewCanvas(width, height int) *Canvas {
	width, height = max(width, 1), max(height, 1)
	c := &Canvas{width: width, height: height, cells: make([]cell, width*height)}
	c.Clear()
	return c
}

// Clear очищает холст перед полной перерисовкой
func (c *Canvas) Clear() {
	for i := range c.cells {
		c.cells[i] = cell{r: runeEmpty}
	}
}

// Size ширина и высота в ячейках
func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

func (c *Canvas) at(x, y int) *cell {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return nil
	}
	return &c.cells[y*c.width+x]
}

func (c *Canvas) set(x, y int, r rune, fg chart.Color) {
	if p := c.at(x, y); p != nil {
		p.r, p.fg = r, fg
	}
}

func cellOf(v float64) int {
	return int(math.Floor(v))
}

// Line отрезок, горизонтальные и вертикальные линии рисуются рамкой
func (c *Canvas) Line(a, b chart.Point, color chart.Color, dashed bool) {
	x0, y0 := cellOf(a.X), cellOf(a.Y)
	x1, y1 := cellOf(b.X), cellOf(b.Y)

	r := runeDiagonal
	switch {
	case y0 == y1 && dashed:
		r = runeHLineDashed
	case y0 == y1:
		r = runeHLine
	case x0 == x1 && dashed:
		r = runeVLineDashed
	case x0 == x1:
		r = runeVLine
	}
	c.segment(x0, y0, x1, y1, r, color)
}

// segment DDA по ячейкам
func (c *Canvas) segment(x0, y0, x1, y1 int, r rune, color chart.Color) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		c.set(x0, y0, r, color)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(float64(dx)*t))
		y := y0 + int(math.Round(float64(dy)*t))
		c.set(x, y, r, color)
	}
}

// Polyline линия индикатора
func (c *Canvas) Polyline(points []chart.Point, color chart.Color) {
	for i := 0; i+1 < len(points); i++ {
		c.segment(cellOf(points[i].X), cellOf(points[i].Y), cellOf(points[i+1].X), cellOf(points[i+1].Y), runeSeries, color)
	}
}

// FillRect тело свечи, не меньше одной ячейки
func (c *Canvas) FillRect(rect chart.Rect, color chart.Color) {
	x0, y0 := cellOf(rect.X), cellOf(rect.Y)
	x1 := max(x0, int(math.Ceil(rect.X+rect.W))-1)
	y1 := max(y0, int(math.Ceil(rect.Y+rect.H))-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			c.set(x, y, runeBody, color)
		}
	}
}

// FillPolygon заливка фона построчно по правилу чет-нечет. Символы не меняются,
// поэтому линии под облаком остаются видны.
func (c *Canvas) FillPolygon(points []chart.Point, color chart.Color) {
	if len(points) < 3 {
		return
	}
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	for y := max(cellOf(minY), 0); y <= min(cellOf(maxY), c.height-1); y++ {
		sy := float64(y) + 0.5
		var xs []float64
		for i := range points {
			a, b := points[i], points[(i+1)%len(points)]
			if (a.Y <= sy && b.Y > sy) || (b.Y <= sy && a.Y > sy) {
				xs = append(xs, a.X+(sy-a.Y)*(b.X-a.X)/(b.Y-a.Y))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := cellOf(xs[i]); x <= cellOf(xs[i+1]); x++ {
				if p := c.at(x, y); p != nil {
					p.bg = color
				}
			}
		}
	}
}

// Text надпись слева направо, обрезается по краю
func (c *Canvas) Text(at chart.Point, text string, color chart.Color) {
	x, y := cellOf(at.X), cellOf(at.Y)
	for _, r := range text {
		c.set(x, y, r, color)
		x++
	}
}

// Plain содержимое без цветов
func (c *Canvas) Plain() string {
	var b strings.Builder
	for y := 0; y < c.height; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < c.width; x++ {
			b.WriteRune(c.cells[y*c.width+x].r)
		}
	}
	return b.String()
}

// Render строки с цветами, соседние ячейки одного стиля склеиваются
func (c *Canvas) Render() string {
	var b strings.Builder
	for y := 0; y < c.height; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		row := c.cells[y*c.width : (y+1)*c.width]
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].fg == row[start].fg && row[x].bg == row[start].bg {
				continue
			}
			var run strings.Builder
			for _, cl := range row[start:x] {
				run.WriteRune(cl.r)
			}
			b.WriteString(styleFor(row[start]).Render(run.String()))
			start = x
		}
	}
	return b.String()
}

func styleFor(cl cell) lipgloss.Style {
	style := lipgloss.NewStyle()
	if cl.fg != "" {
		style = style.Foreground(lipgloss.Color(string(cl.fg)))
	}
	if cl.bg != "" {
		style = style.Background(lipgloss.Color(string(cl.bg)))
	}
	return style
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
