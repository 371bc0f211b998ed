package chart

import "math"

// Viewport размеры поверхности и отступы области графика
type Viewport struct {
	Width, Height float64
	Left, Right   float64 // Right обычно занят шкалой цен
	Top, Bottom   float64
}

// ChartWidth ширина области графика
func (v Viewport) ChartWidth() float64 {
	return math.Max(v.Width-v.Left-v.Right, 1)
}

// ChartHeight высота области графика
func (v Viewport) ChartHeight() float64 {
	return math.Max(v.Height-v.Top-v.Bottom, 1)
}

// paddingRatio запас по цене сверху и снизу от диапазона
const paddingRatio = 0.1

// Layout аффинные преобразования цена/индекс -> пиксели
type Layout struct {
	viewport Viewport
	minPrice float64 // уже с запасом
	maxPrice float64
	slots    int
}

// NewLayout считает видимый диапазон цен и число слотов по оси X
func NewLayout(scene *Scene, vp Viewport) *Layout {
	lo, hi := priceRange(scene)
	if hi-lo <= 0 {
		// Плоские свечи: подставляем диапазон в одну единицу
		mid := (lo + hi) / 2
		lo, hi = mid-0.5, mid+0.5
	}
	pad := (hi - lo) * paddingRatio

	slots := len(scene.Candles) + scene.displacement()
	if slots < 1 {
		slots = 1
	}

	return &Layout{
		viewport: vp,
		minPrice: lo - pad,
		maxPrice: hi + pad,
		slots:    slots,
	}
}

// PriceRange видимый диапазон цен с запасом
func (l *Layout) PriceRange() (min, max float64) {
	return l.minPrice, l.maxPrice
}

// Slots число позиций по оси X (свечи + проекция облака)
func (l *Layout) Slots() int {
	return l.slots
}

// SlotWidth ширина одной позиции
func (l *Layout) SlotWidth() float64 {
	return l.viewport.ChartWidth() / float64(l.slots)
}

// PriceToY цена -> Y, большая цена выше
func (l *Layout) PriceToY(price float64) float64 {
	ratio := (l.maxPrice - price) / (l.maxPrice - l.minPrice)
	return l.viewport.Top + ratio*l.viewport.ChartHeight()
}

// YToPrice обратное преобразование для подписей шкалы
func (l *Layout) YToPrice(y float64) float64 {
	ratio := (y - l.viewport.Top) / l.viewport.ChartHeight()
	return l.maxPrice - ratio*(l.maxPrice-l.minPrice)
}

// IndexToX центр слота index
func (l *Layout) IndexToX(index int) float64 {
	return l.viewport.Left + (float64(index)+0.5)*l.SlotWidth()
}

// InPriceRange попадает ли цена в видимый диапазон
func (l *Layout) InPriceRange(price float64) bool {
	return price >= l.minPrice && price <= l.maxPrice
}

// priceRange min/max по свечам и, если индикаторы видимы, по их значениям
func priceRange(scene *Scene) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	see := func(v float64) {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	seePtr := func(v *float64) {
		if v != nil {
			see(*v)
		}
	}

	for _, c := range scene.Candles {
		see(c.High)
		see(c.Low)
	}

	if scene.indicatorsVisible() {
		for _, p := range scene.Indicators.Points {
			seePtr(p.TenkanSen)
			seePtr(p.KijunSen)
			seePtr(p.SenkouSpanA)
			seePtr(p.SenkouSpanB)
			seePtr(p.ChikouSpan)
		}
		for _, p := range scene.lead {
			seePtr(p.SenkouSpanA)
			seePtr(p.SenkouSpanB)
		}
		for _, fp := range scene.Indicators.Future {
			seePtr(fp.SenkouSpanA)
			seePtr(fp.SenkouSpanB)
		}
	}

	if math.IsInf(lo, 1) {
		// Нет данных: диапазон вокруг живой цены или нуля
		if scene.HasLivePrice {
			return scene.LivePrice, scene.LivePrice
		}
		return 0, 0
	}
	return lo, hi
}
