// Package feed принимает поток сделок и ликвидаций и держит сводку для отображения.
package feed

import (
	"sync"

	"github.com/skalibog/cryptodash/pkg/models"
)

// Config пороги классификации и размеры списков
type Config struct {
	LargeThreshold  float64 // крупная сделка: notional > порога
	WhaleThreshold  float64 // кит: notional > порога
	MaxTrades       int
	MaxLiquidations int
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		LargeThreshold:  500000,
		WhaleThreshold:  1000000,
		MaxTrades:       50,
		MaxLiquidations: 50,
	}
}

// Aggregator накапливает статистику сессии и последние события.
// Списки ограничены, накопители нет.
type Aggregator struct {
	config Config

	mu           sync.RWMutex
	stats        models.FeedStats
	trades       []models.Trade // новые первыми
	liquidations []models.Liquidation
	prices       map[string]float64
	connected    bool
}

// NewAggregator создает агрегатор
func NewAggregator(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.LargeThreshold <= 0 {
		cfg.LargeThreshold = def.LargeThreshold
	}
	if cfg.WhaleThreshold <= 0 {
		cfg.WhaleThreshold = def.WhaleThreshold
	}
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = def.MaxTrades
	}
	if cfg.MaxLiquidations <= 0 {
		cfg.MaxLiquidations = def.MaxLiquidations
	}
	return &Aggregator{
		config: cfg,
		prices: make(map[string]float64),
	}
}

// Classify выставляет IsLarge/IsWhale по notional. Кит всегда и крупная сделка.
func (a *Aggregator) Classify(t *models.Trade) {
	notional := t.Notional()
	t.IsWhale = notional > a.config.WhaleThreshold
	t.IsLarge = t.IsWhale || notional > a.config.LargeThreshold
}

// ProcessTrade классифицирует сделку и добавляет ее объем к стороне
func (a *Aggregator) ProcessTrade(t models.Trade) models.Trade {
	a.Classify(&t)
	notional := t.Notional()

	a.mu.Lock()
	defer a.mu.Unlock()

	switch t.Side {
	case models.SideBuy:
		a.stats.BuyVolume += notional
	case models.SideSell:
		a.stats.SellVolume += notional
	}
	if t.IsLarge {
		a.stats.LargeTradesCount++
	}
	if t.Price > 0 {
		a.prices[t.Symbol] = t.Price
	}

	a.trades = prepend(a.trades, t, a.config.MaxTrades)
	return t
}

// ProcessLiquidation учитывает ликвидацию
func (a *Aggregator) ProcessLiquidation(l models.Liquidation) models.Liquidation {
	if l.ValueUSD == 0 {
		l.ValueUSD = l.Price * l.Size
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.LiquidationsCount++
	a.liquidations = prepend(a.liquidations, l, a.config.MaxLiquidations)
	return l
}

// Stats снимок статистики
func (a *Aggregator) Stats() models.FeedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// CVD кумулятивная дельта объема сессии
func (a *Aggregator) CVD() float64 {
	return a.Stats().CVD()
}

// Price последняя цена символа из ленты
func (a *Aggregator) Price(symbol string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.prices[symbol]
	return p, ok
}

// SetConnected меняет состояние соединения. Статистика при этом сохраняется:
// после обрыва показываются последние данные, после переподключения накопление продолжается.
func (a *Aggregator) SetConnected(connected bool) {
	a.mu.Lock()
	a.connected = connected
	a.mu.Unlock()
}

// Connected состояние соединения
func (a *Aggregator) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Reset начинает новую сессию. Вызывается только при явном переподключении.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = models.FeedStats{}
	a.trades = nil
	a.liquidations = nil
}

// Snapshot все данные для панели одним вызовом
type Snapshot struct {
	Connected    bool                 `json:"connected"`
	Stats        models.FeedStats     `json:"stats"`
	CVD          float64              `json:"cvd"`
	Trades       []models.Trade       `json:"trades"`
	Liquidations []models.Liquidation `json:"liquidations"`
	Prices       map[string]float64   `json:"prices,omitempty"` // последние цены подписки
}

// Snapshot согласованный снимок состояния
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		Connected:    a.connected,
		Stats:        a.stats,
		CVD:          a.stats.CVD(),
		Trades:       append([]models.Trade(nil), a.trades...),
		Liquidations: append([]models.Liquidation(nil), a.liquidations...),
	}
}

// prepend добавляет элемент в начало и обрезает до limit
func prepend[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	copy(list[1:], list[:len(list)-1])
	list[0] = item
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
