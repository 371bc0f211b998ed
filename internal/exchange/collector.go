package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"go.uber.org/zap"
)

// DataCollector периодически забирает данные с биржи в хранилище
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// collector общий цикл опроса
type collector struct {
	name     string
	interval time.Duration
	collect  func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start выполняет сбор сразу и затем по таймеру. Блокирует до остановки.
func (c *collector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	logger.Info("Запуск сборщика", zap.String("collector", c.name), zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop останавливает сбор
func (c *collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// CandleCollector собирает свечи по списку символов
type CandleCollector struct {
	collector
	client   MarketData
	store    storage.Storage
	symbols  []string
	interval string
	limit    int
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(client MarketData, store storage.Storage, symbols []string, interval string, limit int, every time.Duration) *CandleCollector {
	c := &CandleCollector{
		client:   client,
		store:    store,
		symbols:  symbols,
		interval: interval,
		limit:    limit,
	}
	c.collector = collector{name: "candles", interval: every, collect: c.Collect}
	return c
}

// Collect один проход по символам, ошибка по символу не прерывает остальные
func (c *CandleCollector) Collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		candles, err := c.client.GetKlines(ctx, symbol, c.interval, c.limit)
		if err != nil {
			logger.Warn("Ошибка получения свечей", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := c.store.SaveCandles(ctx, candles); err != nil {
			logger.Error("Ошибка сохранения свечей", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// FundingRateCollector собирает ставки финансирования
type FundingRateCollector struct {
	collector
	client  MarketData
	store   storage.Storage
	symbols []string
}

// NewFundingRateCollector создает сборщик ставок
func NewFundingRateCollector(client MarketData, store storage.Storage, symbols []string, every time.Duration) *FundingRateCollector {
	c := &FundingRateCollector{client: client, store: store, symbols: symbols}
	c.collector = collector{name: "funding", interval: every, collect: c.Collect}
	return c
}

// Collect один проход по символам
func (c *FundingRateCollector) Collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		rate, err := c.client.GetFundingRate(ctx, symbol)
		if err != nil {
			logger.Warn("Ошибка получения ставки финансирования", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := c.store.SaveFundingRate(ctx, rate); err != nil {
			logger.Error("Ошибка сохранения ставки финансирования", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
