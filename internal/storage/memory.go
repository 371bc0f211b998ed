package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/pkg/models"
)

// StatsSnapshot снимок статистики ленты
type StatsSnapshot struct {
	Time  time.Time
	Stats models.FeedStats
}

// MemoryStorage хранилище в памяти процесса
type MemoryStorage struct {
	mu      sync.RWMutex
	candles map[string][]*models.Candle // symbol|interval, по возрастанию времени
	signals map[string][]*models.SignalResult
	funding map[string][]*models.FundingRate
	stats   []StatsSnapshot
}

// NewMemoryStorage создает пустое хранилище
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		candles: make(map[string][]*models.Candle),
		signals: make(map[string][]*models.SignalResult),
		funding: make(map[string][]*models.FundingRate),
	}
}

func candleKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// SaveCandles добавляет свечи, свеча с тем же временем открытия заменяется
func (m *MemoryStorage) SaveCandles(_ context.Context, candles []*models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range candles {
		key := candleKey(c.Symbol, c.Interval)
		list := m.candles[key]
		i := sort.Search(len(list), func(i int) bool { return !list[i].OpenTime.Before(c.OpenTime) })
		cp := *c
		if i < len(list) && list[i].OpenTime.Equal(c.OpenTime) {
			list[i] = &cp
			continue
		}
		list = append(list, nil)
		copy(list[i+1:], list[i:])
		list[i] = &cp
		m.candles[key] = list
	}
	return nil
}

// GetCandles последние limit свечей, старые первыми
func (m *MemoryStorage) GetCandles(_ context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.candles[candleKey(symbol, interval)]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]*models.Candle, len(list))
	for i, c := range list {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

// SaveSignal сохраняет сигнал
func (m *MemoryStorage) SaveSignal(_ context.Context, signal *models.SignalResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *signal
	m.signals[signal.Symbol] = append(m.signals[signal.Symbol], &cp)
	return nil
}

// GetSignalHistory новыми первыми
func (m *MemoryStorage) GetSignalHistory(_ context.Context, symbol string, limit int) ([]*models.SignalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.signals[symbol], limit), nil
}

// SaveFundingRate сохраняет ставку
func (m *MemoryStorage) SaveFundingRate(_ context.Context, rate *models.FundingRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rate
	m.funding[rate.Symbol] = append(m.funding[rate.Symbol], &cp)
	return nil
}

// GetFundingRates новыми первыми
func (m *MemoryStorage) GetFundingRates(_ context.Context, symbol string, limit int) ([]*models.FundingRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.funding[symbol], limit), nil
}

// SaveFeedStats сохраняет снимок
func (m *MemoryStorage) SaveFeedStats(_ context.Context, stats models.FeedStats, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, StatsSnapshot{Time: at, Stats: stats})
	return nil
}

// FeedStats все сохраненные снимки
func (m *MemoryStorage) FeedStats() []StatsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StatsSnapshot(nil), m.stats...)
}

// Close ничего не делает
func (m *MemoryStorage) Close() {}

func newestFirst[T any](list []*T, limit int) []*T {
	n := len(list)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*T, 0, n)
	for i := len(list) - 1; i >= 0 && len(out) < n; i-- {
		cp := *list[i]
		out = append(out, &cp)
	}
	return out
}
