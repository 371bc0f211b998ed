package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей. GetCandles возвращает старые первыми.
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)

	// Методы для сигналов, история новыми первыми
	SaveSignal(ctx context.Context, signal *models.SignalResult) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error)

	// Методы для ставок финансирования, новыми первыми
	SaveFundingRate(ctx context.Context, rate *models.FundingRate) error
	GetFundingRates(ctx context.Context, symbol string, limit int) ([]*models.FundingRate, error)

	// Снимки статистики ленты
	SaveFeedStats(ctx context.Context, stats models.FeedStats, at time.Time) error

	Close()
}

// New создает хранилище по типу из конфигурации
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "influxdb":
		return NewInfluxDBStorage(ctx, cfg)
	case "memory", "":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", cfg.Type)
	}
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// lookback окно запроса, достаточное для limit свечей
func lookback(interval string, limit int) time.Duration {
	if limit <= 0 {
		limit = 1
	}
	return getIntervalDuration(interval) * time.Duration(limit+1)
}
