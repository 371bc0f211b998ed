// internal/analysis/funding/analyzer.go
package funding

import (
	"context"
	"fmt"
	"math"

	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Config настройки анализа ставок
type Config struct {
	Periods          int     // сколько последних ставок учитывать
	ExtremeThreshold float64 // ставка выше порога по модулю считается экстремальной
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{Periods: 8, ExtremeThreshold: 0.0005}
}

// Analyzer реализует анализатор ставок финансирования
type Analyzer struct {
	config Config
}

// NewAnalyzer создает новый анализатор ставок финансирования
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.Periods <= 0 {
		cfg.Periods = def.Periods
	}
	if cfg.ExtremeThreshold <= 0 {
		cfg.ExtremeThreshold = def.ExtremeThreshold
	}
	return &Analyzer{config: cfg}
}

// Analyze читает историю из хранилища и возвращает контрарный сигнал от -100 до 100
func (a *Analyzer) Analyze(ctx context.Context, store storage.Storage, symbol string) (float64, error) {
	rates, err := store.GetFundingRates(ctx, symbol, a.config.Periods)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения ставок финансирования: %w", err)
	}
	if len(rates) == 0 {
		return 0, fmt.Errorf("нет данных о ставках финансирования для %s", symbol)
	}
	return a.Score(rates), nil
}

// Score сигнал по истории ставок (новые первыми). Высокая положительная ставка
// означает перегретые лонги и дает медвежий сигнал.
func (a *Analyzer) Score(rates []*models.FundingRate) float64 {
	if len(rates) == 0 {
		return 0
	}

	extremeSignal := a.analyzeExtremes(rates)
	trendSignal := analyzeTrend(rates)
	changeSignal := analyzeChange(rates)

	// Комбинируем сигналы с весами
	weighted := extremeSignal*0.4 + trendSignal*0.4 + changeSignal*0.2
	return math.Max(-100, math.Min(100, weighted))
}

// analyzeExtremes сигнал по текущей ставке
func (a *Analyzer) analyzeExtremes(rates []*models.FundingRate) float64 {
	currentRate := rates[0].Rate
	threshold := a.config.ExtremeThreshold

	switch {
	case currentRate > threshold:
		return -100 * math.Min(currentRate/0.01, 1.0)
	case currentRate < -threshold:
		return 100 * math.Min(math.Abs(currentRate)/0.01, 1.0)
	default:
		// В пределах нормы, слабый сигнал
		return math.Max(-100, math.Min(100, -currentRate*10000))
	}
}

// analyzeTrend растущие ставки дают медвежий сигнал, падающие бычий
func analyzeTrend(rates []*models.FundingRate) float64 {
	if len(rates) < 3 {
		return 0
	}

	// История новыми первыми, регрессии нужен порядок по времени
	values := make([]float64, len(rates))
	for i, r := range rates {
		values[len(rates)-1-i] = r.Rate
	}

	slope := calculateSlope(values)
	if slope > 0 {
		return -100 * math.Min(slope*1000, 1.0)
	}
	return 100 * math.Min(math.Abs(slope)*1000, 1.0)
}

// analyzeChange сигнал по изменению последней ставки
func analyzeChange(rates []*models.FundingRate) float64 {
	if len(rates) < 2 {
		return 0
	}

	change := rates[0].Rate - rates[1].Rate
	if change > 0 {
		return -100 * math.Min(change/0.001, 1.0)
	}
	return 100 * math.Min(math.Abs(change)/0.001, 1.0)
}

// calculateSlope вычисляет наклон линейной регрессии
func calculateSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	if math.IsNaN(slope) {
		return 0
	}

	return slope
}
