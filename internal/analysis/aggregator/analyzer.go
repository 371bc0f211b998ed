package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/internal/analysis/funding"
	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/internal/analysis/signal"
	"github.com/skalibog/cryptodash/internal/analysis/technical"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TrainingRecorder получает примеры для обучения
type TrainingRecorder interface {
	RecordTraining(ex models.TrainingExample) error
}

// Config настройки сервиса сигналов
type Config struct {
	Symbols     []string
	Interval    string
	Limit       int
	Concurrency int
	Ichimoku    ichimoku.Config
	Technical   technical.Config
	Funding     funding.Config
}

// Analyzer объединяет аналитические компоненты и считает сигналы по символам
type Analyzer struct {
	config        Config
	storage       storage.Storage
	recorder      TrainingRecorder
	engine        *ichimoku.Engine
	signalAnal    *signal.Analyzer
	technicalAnal *technical.Analyzer
	fundingAnal   *funding.Analyzer

	mu     sync.RWMutex
	latest map[string]*models.SignalResult
	now    func() time.Time
}

// NewAnalyzer создает новый анализатор. recorder может быть nil.
func NewAnalyzer(cfg Config, store storage.Storage, recorder TrainingRecorder) *Analyzer {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	engine := ichimoku.NewEngine(cfg.Ichimoku)
	if cfg.Limit < engine.Config().MinCandles() {
		cfg.Limit = 200
	}

	return &Analyzer{
		config:        cfg,
		storage:       store,
		recorder:      recorder,
		engine:        engine,
		signalAnal:    signal.NewAnalyzer(),
		technicalAnal: technical.NewAnalyzer(cfg.Technical),
		fundingAnal:   funding.NewAnalyzer(cfg.Funding),
		latest:        make(map[string]*models.SignalResult),
		now:           time.Now,
	}
}

// GenerateSignals генерирует сигналы для всех отслеживаемых символов.
// Ошибка по символу логируется, остальные символы считаются.
func (a *Analyzer) GenerateSignals(ctx context.Context) (map[string]*models.SignalResult, error) {
	results := make(map[string]*models.SignalResult)
	var mutex sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)

	for _, symbol := range a.config.Symbols {
		symbol := symbol
		g.Go(func() error {
			result, err := a.GenerateSignal(ctx, symbol)
			if err != nil {
				logger.Warn("Ошибка генерации сигнала", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}

			mutex.Lock()
			results[symbol] = result
			mutex.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// GenerateSignal считает сигнал для одного символа, сохраняет его и пишет пример для обучения
func (a *Analyzer) GenerateSignal(ctx context.Context, symbol string) (*models.SignalResult, error) {
	candles, err := a.storage.GetCandles(ctx, symbol, a.config.Interval, a.config.Limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("нет свечей для %s", symbol)
	}

	res := a.engine.Calculate(candles)
	conditions, ok := a.signalAnal.Conditions(candles, res)
	sig := models.Signal{Type: models.Neutral}
	if ok {
		sig = signal.Evaluate(conditions)
	} else {
		logger.Debug("Недостаточно свечей для Ichimoku",
			zap.String("symbol", symbol),
			zap.Int("candles", len(candles)),
			zap.Int("required", a.engine.Config().MinCandles()))
	}

	summary := a.technicalAnal.Summarize(candles)
	components := summary.Components()
	components["ichimoku"] = conditions.Score()

	if score, err := a.fundingAnal.Analyze(ctx, a.storage, symbol); err == nil {
		components["funding"] = score
	} else {
		logger.Debug("Анализ финансирования недоступен", zap.String("symbol", symbol), zap.Error(err))
	}

	last := candles[len(candles)-1]
	result := &models.SignalResult{
		Symbol:       symbol,
		Interval:     a.config.Interval,
		Timestamp:    a.now(),
		Signal:       sig,
		CurrentPrice: last.Close,
		Components:   components,
	}

	if err := a.storage.SaveSignal(ctx, result); err != nil {
		logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", symbol), zap.Error(err))
	}

	if a.recorder != nil && ok {
		ex := models.TrainingExample{
			Timestamp: result.Timestamp,
			Symbol:    symbol,
			Interval:  a.config.Interval,
			Price:     last.Close,
			Signal:    sig,
			Conditions: map[string]int{
				"price_vs_cloud": int(conditions.PriceVsCloud),
				"tenkan_kijun":   int(conditions.TenkanKijun),
				"cloud_color":    int(conditions.CloudColor),
				"chikou":         int(conditions.ChikouVsPast),
				"price_vs_kijun": int(conditions.PriceVsKijun),
			},
			Features: components,
		}
		if err := a.recorder.RecordTraining(ex); err != nil {
			logger.Warn("Не удалось записать пример", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	a.mu.Lock()
	a.latest[symbol] = result
	a.mu.Unlock()

	logger.Debug("Сигнал рассчитан",
		zap.String("symbol", symbol),
		zap.String("signal", string(sig.Type)),
		zap.Float64("confidence", sig.Confidence))

	return result, nil
}

// Latest последний рассчитанный сигнал
func (a *Analyzer) Latest(symbol string) (*models.SignalResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.latest[symbol]
	return r, ok
}

// Run пересчитывает сигналы с периодом every до отмены контекста
func (a *Analyzer) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			signals, err := a.GenerateSignals(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Warn("Ошибка при генерации сигналов", zap.Error(err))
				continue
			}
			logger.Info("Сигналы обновлены", zap.Int("count", len(signals)))
		case <-ctx.Done():
			return
		}
	}
}

// GetSignalHistory возвращает историю сигналов для символа
func (a *Analyzer) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error) {
	return a.storage.GetSignalHistory(ctx, symbol, limit)
}
