// Package recorder дописывает события ленты и примеры для обучения в построчные JSON-файлы.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// StatsSource источник статистики ленты
type StatsSource interface {
	Stats() models.FeedStats
	Connected() bool
}

// Recorder пишет whales, liquidations, stats и training в <data>/aggr
type Recorder struct {
	dir   string
	store storage.Storage

	mu    sync.Mutex
	files map[string]*os.File
	now   func() time.Time
}

// New создает каталог и рекордер. store может быть nil.
func New(dataDir string, store storage.Storage) (*Recorder, error) {
	dir := filepath.Join(dataDir, aggr.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}
	return &Recorder{
		dir:   dir,
		store: store,
		files: make(map[string]*os.File),
		now:   time.Now,
	}, nil
}

// OnTrade записывает сделки китов, остальные игнорируются
func (r *Recorder) OnTrade(t models.Trade) {
	if !t.IsWhale {
		return
	}
	if err := r.append(aggr.WhalesFile, t); err != nil {
		logger.Warn("Не удалось записать сделку кита", zap.String("symbol", t.Symbol), zap.Error(err))
	}
}

// OnLiquidation записывает ликвидацию
func (r *Recorder) OnLiquidation(l models.Liquidation) {
	if err := r.append(aggr.LiquidationsFile, l); err != nil {
		logger.Warn("Не удалось записать ликвидацию", zap.String("symbol", l.Symbol), zap.Error(err))
	}
}

// RecordTraining записывает пример для обучения
func (r *Recorder) RecordTraining(ex models.TrainingExample) error {
	return r.append(aggr.TrainingFile, ex)
}

// RecordStats пишет снимок статистики в файл и в хранилище
func (r *Recorder) RecordStats(ctx context.Context, src StatsSource) error {
	stats := src.Stats()
	rec := aggr.StatsRecord{
		Timestamp: r.now(),
		Connected: src.Connected(),
		Stats:     stats,
		CVD:       stats.CVD(),
	}
	if err := r.append(aggr.StatsFile, rec); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.SaveFeedStats(ctx, stats, rec.Timestamp); err != nil {
			return fmt.Errorf("ошибка сохранения статистики: %w", err)
		}
	}
	return nil
}

// Run пишет снимок статистики каждые every до отмены контекста, последний снимок при выходе
func (r *Recorder) Run(ctx context.Context, src StatsSource, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RecordStats(ctx, src); err != nil {
				logger.Warn("Не удалось записать статистику ленты", zap.Error(err))
			}
		case <-ctx.Done():
			if err := r.RecordStats(context.Background(), src); err != nil {
				logger.Warn("Не удалось записать статистику ленты", zap.Error(err))
			}
			return
		}
	}
}

// Close закрывает файлы
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ошибка закрытия %s: %w", name, err)
		}
		delete(r.files, name)
	}
	return firstErr
}

func (r *Recorder) append(name string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[name]
	if !ok {
		f, err = os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("ошибка открытия %s: %w", name, err)
		}
		r.files[name] = f
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", name, err)
	}
	return nil
}
