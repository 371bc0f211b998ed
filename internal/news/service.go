package news

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Service цикл сбора новостей и пересчета индекса
type Service struct {
	scraper   *Scraper
	sentiment *SentimentAggregator
	files     *Files
}

// NewService собирает сервис из частей
func NewService(scraper *Scraper, sentiment *SentimentAggregator, files *Files) *Service {
	return &Service{scraper: scraper, sentiment: sentiment, files: files}
}

// RunOnce загружает новости, сохраняет их и индекс настроений
func (s *Service) RunOnce(ctx context.Context) (models.Sentiment, error) {
	items, mock := s.scraper.Fetch(ctx)
	added, err := s.files.SaveNews(items)
	if err != nil {
		return models.Sentiment{}, fmt.Errorf("ошибка сохранения новостей: %w", err)
	}

	sentiment := s.sentiment.Calculate(ctx, items)
	if err := s.files.SaveSentiment(sentiment); err != nil {
		return sentiment, fmt.Errorf("ошибка сохранения индекса: %w", err)
	}

	logger.Info("Новости обновлены",
		zap.Int("fetched", len(items)),
		zap.Int("added", added),
		zap.Bool("mock", mock),
		zap.Int("fear_greed", sentiment.FearGreedIndex),
		zap.String("label", sentiment.FearGreedLabel))
	return sentiment, nil
}

// Run выполняет цикл сразу и далее каждые every до отмены контекста
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Ошибка сбора новостей", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
