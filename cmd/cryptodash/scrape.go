package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/news"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Однократный сбор новостей и пересчет индекса страха и жадности",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cfg)
		},
	}
}

// recordedFlow статистика ленты из последнего снимка stats.jsonl
type recordedFlow struct {
	reader *aggr.Reader
}

func (f recordedFlow) Stats() models.FeedStats {
	resp, err := f.reader.Stats()
	if err != nil {
		logger.Debug("Снимок статистики ленты недоступен", zap.Error(err))
		return models.FeedStats{}
	}
	return resp.Latest.Stats
}

func runScrape(ctx context.Context, cfg *config.Config) error {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	service := news.NewService(
		news.NewScraper(cfg.News.Sources, &http.Client{Timeout: 15 * time.Second}),
		news.NewSentimentAggregator(recordedFlow{reader: aggr.NewReader(cfg.Data.Dir)}, store, fundingConfig(cfg), cfg.Trading.Symbols),
		news.NewFiles(cfg.Data.Dir),
	)

	sentiment, err := service.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Индекс страха и жадности: %d (%s)\n", sentiment.FearGreedIndex, sentiment.FearGreedLabel)
	return nil
}
