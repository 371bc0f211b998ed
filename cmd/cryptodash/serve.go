package main

import (
	"context"
	"net/http"
	"time"

	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/analysis/aggregator"
	"github.com/skalibog/cryptodash/internal/analysis/funding"
	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/internal/analysis/technical"
	"github.com/skalibog/cryptodash/internal/api"
	"github.com/skalibog/cryptodash/internal/cache"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/exchange"
	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/internal/news"
	"github.com/skalibog/cryptodash/internal/recorder"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API, лента сделок, сборщики данных, сигналы и новости",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func ichimokuConfig(cfg *config.Config) ichimoku.Config {
	return ichimoku.Config{
		Conversion:   cfg.Ichimoku.Conversion,
		Base:         cfg.Ichimoku.Base,
		LeadingSpanB: cfg.Ichimoku.LeadingSpanB,
		Displacement: cfg.Ichimoku.Displacement,
	}
}

func fundingConfig(cfg *config.Config) funding.Config {
	fc := funding.DefaultConfig()
	if cfg.News.FundingThreshold > 0 {
		fc.ExtremeThreshold = cfg.News.FundingThreshold
	}
	return fc
}

// openCache кэш ответов API; недоступный Redis заменяется кэшем в памяти
func openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	c, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis недоступен, используется кэш в памяти", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemory()
	}
	return c
}

func runServe(ctx context.Context, cfg *config.Config) error {
	symbols := cfg.Trading.Symbols

	// Инициализируем хранилище
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	// Инициализируем клиент биржи
	market, err := exchange.New(api.DefaultExchange, cfg.Binance)
	if err != nil {
		return err
	}

	responses := openCache(ctx, cfg)
	defer responses.Close()

	rec, err := recorder.New(cfg.Data.Dir, store)
	if err != nil {
		return err
	}
	defer rec.Close()

	// Лента сделок и ликвидаций пишется в файлы аналитики
	agg := feed.NewAggregator(feed.Config{
		LargeThreshold:  cfg.Feed.LargeThreshold,
		WhaleThreshold:  cfg.Feed.WhaleThreshold,
		MaxTrades:       cfg.Feed.MaxTrades,
		MaxLiquidations: cfg.Feed.MaxLiquidations,
	})
	stream := feed.NewStream(cfg.Feed.URL, agg, rec)
	stream.Subscribe(ctx, symbols)
	defer stream.Close()

	collectors := []exchange.DataCollector{
		exchange.NewCandleCollector(market, store, symbols, cfg.Trading.Interval, cfg.Trading.CandlesLimit,
			time.Duration(cfg.Trading.CollectSeconds)*time.Second),
		exchange.NewFundingRateCollector(market, store, symbols, time.Duration(cfg.Trading.CollectSeconds)*time.Second),
	}

	analyzer := aggregator.NewAnalyzer(aggregator.Config{
		Symbols:   symbols,
		Interval:  cfg.Trading.Interval,
		Limit:     cfg.Trading.CandlesLimit,
		Ichimoku:  ichimokuConfig(cfg),
		Technical: technical.DefaultConfig(),
		Funding:   fundingConfig(cfg),
	}, store, rec)

	files := news.NewFiles(cfg.Data.Dir)
	newsService := news.NewService(
		news.NewScraper(cfg.News.Sources, &http.Client{Timeout: 15 * time.Second}),
		news.NewSentimentAggregator(agg, store, fundingConfig(cfg), symbols),
		files,
	)

	server := api.NewServer(api.Deps{
		Market:  market,
		Cache:   responses,
		Aggr:    aggr.NewReader(cfg.Data.Dir),
		Live:    stream,
		Signals: analyzer,
		News:    files,
		Timeout: time.Duration(cfg.API.RequestTimeoutSeconds) * time.Second,
	})

	logger.Info("Запуск сервера",
		zap.Strings("symbols", symbols),
		zap.String("listen", cfg.API.Listen),
		zap.String("storage", cfg.Storage.Type))

	g, ctx := errgroup.WithContext(ctx)
	for _, collector := range collectors {
		collector := collector // Локальная копия для горутины
		g.Go(func() error {
			defer collector.Stop()
			return collector.Start(ctx)
		})
	}
	g.Go(func() error {
		rec.Run(ctx, agg, time.Duration(cfg.Feed.StatsFlushSeconds)*time.Second)
		return nil
	})
	g.Go(func() error {
		analyzer.Run(ctx, time.Duration(cfg.Trading.AnalysisSeconds)*time.Second)
		return nil
	})
	g.Go(func() error {
		newsService.Run(ctx, time.Duration(cfg.News.IntervalSeconds)*time.Second)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx, cfg.API.Listen)
	})

	err = g.Wait()
	logger.Info("Сервер остановлен")
	return err
}
