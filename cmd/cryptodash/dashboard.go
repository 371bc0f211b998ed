package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/internal/api"
	"github.com/skalibog/cryptodash/internal/cache"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/internal/ui"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDashboardCmd() *cobra.Command {
	var apiURL string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Терминальный дашборд поверх HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.Dashboard.APIURL = apiURL
			}
			return runDashboard(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "", "адрес HTTP API (по умолчанию dashboard.api_url)")
	return cmd
}

// paperStore выбирает хранилище состояния счета
func paperStore(ctx context.Context, cfg *config.Config) (trading.Store, func()) {
	if cfg.Paper.StateBackend == "redis" {
		c, err := cache.NewRedis(ctx, cfg.Redis)
		if err == nil {
			return trading.NewCacheStore(c), func() { _ = c.Close() }
		}
		logger.Warn("Redis недоступен, состояние счета хранится в файле",
			zap.String("path", cfg.Paper.StatePath), zap.Error(err))
	}
	return trading.NewFileStore(cfg.Paper.StatePath), func() {}
}

func runDashboard(ctx context.Context, cfg *config.Config) error {
	store, closeStore := paperStore(ctx, cfg)
	defer closeStore()

	var journal trading.Journal
	if cfg.Postgres.Enabled {
		pg, err := trading.NewPostgresJournal(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Warn("Журнал сделок недоступен", zap.Error(err))
		} else {
			defer pg.Close()
			journal = pg
		}
	}

	state := trading.NewState(trading.Config{
		InitialBalance: decimal.NewFromFloat(cfg.Paper.InitialBalance),
		FeeRate:        decimal.NewFromFloat(cfg.Paper.FeeRate),
		Settings: trading.Settings{
			Timeframe:      cfg.Trading.Interval,
			ShowIndicators: cfg.Dashboard.ShowIndicators,
		},
	}, store, journal)

	client := api.NewClient(cfg.Dashboard.APIURL, time.Duration(cfg.Dashboard.RequestTimeoutSecs)*time.Second)

	logger.Info("Запуск дашборда", zap.String("api", cfg.Dashboard.APIURL), zap.String("state", cfg.Paper.StateBackend))

	dashboard := ui.New(ui.Options{
		Dashboard: cfg.Dashboard,
		Trading:   cfg.Trading,
		Feed:      cfg.Feed,
		Paper:     cfg.Paper,
		Ichimoku:  ichimokuConfig(cfg),
	}, client, state, nil)

	return dashboard.Run(ctx)
}
