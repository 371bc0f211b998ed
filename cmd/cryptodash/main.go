package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "cryptodash",
		Short:         "Криптовалютный дашборд: API, лента сделок, аналитика и терминальный интерфейс",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "путь к файлу конфигурации")

	root.AddCommand(newServeCmd(), newDashboardCmd(), newScrapeCmd())

	// Создаем контекст, отменяемый сигналами завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}

// loadConfig читает конфигурацию и инициализирует логгер.
// Без файла используется конфигурация по умолчанию.
// Дашборд читает JSON-лог сервера, поэтому очищает его только serve.
func loadConfig(truncateLogs bool) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.Default()
		initLogger(cfg, truncateLogs)
		logger.Warn("Файл конфигурации не найден, используются значения по умолчанию", zap.String("path", configPath))
		return cfg, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	initLogger(cfg, truncateLogs)
	return cfg, nil
}

func initLogger(cfg *config.Config, truncate bool) {
	opts := cfg.Logging.LoggerOptions()
	opts.Truncate = truncate
	logger.Init(opts)
}
