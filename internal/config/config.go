package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/skalibog/cryptodash/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Trading   TradingConfig   `yaml:"trading"`
	Ichimoku  IchimokuConfig  `yaml:"ichimoku"`
	Feed      FeedConfig      `yaml:"feed"`
	Paper     PaperConfig     `yaml:"paper"`
	API       APIConfig       `yaml:"api"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Data      DataConfig      `yaml:"data"`
	News      NewsConfig      `yaml:"news"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig список инструментов и таймфреймов дашборда
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	Timeframes      []string `yaml:"timeframes"`
	CandlesLimit    int      `yaml:"candles_limit"`
	CollectSeconds  int      `yaml:"collect_seconds"`
	AnalysisSeconds int      `yaml:"analysis_seconds"`
}

// IchimokuConfig длины окон индикатора
type IchimokuConfig struct {
	Conversion   int `yaml:"conversion"`
	Base         int `yaml:"base"`
	LeadingSpanB int `yaml:"leading_span_b"`
	Displacement int `yaml:"displacement"`
}

// FeedConfig настройки потока сделок и ликвидаций
type FeedConfig struct {
	URL               string  `yaml:"url"`
	LargeThreshold    float64 `yaml:"large_threshold"`
	WhaleThreshold    float64 `yaml:"whale_threshold"`
	MaxTrades         int     `yaml:"max_trades"`
	MaxLiquidations   int     `yaml:"max_liquidations"`
	StatsFlushSeconds int     `yaml:"stats_flush_seconds"`
}

// PaperConfig настройки бумажной торговли
type PaperConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	FeeRate        float64 `yaml:"fee_rate"`
	StateBackend   string  `yaml:"state_backend"` // file | redis
	StatePath      string  `yaml:"state_path"`
	OrderSize      float64 `yaml:"order_size"`
	Leverage       int     `yaml:"leverage"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`   // отрицательное значение отключает стоп
	TakeProfitPct  float64 `yaml:"take_profit_pct"` // отрицательное значение отключает тейк
}

// APIConfig настройки HTTP API
type APIConfig struct {
	Listen                string `yaml:"listen"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// DashboardConfig настройки терминального интерфейса
type DashboardConfig struct {
	APIURL             string `yaml:"api_url"`
	OrderBookSeconds   int    `yaml:"orderbook_seconds"`
	TickerSeconds      int    `yaml:"ticker_seconds"`
	TradesSeconds      int    `yaml:"trades_seconds"`
	CandlesSeconds     int    `yaml:"candles_seconds"`
	AggrSeconds        int    `yaml:"aggr_seconds"`
	NewsSeconds        int    `yaml:"news_seconds"`
	ShowIndicators     bool   `yaml:"show_indicators"`
	LogFile            string `yaml:"log_file"`
	ChartHeight        int    `yaml:"chart_height"`
	RequestTimeoutSecs int    `yaml:"request_timeout_seconds"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"` // influxdb | memory
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// RedisConfig настройки Redis
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// PostgresConfig настройки журнала сделок
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// DataConfig каталог локальных данных
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// NewsConfig настройки сборщика новостей
type NewsConfig struct {
	Sources          []string `yaml:"sources"`
	IntervalSeconds  int      `yaml:"interval_seconds"`
	FundingThreshold float64  `yaml:"funding_extreme_threshold"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	JSONFile string `yaml:"json_file"`
}

// LoggerOptions переводит настройки в опции логгера
func (l LoggingConfig) LoggerOptions() logger.Options {
	return logger.Options{
		Level:    l.Level,
		File:     l.File,
		JSONFile: l.JSONFile,
		Truncate: true,
	}
}

// Load загружает конфигурацию из файла, переменные окружения и .env переопределяют секреты
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// .env не обязателен
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Не удалось прочитать .env", zap.Error(err))
	}
	cfg.applyEnv()

	logger.Info("Загружена конфигурация", zap.String("path", path), zap.Strings("symbols", cfg.Trading.Symbols))
	return cfg, nil
}

// Parse разбирает YAML и заполняет значения по умолчанию
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default конфигурация без файла
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults заполняет пустые значения
func (c *Config) ApplyDefaults() {
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1h"
	}
	if len(c.Trading.Timeframes) == 0 {
		c.Trading.Timeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}
	}
	setInt(&c.Trading.CandlesLimit, 200)
	setInt(&c.Trading.CollectSeconds, 30)
	setInt(&c.Trading.AnalysisSeconds, 60)

	setInt(&c.Ichimoku.Conversion, 9)
	setInt(&c.Ichimoku.Base, 26)
	setInt(&c.Ichimoku.LeadingSpanB, 52)
	setInt(&c.Ichimoku.Displacement, 26)

	if c.Feed.URL == "" {
		c.Feed.URL = "wss://fstream.binance.com/stream"
	}
	setFloat(&c.Feed.LargeThreshold, 500000)
	setFloat(&c.Feed.WhaleThreshold, 1000000)
	setInt(&c.Feed.MaxTrades, 50)
	setInt(&c.Feed.MaxLiquidations, 50)
	setInt(&c.Feed.StatsFlushSeconds, 60)

	setFloat(&c.Paper.InitialBalance, 10000)
	setFloat(&c.Paper.FeeRate, 0.0004)
	if c.Paper.StateBackend == "" {
		c.Paper.StateBackend = "file"
	}
	if c.Paper.StatePath == "" {
		c.Paper.StatePath = "data/paper_state.json"
	}
	setFloat(&c.Paper.OrderSize, 1000)
	setInt(&c.Paper.Leverage, 1)
	setPct(&c.Paper.StopLossPct, 2)
	setPct(&c.Paper.TakeProfitPct, 4)

	if c.API.Listen == "" {
		c.API.Listen = ":3000"
	}
	setInt(&c.API.RequestTimeoutSeconds, 15)

	if c.Dashboard.APIURL == "" {
		c.Dashboard.APIURL = "http://localhost:3000"
	}
	setInt(&c.Dashboard.OrderBookSeconds, 2)
	setInt(&c.Dashboard.TickerSeconds, 5)
	setInt(&c.Dashboard.TradesSeconds, 3)
	setInt(&c.Dashboard.CandlesSeconds, 10)
	setInt(&c.Dashboard.AggrSeconds, 5)
	setInt(&c.Dashboard.NewsSeconds, 10)
	setInt(&c.Dashboard.ChartHeight, 20)
	setInt(&c.Dashboard.RequestTimeoutSecs, 8)
	if c.Dashboard.LogFile == "" {
		c.Dashboard.LogFile = "app.json.log"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "cryptodash:"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if len(c.News.Sources) == 0 {
		c.News.Sources = []string{"https://api.coingecko.com/api/v3/news"}
	}
	setInt(&c.News.IntervalSeconds, 300)
	setFloat(&c.News.FundingThreshold, 0.0005)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "app.log"
	}
	if c.Logging.JSONFile == "" {
		c.Logging.JSONFile = "app.json.log"
	}
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Feed.WhaleThreshold < c.Feed.LargeThreshold {
		return fmt.Errorf("feed.whale_threshold (%.0f) меньше feed.large_threshold (%.0f)",
			c.Feed.WhaleThreshold, c.Feed.LargeThreshold)
	}
	for name, v := range map[string]int{
		"ichimoku.conversion":     c.Ichimoku.Conversion,
		"ichimoku.base":           c.Ichimoku.Base,
		"ichimoku.leading_span_b": c.Ichimoku.LeadingSpanB,
		"ichimoku.displacement":   c.Ichimoku.Displacement,
	} {
		if v < 1 {
			return fmt.Errorf("%s должен быть положительным, получено %d", name, v)
		}
	}
	switch c.Storage.Type {
	case "influxdb", "memory":
	default:
		return fmt.Errorf("неизвестный тип хранилища: %q", c.Storage.Type)
	}
	switch c.Paper.StateBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("неизвестное хранилище состояния: %q", c.Paper.StateBackend)
	}
	return nil
}

// applyEnv переопределяет секреты из окружения
func (c *Config) applyEnv() {
	setEnv(&c.Binance.APIKey, "BINANCE_API_KEY")
	setEnv(&c.Binance.APISecret, "BINANCE_API_SECRET")
	setEnv(&c.Storage.Token, "INFLUXDB_TOKEN")
	setEnv(&c.Redis.Password, "REDIS_PASSWORD")
	setEnv(&c.Postgres.DSN, "POSTGRES_DSN")
}

func setEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst <= 0 {
		*dst = def
	}
}

// setPct подставляет def только вместо незаданного нуля, отрицательное значение остается
func setPct(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
