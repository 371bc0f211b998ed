// Package api HTTP API дашборда: прокси рыночных данных, аналитика ленты, новости.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/cache"
	"github.com/skalibog/cryptodash/internal/exchange"
	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/internal/news"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Константы API
const (
	DefaultTimeout      = 15 * time.Second
	DefaultExchange     = "binance"
	DefaultSymbol       = "BTC/USDT"
	DefaultTimeframe    = "1h"
	ServiceName         = "cryptodash"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Время жизни ответов в кэше по действиям
var cacheTTL = map[string]time.Duration{
	ActionTicker:    2 * time.Second,
	ActionOrderBook: time.Second,
	ActionMarkets:   time.Hour,
	ActionOHLCV:     5 * time.Second,
}

// LiveFeed лента сделок в памяти процесса
type LiveFeed interface {
	Live() feed.Snapshot
}

// SignalSource последние сигналы анализатора и сохраненная история
type SignalSource interface {
	Latest(symbol string) (*models.SignalResult, bool)
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error)
}

// Deps зависимости сервера. Все, кроме Market, могут быть nil.
type Deps struct {
	Market  exchange.MarketData
	Cache   cache.Cache
	Aggr    *aggr.Reader
	Live    LiveFeed
	Signals SignalSource
	News    *news.Files
	Timeout time.Duration
}

// Server обработчики HTTP API
type Server struct {
	market  exchange.MarketData
	cache   cache.Cache
	aggr    *aggr.Reader
	live    LiveFeed
	signals SignalSource
	news    *news.Files
	timeout time.Duration
	started time.Time
}

// NewServer создает сервер API
func NewServer(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	return &Server{
		market:  deps.Market,
		cache:   deps.Cache,
		aggr:    deps.Aggr,
		live:    deps.Live,
		signals: deps.Signals,
		news:    deps.News,
		timeout: deps.Timeout,
		started: time.Now(),
	}
}

// Router настраивает маршруты
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/api/market", s.Market)
	router.GET("/api/aggr", s.Aggr)
	router.GET("/api/signals", s.Signals)
	router.GET("/api/news", s.News)
	router.GET("/api/sentiment", s.Sentiment)
	router.GET("/health", s.HealthCheck)

	return router
}

// Run слушает addr до отмены контекста
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API запущен", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("HTTP API остановлен")
		return nil
	}
}
