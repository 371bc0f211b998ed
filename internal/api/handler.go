package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/cache"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Действия /api/market
const (
	ActionOrderBook = "orderbook"
	ActionTicker    = "ticker"
	ActionTrades    = "trades"
	ActionMarkets   = "markets"
	ActionOHLCV     = "ohlcv"
)

// ActionLive действие /api/aggr: снимок ленты в памяти процесса вместо файлов
const ActionLive = "live"

// Параметры /api/signals
const (
	DefaultSignalsLimit = 20
	maxSignalsLimit     = 500
)

var (
	// ErrUnsupportedAction неизвестное действие
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrInvalidRequest некорректные параметры
	ErrInvalidRequest = errors.New("invalid request")
)

// TradesResponse ответ action=trades
type TradesResponse struct {
	Trades []models.Trade `json:"trades"`
}

// MarketsResponse ответ action=markets
type MarketsResponse struct {
	Markets []models.Market `json:"markets"`
}

// OHLCVResponse ответ action=ohlcv
type OHLCVResponse struct {
	Candles []*models.Candle `json:"candles"`
}

// SignalsResponse ответ /api/signals. Latest nil, пока анализатор не посчитал символ.
type SignalsResponse struct {
	Symbol  string                 `json:"symbol"`
	Latest  *models.SignalResult   `json:"latest"`
	History []*models.SignalResult `json:"history"`
}

// NewsResponse ответ /api/news
type NewsResponse struct {
	News []models.NewsItem `json:"news"`
}

// MarketRequest разобранные параметры /api/market
type MarketRequest struct {
	Action    string
	Exchange  string
	Symbol    string
	Timeframe string
	Quote     string // фильтр markets, пусто для всех
	Limit     int
}

// ParseMarketRequest проверяет параметры и подставляет значения по умолчанию
func ParseMarketRequest(c *gin.Context) (MarketRequest, error) {
	req := MarketRequest{
		Action:    strings.ToLower(c.Query("action")),
		Exchange:  strings.ToLower(c.DefaultQuery("exchange", DefaultExchange)),
		Symbol:    strings.ToUpper(c.DefaultQuery("symbol", DefaultSymbol)),
		Timeframe: c.DefaultQuery("timeframe", DefaultTimeframe),
		Quote:     strings.ToUpper(c.Query("quote")),
	}

	if req.Exchange != DefaultExchange {
		return req, fmt.Errorf("%w: exchange %q is not supported", ErrInvalidRequest, req.Exchange)
	}

	maxLimit := 1000
	switch req.Action {
	case ActionOrderBook:
		req.Limit = 20
		maxLimit = 5000
	case ActionTrades:
		req.Limit = 50
	case ActionOHLCV:
		req.Limit = 100
	case ActionTicker, ActionMarkets:
	default:
		return req, fmt.Errorf("%w: %q", ErrUnsupportedAction, req.Action)
	}

	if req.Action != ActionMarkets && !strings.Contains(req.Symbol, "/") {
		return req, fmt.Errorf("%w: symbol must be BASE/QUOTE, got %q", ErrInvalidRequest, req.Symbol)
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return req, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, maxLimit)
		}
		req.Limit = limit
	}
	return req, nil
}

func (r MarketRequest) cacheKey() string {
	if r.Action == ActionMarkets {
		return fmt.Sprintf("market:%s:markets:%s", r.Exchange, r.Quote)
	}
	return fmt.Sprintf("market:%s:%s:%s:%s:%d", r.Exchange, r.Action, r.Symbol, r.Timeframe, r.Limit)
}

// Market обрабатывает GET /api/market
func (s *Server) Market(c *gin.Context) {
	req, err := ParseMarketRequest(c)
	if err != nil {
		s.handleError(c, err, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	key := req.cacheKey()
	if s.cache != nil {
		if body, ok := s.cached(ctx, req, key); ok {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, body)
			return
		}
	}

	body, err := s.fetchMarket(ctx, req)
	if err != nil {
		s.handleError(c, err, http.StatusBadGateway)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, body, cacheTTL[req.Action]); err != nil {
			logger.Warn("Не удалось записать ответ в кэш", zap.String("key", key), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) fetchMarket(ctx context.Context, req MarketRequest) (interface{}, error) {
	switch req.Action {
	case ActionOrderBook:
		return s.market.GetOrderBook(ctx, req.Symbol, req.Limit)
	case ActionTicker:
		return s.market.GetTicker(ctx, req.Symbol)
	case ActionTrades:
		trades, err := s.market.GetRecentTrades(ctx, req.Symbol, req.Limit)
		if err != nil {
			return nil, err
		}
		if trades == nil {
			trades = []models.Trade{}
		}
		return TradesResponse{Trades: trades}, nil
	case ActionMarkets:
		markets, err := s.market.GetMarkets(ctx, req.Quote)
		if err != nil {
			return nil, err
		}
		if markets == nil {
			markets = []models.Market{}
		}
		return MarketsResponse{Markets: markets}, nil
	case ActionOHLCV:
		candles, err := s.market.GetKlines(ctx, req.Symbol, req.Timeframe, req.Limit)
		if err != nil {
			return nil, err
		}
		if candles == nil {
			candles = []*models.Candle{}
		}
		return OHLCVResponse{Candles: candles}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, req.Action)
}

// cached читает ответ из кэша в тип, соответствующий действию
func (s *Server) cached(ctx context.Context, req MarketRequest, key string) (interface{}, bool) {
	var body interface{}
	var err error
	switch req.Action {
	case ActionOrderBook:
		body, err = cachedAs[models.OrderBook](ctx, s.cache, key)
	case ActionTicker:
		body, err = cachedAs[models.Ticker](ctx, s.cache, key)
	case ActionTrades:
		body, err = cachedAs[TradesResponse](ctx, s.cache, key)
	case ActionMarkets:
		body, err = cachedAs[MarketsResponse](ctx, s.cache, key)
	case ActionOHLCV:
		body, err = cachedAs[OHLCVResponse](ctx, s.cache, key)
	default:
		return nil, false
	}
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Ошибка чтения кэша", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

func cachedAs[T any](ctx context.Context, c cache.Cache, key string) (interface{}, error) {
	var v T
	if err := c.Get(ctx, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Aggr обрабатывает GET /api/aggr
func (s *Server) Aggr(c *gin.Context) {
	if strings.ToLower(c.Query("action")) == ActionLive {
		s.liveFeed(c)
		return
	}
	if s.aggr == nil {
		s.handleError(c, errors.New("aggregated analytics are disabled"), http.StatusServiceUnavailable)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	body, err := s.aggr.Query(c.Query("action"), limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, aggr.ErrUnknownAction) {
			status = http.StatusBadRequest
		}
		s.handleError(c, err, status)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) liveFeed(c *gin.Context) {
	if s.live == nil {
		s.handleError(c, errors.New("live feed is disabled"), http.StatusServiceUnavailable)
		return
	}
	snap := s.live.Live()
	if snap.Trades == nil {
		snap.Trades = []models.Trade{}
	}
	if snap.Liquidations == nil {
		snap.Liquidations = []models.Liquidation{}
	}
	c.JSON(http.StatusOK, snap)
}

// Signals обрабатывает GET /api/signals
func (s *Server) Signals(c *gin.Context) {
	if s.signals == nil {
		s.handleError(c, errors.New("signals are disabled"), http.StatusServiceUnavailable)
		return
	}

	symbol := strings.ToUpper(c.DefaultQuery("symbol", DefaultSymbol))
	if !strings.Contains(symbol, "/") {
		s.handleError(c, fmt.Errorf("%w: symbol must be BASE/QUOTE, got %q", ErrInvalidRequest, symbol), http.StatusBadRequest)
		return
	}
	limit := DefaultSignalsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSignalsLimit {
			s.handleError(c, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, maxSignalsLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	history, err := s.signals.GetSignalHistory(ctx, symbol, limit)
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*models.SignalResult{}
	}

	resp := SignalsResponse{Symbol: symbol, History: history}
	if latest, ok := s.signals.Latest(symbol); ok {
		resp.Latest = latest
	}
	c.JSON(http.StatusOK, resp)
}

// News обрабатывает GET /api/news
func (s *Server) News(c *gin.Context) {
	if s.news == nil {
		c.JSON(http.StatusOK, NewsResponse{News: []models.NewsItem{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	items, err := s.news.LatestNews(limit)
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, NewsResponse{News: items})
}

// Sentiment обрабатывает GET /api/sentiment
func (s *Server) Sentiment(c *gin.Context) {
	if s.news == nil {
		s.handleError(c, errors.New("sentiment is disabled"), http.StatusServiceUnavailable)
		return
	}
	sentiment, err := s.news.LatestSentiment()
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, sentiment)
}

// HealthCheck обрабатывает GET /health
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"version":   ServiceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleError логирует ошибку и отвечает {"error": "..."}
func (s *Server) handleError(c *gin.Context, err error, status int) {
	requestID := c.GetString(RequestIDContextKey)
	logger.Warn("Ошибка API",
		zap.String("request_id", requestID),
		zap.String("path", c.Request.URL.Path),
		zap.String("action", c.Query("action")),
		zap.Int("status", status),
		zap.Error(err))

	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": requestID,
	})
}
