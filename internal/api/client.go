package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Error ошибка из поля error ответа, текст передается как есть
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// MarketQuery параметры /api/market
type MarketQuery struct {
	Action    string `url:"action"`
	Exchange  string `url:"exchange"`
	Symbol    string `url:"symbol,omitempty"`
	Timeframe string `url:"timeframe,omitempty"`
	Quote     string `url:"quote,omitempty"`
	Limit     int    `url:"limit,omitempty"`
}

// AggrQuery параметры /api/aggr
type AggrQuery struct {
	Action string `url:"action"`
	Limit  int    `url:"limit,omitempty"`
}

// SignalsQuery параметры /api/signals
type SignalsQuery struct {
	Symbol string `url:"symbol"`
	Limit  int    `url:"limit,omitempty"`
}

// Client клиент API для дашборда
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient создает клиента. timeout ограничивает один запрос.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// OrderBook стакан
func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	var out models.OrderBook
	err := c.get(ctx, "/api/market", MarketQuery{Action: ActionOrderBook, Exchange: DefaultExchange, Symbol: symbol, Limit: limit}, &out)
	return &out, err
}

// Ticker сводка за 24 часа
func (c *Client) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	var out models.Ticker
	err := c.get(ctx, "/api/market", MarketQuery{Action: ActionTicker, Exchange: DefaultExchange, Symbol: symbol}, &out)
	return &out, err
}

// Trades последние сделки
func (c *Client) Trades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	var out TradesResponse
	err := c.get(ctx, "/api/market", MarketQuery{Action: ActionTrades, Exchange: DefaultExchange, Symbol: symbol, Limit: limit}, &out)
	return out.Trades, err
}

// Markets список пар с котировкой quote
func (c *Client) Markets(ctx context.Context, quote string) ([]models.Market, error) {
	var out MarketsResponse
	err := c.get(ctx, "/api/market", MarketQuery{Action: ActionMarkets, Exchange: DefaultExchange, Quote: quote}, &out)
	return out.Markets, err
}

// Candles свечи, старые первыми
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Candle, error) {
	var out OHLCVResponse
	err := c.get(ctx, "/api/market", MarketQuery{Action: ActionOHLCV, Exchange: DefaultExchange, Symbol: symbol, Timeframe: timeframe, Limit: limit}, &out)
	return out.Candles, err
}

// AggrStats статистика ленты из файлов аналитики
func (c *Client) AggrStats(ctx context.Context) (*aggr.StatsResponse, error) {
	var out aggr.StatsResponse
	err := c.get(ctx, "/api/aggr", AggrQuery{Action: aggr.ActionStats}, &out)
	return &out, err
}

// Whales последние сделки китов
func (c *Client) Whales(ctx context.Context, limit int) ([]models.Trade, error) {
	var out struct {
		Whales []models.Trade `json:"whales"`
	}
	err := c.get(ctx, "/api/aggr", AggrQuery{Action: aggr.ActionWhales, Limit: limit}, &out)
	return out.Whales, err
}

// Liquidations последние ликвидации
func (c *Client) Liquidations(ctx context.Context, limit int) ([]models.Liquidation, error) {
	var out struct {
		Liquidations []models.Liquidation `json:"liquidations"`
	}
	err := c.get(ctx, "/api/aggr", AggrQuery{Action: aggr.ActionLiquidations, Limit: limit}, &out)
	return out.Liquidations, err
}

// Live снимок ленты сервера с последними ценами
func (c *Client) Live(ctx context.Context) (*feed.Snapshot, error) {
	var out feed.Snapshot
	err := c.get(ctx, "/api/aggr", AggrQuery{Action: ActionLive}, &out)
	return &out, err
}

// Signals последний сигнал анализатора и история по символу
func (c *Client) Signals(ctx context.Context, symbol string, limit int) (*SignalsResponse, error) {
	var out SignalsResponse
	err := c.get(ctx, "/api/signals", SignalsQuery{Symbol: symbol, Limit: limit}, &out)
	return &out, err
}

// News последние новости
func (c *Client) News(ctx context.Context, limit int) ([]models.NewsItem, error) {
	var out NewsResponse
	err := c.get(ctx, "/api/news", struct {
		Limit int `url:"limit,omitempty"`
	}{limit}, &out)
	return out.News, err
}

// Sentiment сводный индекс настроений
func (c *Client) Sentiment(ctx context.Context) (*models.Sentiment, error) {
	var out models.Sentiment
	err := c.get(ctx, "/api/sentiment", nil, &out)
	return &out, err
}

func (c *Client) get(ctx context.Context, path string, params interface{}, dest interface{}) error {
	url := c.baseURL + path
	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("ошибка кодирования параметров: %w", err)
		}
		if encoded := values.Encode(); encoded != "" {
			url += "?" + encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	// Поле error в ответе передается вызывающему как есть, независимо от статуса
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return &Error{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Status: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", path, err)
	}
	return nil
}
