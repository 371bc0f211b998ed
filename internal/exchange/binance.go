package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/pkg/models"
)

// ErrUnsupportedExchange запрошена биржа, для которой нет клиента
var ErrUnsupportedExchange = errors.New("неподдерживаемая биржа")

// ErrNoData биржа вернула пустой ответ
var ErrNoData = errors.New("нет данных")

// MarketData рыночные данные, нужные API и сборщикам
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error)
	GetTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
	GetMarkets(ctx context.Context, quote string) ([]models.Market, error)
	GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error)
}

// BinanceClient клиент для взаимодействия с Binance
type BinanceClient struct {
	futures *futures.Client
	spot    *binance.Client
}

// New создает клиента по имени биржи
func New(name string, cfg config.BinanceConfig) (MarketData, error) {
	switch strings.ToLower(name) {
	case "", "binance":
		return NewBinanceClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
	}
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) *BinanceClient {
	if cfg.Testnet {
		binance.UseTestnet = true
		futures.UseTestnet = true
	}

	return &BinanceClient{
		futures: futures.NewClient(cfg.APIKey, cfg.APISecret),
		spot:    binance.NewClient(cfg.APIKey, cfg.APISecret),
	}
}

// GetKlines получает исторические свечи, старые первыми
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.spot.NewKlinesService().
		Symbol(models.ExchangeSymbol(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	return ConvertKlines(symbol, interval, klines), nil
}

// GetOrderBook получает стакан заявок
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	ob, err := c.spot.NewDepthService().
		Symbol(models.ExchangeSymbol(symbol)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	orderBook := &models.OrderBook{
		Symbol:    models.DisplaySymbol(symbol),
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, len(ob.Asks)),
	}

	for i, bid := range ob.Bids {
		orderBook.Bids[i] = level(bid.Price, bid.Quantity)
	}

	for i, ask := range ob.Asks {
		orderBook.Asks[i] = level(ask.Price, ask.Quantity)
	}

	return orderBook, nil
}

// GetTicker получает сводку за 24 часа
func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	stats, err := c.spot.NewListPriceChangeStatsService().
		Symbol(models.ExchangeSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тикера: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: тикер %s", ErrNoData, symbol)
	}

	return ConvertTicker(stats[0]), nil
}

// GetRecentTrades получает последние сделки, новые первыми
func (c *BinanceClient) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	trades, err := c.spot.NewRecentTradesService().
		Symbol(models.ExchangeSymbol(symbol)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сделок: %w", err)
	}

	return ConvertTrades(symbol, trades), nil
}

// GetMarkets список активных пар с котировкой quote (пусто = все)
func (c *BinanceClient) GetMarkets(ctx context.Context, quote string) ([]models.Market, error) {
	info, err := c.spot.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка рынков: %w", err)
	}

	return ConvertMarkets(info.Symbols, quote), nil
}

// GetFundingRate получает текущую ставку финансирования
func (c *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	rates, err := c.futures.NewPremiumIndexService().
		Symbol(models.ExchangeSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования: %w", err)
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: ставка финансирования для %s", ErrNoData, symbol)
	}

	return &models.FundingRate{
		Symbol:          models.DisplaySymbol(symbol),
		Rate:            parseFloat(rates[0].LastFundingRate),
		Timestamp:       time.Now(),
		NextFundingTime: time.UnixMilli(rates[0].NextFundingTime),
	}, nil
}

// ConvertKlines переводит свечи биржи в модель
func ConvertKlines(symbol, interval string, klines []*binance.Kline) []*models.Candle {
	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		candles = append(candles, &models.Candle{
			Symbol:    models.DisplaySymbol(symbol),
			Interval:  interval,
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}
	return candles
}

// ConvertTicker переводит 24-часовую статистику в тикер
func ConvertTicker(s *binance.PriceChangeStats) *models.Ticker {
	return &models.Ticker{
		Symbol:     models.DisplaySymbol(s.Symbol),
		Last:       parseFloat(s.LastPrice),
		High:       parseFloat(s.HighPrice),
		Low:        parseFloat(s.LowPrice),
		Volume:     parseFloat(s.Volume),
		Change:     parseFloat(s.PriceChange),
		Percentage: parseFloat(s.PriceChangePercent),
		Timestamp:  time.UnixMilli(s.CloseTime),
	}
}

// ConvertTrades переводит сделки, покупатель-мейкер означает продажу
func ConvertTrades(symbol string, trades []*binance.Trade) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	// Биржа отдает старые первыми
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t == nil {
			continue
		}
		side := models.SideBuy
		if t.IsBuyerMaker {
			side = models.SideSell
		}
		out = append(out, models.Trade{
			ID:        strconv.FormatInt(t.ID, 10),
			Exchange:  "binance",
			Symbol:    models.DisplaySymbol(symbol),
			Side:      side,
			Price:     parseFloat(t.Price),
			Amount:    parseFloat(t.Quantity),
			Timestamp: time.UnixMilli(t.Time),
		})
	}
	return out
}

// ConvertMarkets отбирает торгуемые пары с нужной котировкой
func ConvertMarkets(symbols []binance.Symbol, quote string) []models.Market {
	quote = strings.ToUpper(quote)
	var out []models.Market
	for _, s := range symbols {
		if quote != "" && s.QuoteAsset != quote {
			continue
		}
		out = append(out, models.Market{
			Symbol: s.BaseAsset + "/" + s.QuoteAsset,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		})
	}
	return out
}

func level(price, qty string) models.OrderBookLevel {
	return models.OrderBookLevel{Price: parseFloat(price), Amount: parseFloat(qty)}
}

// parseFloat некорректная строка дает 0
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
