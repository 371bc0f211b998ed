package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConvertKlines(t *testing.T) {
	klines := []*binance.Kline{
		{OpenTime: 1700000000000, Open: "100.5", High: "110", Low: "90", Close: "105", Volume: "12.5", CloseTime: 1700003599999},
		nil,
		{OpenTime: 1700003600000, Open: "bad", High: "1", Low: "1", Close: "1", Volume: ""},
	}

	candles := ConvertKlines("btcusdt", "1h", klines)
	require.Len(t, candles, 2)
	assert.Equal(t, "BTC/USDT", candles[0].Symbol)
	assert.Equal(t, "1h", candles[0].Interval)
	assert.Equal(t, 100.5, candles[0].Open)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime.UnixMilli())
	assert.Equal(t, 0.0, candles[1].Open, "malformed number degrades to zero")
	assert.Equal(t, 0.0, candles[1].Volume)
}

func TestConvertTicker(t *testing.T) {
	tk := ConvertTicker(&binance.PriceChangeStats{
		Symbol:             "ETHUSDT",
		LastPrice:          "3000",
		HighPrice:          "3100",
		LowPrice:           "2900",
		Volume:             "1000",
		PriceChange:        "-50",
		PriceChangePercent: "-1.64",
	})
	assert.Equal(t, "ETH/USDT", tk.Symbol)
	assert.Equal(t, 3000.0, tk.Last)
	assert.Equal(t, -50.0, tk.Change)
	assert.Equal(t, -1.64, tk.Percentage)
}

func TestConvertTradesNewestFirst(t *testing.T) {
	trades := ConvertTrades("BTC/USDT", []*binance.Trade{
		{ID: 1, Price: "100", Quantity: "1", Time: 1, IsBuyerMaker: false},
		{ID: 2, Price: "101", Quantity: "2", Time: 2, IsBuyerMaker: true},
	})
	require.Len(t, trades, 2)
	assert.Equal(t, "2", trades[0].ID)
	assert.Equal(t, models.SideSell, trades[0].Side)
	assert.Equal(t, models.SideBuy, trades[1].Side)
	assert.Equal(t, 202.0, trades[0].Notional())
}

func TestConvertMarkets(t *testing.T) {
	symbols := []binance.Symbol{
		{Symbol: "BTCUSDT", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT"},
		{Symbol: "ETHBTC", Status: "TRADING", BaseAsset: "ETH", QuoteAsset: "BTC"},
		{Symbol: "LUNAUSDT", Status: "BREAK", BaseAsset: "LUNA", QuoteAsset: "USDT"},
	}

	usdt := ConvertMarkets(symbols, "usdt")
	require.Len(t, usdt, 2)
	assert.Equal(t, "BTC/USDT", usdt[0].Symbol)
	assert.True(t, usdt[0].Active)
	assert.False(t, usdt[1].Active)

	assert.Len(t, ConvertMarkets(symbols, ""), 3)
}

func TestNewUnsupportedExchange(t *testing.T) {
	_, err := New("kraken", config.BinanceConfig{})
	assert.ErrorIs(t, err, ErrUnsupportedExchange)

	c, err := New("binance", config.BinanceConfig{})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

type mockMarketData struct {
	mock.Mock
}

func (m *mockMarketData) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	candles, _ := args.Get(0).([]*models.Candle)
	return candles, args.Error(1)
}

func (m *mockMarketData) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	args := m.Called(ctx, symbol, limit)
	ob, _ := args.Get(0).(*models.OrderBook)
	return ob, args.Error(1)
}

func (m *mockMarketData) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	args := m.Called(ctx, symbol)
	tk, _ := args.Get(0).(*models.Ticker)
	return tk, args.Error(1)
}

func (m *mockMarketData) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	args := m.Called(ctx, symbol, limit)
	trades, _ := args.Get(0).([]models.Trade)
	return trades, args.Error(1)
}

func (m *mockMarketData) GetMarkets(ctx context.Context, quote string) ([]models.Market, error) {
	args := m.Called(ctx, quote)
	markets, _ := args.Get(0).([]models.Market)
	return markets, args.Error(1)
}

func (m *mockMarketData) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	args := m.Called(ctx, symbol)
	rate, _ := args.Get(0).(*models.FundingRate)
	return rate, args.Error(1)
}

func TestCandleCollectorSkipsFailedSymbol(t *testing.T) {
	ctx := context.Background()
	client := &mockMarketData{}
	store := storage.NewMemoryStorage()

	client.On("GetKlines", ctx, "BTC/USDT", "1h", 100).Return([]*models.Candle{
		{Symbol: "BTC/USDT", Interval: "1h", OpenTime: time.Unix(0, 0), Close: 1},
	}, nil)
	client.On("GetKlines", ctx, "ETH/USDT", "1h", 100).Return(nil, errors.New("timeout"))

	c := NewCandleCollector(client, store, []string{"ETH/USDT", "BTC/USDT"}, "1h", 100, time.Minute)
	c.Collect(ctx)

	client.AssertExpectations(t)
	got, err := store.GetCandles(ctx, "BTC/USDT", "1h", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFundingCollector(t *testing.T) {
	ctx := context.Background()
	client := &mockMarketData{}
	store := storage.NewMemoryStorage()
	client.On("GetFundingRate", ctx, "BTC/USDT").Return(&models.FundingRate{Symbol: "BTC/USDT", Rate: 0.0002}, nil)

	NewFundingRateCollector(client, store, []string{"BTC/USDT"}, time.Minute).Collect(ctx)

	rates, err := store.GetFundingRates(ctx, "BTC/USDT", 1)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 0.0002, rates[0].Rate)
}

func TestCollectorStartStop(t *testing.T) {
	client := &mockMarketData{}
	called := make(chan struct{})
	var once sync.Once
	client.On("GetFundingRate", mock.Anything, "BTC/USDT").
		Return(&models.FundingRate{Symbol: "BTC/USDT"}, nil).
		Run(func(mock.Arguments) { once.Do(func() { close(called) }) })
	c := NewFundingRateCollector(client, storage.NewMemoryStorage(), []string{"BTC/USDT"}, time.Hour)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("collector did not run")
	}
	c.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}
