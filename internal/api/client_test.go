package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClientAgainstRouter(t *testing.T) {
	market := &mockMarket{}
	market.On("GetOrderBook", mock.Anything, "SOL/USDT", 5).Return(&models.OrderBook{
		Bids: []models.OrderBookLevel{{Price: 1, Amount: 2}},
	}, nil)
	market.On("GetKlines", mock.Anything, "SOL/USDT", "15m", 3).Return([]*models.Candle{{Close: 1}, {Close: 2}, {Close: 3}}, nil)
	market.On("GetTicker", mock.Anything, "SOL/USDT").Return(nil, errors.New("symbol halted"))

	router, _ := newTestServer(t, market, nil)
	srv := httptest.NewServer(router)
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	book, err := c.OrderBook(ctx, "SOL/USDT", 5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, book.Bids[0].Amount)

	candles, err := c.Candles(ctx, "SOL/USDT", "15m", 3)
	require.NoError(t, err)
	assert.Len(t, candles, 3)

	_, err = c.Ticker(ctx, "SOL/USDT")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "symbol halted", apiErr.Message)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)

	stats, err := c.AggrStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Whales)

	whales, err := c.Whales(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, whales)

	items, err := c.News(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	sentiment, err := c.Sentiment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, sentiment.FearGreedIndex)
}

func TestClientLiveAndSignals(t *testing.T) {
	signals := &mockSignals{}
	signals.On("Latest", "BTC/USDT").Return(&models.SignalResult{Signal: models.Signal{Type: models.Sell}}, true)
	signals.On("GetSignalHistory", mock.Anything, "BTC/USDT", 3).Return(nil, nil)

	live := feed.Snapshot{Connected: true, CVD: -5, Prices: map[string]float64{"BTC/USDT": 64000}}
	srv := httptest.NewServer(NewServer(Deps{Market: &mockMarket{}, Live: staticLive(live), Signals: signals}).Router())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	snap, err := c.Live(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Connected)
	assert.Equal(t, -5.0, snap.CVD)
	assert.Equal(t, 64000.0, snap.Prices["BTC/USDT"])

	resp, err := c.Signals(ctx, "BTC/USDT", 3)
	require.NoError(t, err)
	require.NotNil(t, resp.Latest)
	assert.Equal(t, models.Sell, resp.Latest.Signal.Type)
	assert.Empty(t, resp.History)
}

func TestClientSurfacesErrorFieldVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trades", r.URL.Query().Get("action"))
		assert.Equal(t, "binance", r.URL.Query().Get("exchange"))
		assert.Equal(t, "BTC/USDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"exchange unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Trades(context.Background(), "BTC/USDT", 0)
	assert.EqualError(t, err, "exchange unavailable")
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Markets(context.Background(), "")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}
