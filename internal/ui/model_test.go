package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/internal/api"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*model, *trading.State) {
	t.Helper()
	cfg := config.Default()
	cfg.Trading.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	cfg.Trading.Timeframes = []string{"1h", "4h"}

	state := trading.NewState(trading.Config{
		InitialBalance: decimal.NewFromInt(10000),
		FeeRate:        decimal.Zero,
	}, nil, nil)

	d := New(Options{
		Dashboard: cfg.Dashboard,
		Trading:   cfg.Trading,
		Feed:      cfg.Feed,
		Paper:     cfg.Paper,
		Ichimoku:  ichimoku.DefaultConfig(),
	}, api.NewClient("http://127.0.0.1:1", time.Second), state, nil)
	return newModel(d), state
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m *model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func TestTabsCycle(t *testing.T) {
	m, _ := newTestModel(t)

	press(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabBook, m.tab)

	m.tab = TabChart
	press(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, TabAssistant, m.tab)
	assert.Equal(t, "Assistant", m.tab.String())
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	cmd := press(m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestSymbolAndTimeframeSwitch(t *testing.T) {
	m, state := newTestModel(t)
	m.ticker.Apply(&models.Ticker{Last: 1}, nil, time.Now())

	assert.NotNil(t, press(m, runes("]")))
	symbol, timeframe := m.d.selection()
	assert.Equal(t, "ETH/USDT", symbol)
	assert.Equal(t, "ETH/USDT", state.Settings().Symbol)
	_, ok := m.ticker.Data()
	assert.False(t, ok)

	press(m, runes("]"))
	symbol, _ = m.d.selection()
	assert.Equal(t, "BTC/USDT", symbol)

	press(m, runes("["))
	symbol, _ = m.d.selection()
	assert.Equal(t, "ETH/USDT", symbol)

	assert.Equal(t, "1h", timeframe)
	press(m, runes("t"))
	_, timeframe = m.d.selection()
	assert.Equal(t, "4h", timeframe)
	assert.Equal(t, "4h", state.Settings().Timeframe)
}

func TestIndicatorsToggle(t *testing.T) {
	m, state := newTestModel(t)
	before := state.Settings().ShowIndicators
	press(m, runes("i"))
	assert.Equal(t, !before, state.Settings().ShowIndicators)
}

func TestPaperTradingKeys(t *testing.T) {
	m, state := newTestModel(t)

	press(m, runes("b"))
	assert.Contains(t, m.notice, "Нет цены")
	assert.Empty(t, state.Positions())

	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, runes("b"))
	require.Len(t, state.Positions(), 1)
	pos := state.Positions()[0]
	assert.Equal(t, trading.Long, pos.Side)
	assert.True(t, pos.StopLoss.Equal(decimal.NewFromInt(98)))

	// цена ниже стопа закрывает позицию
	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 97}, at: time.Now()})
	assert.Empty(t, state.Positions())
	assert.Contains(t, m.notice, trading.ReasonStopLoss)

	press(m, runes("s"))
	press(m, runes("s"))
	require.Len(t, state.Positions(), 2)
	press(m, runes("c"))
	assert.Empty(t, state.Positions())
	assert.Contains(t, m.notice, "2")
}

func TestCloseSelectedPosition(t *testing.T) {
	m, state := newTestModel(t)
	m.tab = TabTrading

	press(m, runes("x"))
	assert.Equal(t, "Открытых позиций нет", m.notice)

	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, runes("b"))
	press(m, runes("s"))
	require.Len(t, state.Positions(), 2)

	press(m, runes("j"))
	press(m, runes("j"))
	assert.Equal(t, 1, m.cursor)
	assert.Contains(t, m.View(), "> BTC/USDT   short")

	press(m, runes("x"))
	require.Len(t, state.Positions(), 1)
	assert.Equal(t, trading.Long, state.Positions()[0].Side)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.notice, "Закрыта short BTC/USDT по 100.00")
	require.Len(t, state.History(), 1)
	assert.Equal(t, trading.ReasonManual, state.History()[0].Reason)

	press(m, runes("k"))
	press(m, runes("x"))
	assert.Empty(t, state.Positions())
}

func TestResetAccountKey(t *testing.T) {
	m, state := newTestModel(t)
	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, runes("b"))
	press(m, runes("c"))
	require.NotEmpty(t, state.History())

	press(m, runes("R"))
	assert.Empty(t, state.Positions())
	assert.Empty(t, state.History())
	assert.True(t, state.Balance().Equal(decimal.NewFromInt(10000)))
	assert.Contains(t, m.notice, "10000.00")
}

func TestWatchToggle(t *testing.T) {
	m, state := newTestModel(t)

	press(m, runes("w"))
	assert.Equal(t, []string{"BTC/USDT"}, state.Watchlist())
	assert.Equal(t, []string{"BTC/USDT"}, m.d.symbols())
	assert.Contains(t, m.notice, "Добавлен")

	press(m, runes("w"))
	assert.Empty(t, state.Watchlist())
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, m.d.symbols())
}

func TestStopOnAnotherSymbol(t *testing.T) {
	m, state := newTestModel(t)
	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, runes("b"))
	press(m, runes("]"))

	selected, _ := m.d.selection()
	require.Equal(t, "ETH/USDT", selected)
	assert.Equal(t, []string{"BTC/USDT"}, m.d.positionSymbols())

	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 97}, at: time.Now()})
	assert.Empty(t, state.Positions())
	assert.Contains(t, m.notice, trading.ReasonStopLoss)

	// тикер чужого инструмента не попадает в заголовок
	_, ok := m.ticker.Data()
	assert.False(t, ok)
}

func TestLiveFeedPrice(t *testing.T) {
	m, state := newTestModel(t)
	live := &feed.Snapshot{
		Connected: true,
		CVD:       1200,
		Trades:    []models.Trade{{Symbol: "BTC/USDT", Side: models.SideBuy, Price: 100, Amount: 12, IsLarge: true}},
		Prices:    map[string]float64{"BTC/USDT": 100},
	}
	press(m, feedMsg{data: feedData{Live: live}, at: time.Now()})

	price, ok := m.livePrice()
	require.True(t, ok)
	assert.Equal(t, 100.0, price)

	press(m, runes("b"))
	require.Len(t, state.Positions(), 1)
	assert.True(t, state.Positions()[0].EntryPrice.Equal(decimal.NewFromInt(100)))

	m.tab = TabFeed
	view := m.View()
	assert.Contains(t, view, "подключено")
	assert.Contains(t, view, "CVD +1200")
	assert.Contains(t, view, "LARGE")

	live.Prices = map[string]float64{"BTC/USDT": 97}
	press(m, feedMsg{data: feedData{Live: live}, at: time.Now()})
	assert.Empty(t, state.Positions())
}

func TestDisabledStopLoss(t *testing.T) {
	m, state := newTestModel(t)
	m.d.opts.Paper.StopLossPct = -1
	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, runes("b"))

	require.Len(t, state.Positions(), 1)
	assert.True(t, state.Positions()[0].StopLoss.IsZero())
	assert.False(t, state.Positions()[0].TakeProfit.IsZero())

	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 50}, at: time.Now()})
	assert.Len(t, state.Positions(), 1)

	m.tab = TabTrading
	assert.Contains(t, m.View(), "SL выкл")
}

func TestTickerErrorKeepsPrice(t *testing.T) {
	m, _ := newTestModel(t)
	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 100}, at: time.Now()})
	press(m, tickerMsg{symbol: "BTC/USDT", err: errors.New("HTTP 502"), at: time.Now()})

	ticker, ok := m.ticker.Data()
	require.True(t, ok)
	assert.Equal(t, 100.0, ticker.Last)
	assert.True(t, m.ticker.Stale())
}

func TestAssistantPrompt(t *testing.T) {
	m, _ := newTestModel(t)
	m.tab = TabAssistant

	assert.Nil(t, press(m, runes("q")))
	press(m, tea.KeyMsg{Type: tea.KeyBackspace})
	for _, r := range "price" {
		press(m, runes(string(r)))
	}
	assert.Equal(t, "price", m.prompt)

	press(m, tickerMsg{symbol: "BTC/USDT", ticker: &models.Ticker{Last: 65000}, at: time.Now()})
	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.chat, 1)
	assert.Contains(t, m.chat[0].answer, "65000.00")
	assert.Empty(t, m.prompt)
}

func TestViewRendersEveryTab(t *testing.T) {
	m, _ := newTestModel(t)
	var candles []*models.Candle
	for i := 0; i < 80; i++ {
		p := 100 + float64(i)
		candles = append(candles, &models.Candle{Open: p, High: p + 2, Low: p - 1, Close: p + 1})
	}
	at := time.Now()
	press(m, tea.WindowSizeMsg{Width: 140, Height: 50})
	press(m, candlesMsg{symbol: "BTC/USDT", timeframe: "1h", candles: candles, at: at})
	press(m, bookMsg{symbol: "BTC/USDT", book: &models.OrderBook{
		Bids: []models.OrderBookLevel{{Price: 99, Amount: 1}},
		Asks: []models.OrderBookLevel{{Price: 101, Amount: 1}},
	}, at: at})
	press(m, newsMsg{data: newsData{
		Items:     []models.NewsItem{{Title: "Bitcoin rally", Source: "Test", Sentiment: "bullish"}},
		Sentiment: &models.Sentiment{FearGreedIndex: 60, FearGreedLabel: "Greed"},
	}, at: at})
	press(m, logsMsg{lines: []string{"[12:00:00] [INFO] ok"}})
	press(m, signalsMsg{symbol: "BTC/USDT", resp: &api.SignalsResponse{
		Symbol: "BTC/USDT",
		Latest: &models.SignalResult{Signal: models.Signal{Type: models.Sell, Confidence: 40}, Timestamp: at},
	}, at: at})
	press(m, signalsMsg{symbol: "ETH/USDT", err: errors.New("stale"), at: at})

	for tab := range tabNames {
		m.tab = Tab(tab)
		view := m.View()
		assert.Contains(t, view, "cryptodash - BTC/USDT 1h")
		assert.Contains(t, view, "[INFO] ok")
	}

	m.tab = TabChart
	assert.Contains(t, m.View(), "Сигнал: STRONG_BUY")
	assert.Contains(t, m.View(), "Сервер: SELL (40%)")
	assert.Empty(t, m.server.Err())
	m.tab = TabNews
	assert.Contains(t, m.View(), "Greed")
	m.tab = TabBook
	assert.Contains(t, m.View(), "спред")
}
