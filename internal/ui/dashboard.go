// Package ui терминальный дашборд: график с облаком Ichimoku, стакан, лента,
// бумажная торговля, новости и ассистент. Данные опрашиваются через HTTP API.
package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skalibog/cryptodash/internal/aggr"
	"github.com/skalibog/cryptodash/internal/analysis/ichimoku"
	"github.com/skalibog/cryptodash/internal/analysis/orderbook"
	"github.com/skalibog/cryptodash/internal/analysis/signal"
	"github.com/skalibog/cryptodash/internal/api"
	"github.com/skalibog/cryptodash/internal/assistant"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/internal/feed"
	"github.com/skalibog/cryptodash/internal/poller"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Ключи задач опроса
const (
	taskCandles = "candles"
	taskTicker  = "ticker"
	taskBook    = "orderbook"
	taskTrades  = "trades"
	taskFeed    = "aggr"
	taskNews    = "news"
	taskLogs    = "logs"
	taskSignals = "signals"
	taskPrices  = "prices"
)

const (
	bookDepth    = 20
	feedListSize = 15
	newsLimit    = 20
	signalsLimit = 10
)

// Options настройки дашборда
type Options struct {
	Dashboard config.DashboardConfig
	Trading   config.TradingConfig
	Feed      config.FeedConfig
	Paper     config.PaperConfig
	Ichimoku  ichimoku.Config
}

// Dashboard терминальный интерфейс поверх HTTP API
type Dashboard struct {
	opts       Options
	client     *api.Client
	state      *trading.State
	assistant  assistant.Assistant
	poller     *poller.Poller
	engine     *ichimoku.Engine
	signals    *signal.Analyzer
	books      *orderbook.Analyzer
	classifier *feed.Aggregator

	mu        sync.RWMutex
	symbol    string
	timeframe string
	program   *tea.Program
	ctx       context.Context
}

// New создает дашборд. Состояние счета загружается в Run.
func New(opts Options, client *api.Client, state *trading.State, asst assistant.Assistant) *Dashboard {
	if asst == nil {
		asst = assistant.New()
	}
	d := &Dashboard{
		opts:      opts,
		client:    client,
		state:     state,
		assistant: asst,
		poller:    poller.New(time.Duration(opts.Dashboard.RequestTimeoutSecs) * time.Second),
		engine:    ichimoku.NewEngine(opts.Ichimoku),
		signals:   signal.NewAnalyzer(),
		books:     orderbook.NewAnalyzer(orderbook.DefaultConfig()),
		classifier: feed.NewAggregator(feed.Config{
			LargeThreshold: opts.Feed.LargeThreshold,
			WhaleThreshold: opts.Feed.WhaleThreshold,
		}),
		ctx: context.Background(),
	}
	d.restoreSelection()
	return d
}

// restoreSelection берет инструмент и таймфрейм из настроек счета
func (d *Dashboard) restoreSelection() {
	settings := d.state.UpdateSettings(func(s *trading.Settings) {
		if s.Symbol == "" {
			s.Symbol = d.symbols()[0]
		}
		if s.Timeframe == "" {
			s.Timeframe = d.opts.Trading.Interval
		}
	})
	d.mu.Lock()
	d.symbol, d.timeframe = settings.Symbol, settings.Timeframe
	d.mu.Unlock()
}

// Run загружает состояние счета, запускает опрос и UI, при выходе сохраняет состояние
func (d *Dashboard) Run(ctx context.Context) error {
	if err := d.state.Load(ctx); err != nil {
		logger.Warn("Состояние счета не загружено, используется начальное", zap.Error(err))
	}
	d.restoreSelection()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newModel(d), tea.WithAltScreen(), tea.WithContext(ctx))
	d.mu.Lock()
	d.program = program
	d.ctx = ctx
	d.mu.Unlock()

	for _, task := range d.tasks() {
		if err := d.poller.Add(task); err != nil {
			return err
		}
	}
	d.poller.Start(ctx)

	_, runErr := program.Run()
	d.poller.Stop()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := d.state.Save(saveCtx); err != nil {
		logger.Error("Не удалось сохранить состояние счета", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil && errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}

func (d *Dashboard) tasks() []poller.Task {
	cfg := d.opts.Dashboard
	return []poller.Task{
		{Key: taskCandles, Interval: seconds(cfg.CandlesSeconds), Run: d.fetchCandles},
		{Key: taskTicker, Interval: seconds(cfg.TickerSeconds), Run: d.fetchTicker},
		{Key: taskPrices, Interval: seconds(cfg.TickerSeconds), Run: d.fetchPositionPrices},
		{Key: taskSignals, Interval: seconds(cfg.CandlesSeconds), Run: d.fetchSignals},
		{Key: taskBook, Interval: seconds(cfg.OrderBookSeconds), Run: d.fetchBook},
		{Key: taskTrades, Interval: seconds(cfg.TradesSeconds), Run: d.fetchTrades},
		{Key: taskFeed, Interval: seconds(cfg.AggrSeconds), Run: d.fetchFeed},
		{Key: taskNews, Interval: seconds(cfg.NewsSeconds), Run: d.fetchNews},
		{Key: taskLogs, Interval: time.Second, Run: d.readLogs},
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		n = 5
	}
	return time.Duration(n) * time.Second
}

// send передает сообщение в UI. Ответы не упорядочиваются: поздний ответ
// по прежнему инструменту может перезаписать более свежий.
func (d *Dashboard) send(msg tea.Msg) {
	d.mu.RLock()
	program := d.program
	d.mu.RUnlock()
	if program != nil {
		program.Send(msg)
	}
}

// selection текущие инструмент и таймфрейм
func (d *Dashboard) selection() (string, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.symbol, d.timeframe
}

func (d *Dashboard) setSymbol(symbol string) {
	d.mu.Lock()
	d.symbol = symbol
	d.mu.Unlock()
	d.state.UpdateSettings(func(s *trading.Settings) { s.Symbol = symbol })
}

func (d *Dashboard) setTimeframe(timeframe string) {
	d.mu.Lock()
	d.timeframe = timeframe
	d.mu.Unlock()
	d.state.UpdateSettings(func(s *trading.Settings) { s.Timeframe = timeframe })
}

// symbols список наблюдения или символы из конфигурации
func (d *Dashboard) symbols() []string {
	if list := d.state.Watchlist(); len(list) > 0 {
		return list
	}
	if len(d.opts.Trading.Symbols) > 0 {
		return d.opts.Trading.Symbols
	}
	return []string{api.DefaultSymbol}
}

// positionSymbols символы открытых позиций без повторов
func (d *Dashboard) positionSymbols() []string {
	var out []string
	for _, p := range d.state.Positions() {
		if !slices.Contains(out, p.Symbol) {
			out = append(out, p.Symbol)
		}
	}
	slices.Sort(out)
	return out
}

func (d *Dashboard) timeframes() []string {
	if len(d.opts.Trading.Timeframes) > 0 {
		return d.opts.Trading.Timeframes
	}
	return []string{api.DefaultTimeframe}
}

// triggerCmd внеплановый запуск задач, например по клавише r
func (d *Dashboard) triggerCmd(keys ...string) tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(keys))
	for _, key := range keys {
		key := key
		cmds = append(cmds, func() tea.Msg {
			d.mu.RLock()
			ctx := d.ctx
			d.mu.RUnlock()
			if err := d.poller.Trigger(ctx, key); err != nil && !errors.Is(err, poller.ErrUnknownTask) {
				logger.Debug("Повторный запрос завершился ошибкой", zap.String("task", key), zap.Error(err))
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// Сообщения для обновления UI
type candlesMsg struct {
	symbol, timeframe string
	candles           []*models.Candle
	err               error
	at                time.Time
}

type tickerMsg struct {
	symbol string
	ticker *models.Ticker
	err    error
	at     time.Time
}

type bookMsg struct {
	symbol string
	book   *models.OrderBook
	err    error
	at     time.Time
}

type tradesMsg struct {
	symbol string
	trades []models.Trade
	err    error
	at     time.Time
}

type signalsMsg struct {
	symbol string
	resp   *api.SignalsResponse
	err    error
	at     time.Time
}

// feedData статистика ленты из /api/aggr: файлы аналитики и снимок в памяти сервера
type feedData struct {
	Live         *feed.Snapshot
	Stats        *aggr.StatsResponse
	Whales       []models.Trade
	Liquidations []models.Liquidation
}

type feedMsg struct {
	data feedData
	err  error
	at   time.Time
}

// newsData новости и индекс настроений
type newsData struct {
	Items     []models.NewsItem
	Sentiment *models.Sentiment
}

type newsMsg struct {
	data newsData
	err  error
	at   time.Time
}

type logsMsg struct {
	lines []string
}

func (d *Dashboard) fetchCandles(ctx context.Context) error {
	symbol, timeframe := d.selection()
	candles, err := d.client.Candles(ctx, symbol, timeframe, d.opts.Trading.CandlesLimit)
	d.send(candlesMsg{symbol: symbol, timeframe: timeframe, candles: candles, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) fetchTicker(ctx context.Context) error {
	symbol, _ := d.selection()
	ticker, err := d.client.Ticker(ctx, symbol)
	d.send(tickerMsg{symbol: symbol, ticker: ticker, err: err, at: time.Now()})
	return err
}

// fetchPositionPrices цены для стопов по позициям на невыбранных инструментах
func (d *Dashboard) fetchPositionPrices(ctx context.Context) error {
	selected, _ := d.selection()
	var errs []error
	for _, symbol := range d.positionSymbols() {
		if symbol == selected {
			continue
		}
		ticker, err := d.client.Ticker(ctx, symbol)
		d.send(tickerMsg{symbol: symbol, ticker: ticker, err: err, at: time.Now()})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dashboard) fetchSignals(ctx context.Context) error {
	symbol, _ := d.selection()
	resp, err := d.client.Signals(ctx, symbol, signalsLimit)
	d.send(signalsMsg{symbol: symbol, resp: resp, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) fetchBook(ctx context.Context) error {
	symbol, _ := d.selection()
	book, err := d.client.OrderBook(ctx, symbol, bookDepth)
	d.send(bookMsg{symbol: symbol, book: book, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) fetchTrades(ctx context.Context) error {
	symbol, _ := d.selection()
	trades, err := d.client.Trades(ctx, symbol, feedListSize)
	for i := range trades {
		d.classifier.Classify(&trades[i])
	}
	d.send(tradesMsg{symbol: symbol, trades: trades, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) fetchFeed(ctx context.Context) error {
	var data feedData
	live, err := d.client.Live(ctx)
	if err == nil {
		data.Live = live
		data.Stats, err = d.client.AggrStats(ctx)
	}
	if err == nil {
		data.Whales, err = d.client.Whales(ctx, feedListSize)
	}
	if err == nil {
		data.Liquidations, err = d.client.Liquidations(ctx, feedListSize)
	}
	d.send(feedMsg{data: data, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) fetchNews(ctx context.Context) error {
	var data newsData
	items, err := d.client.News(ctx, newsLimit)
	if err == nil {
		data.Items = items
		data.Sentiment, err = d.client.Sentiment(ctx)
	}
	d.send(newsMsg{data: data, err: err, at: time.Now()})
	return err
}

func (d *Dashboard) readLogs(_ context.Context) error {
	lines, err := readLogLines(d.opts.Dashboard.LogFile, maxLogLines)
	if err != nil {
		return fmt.Errorf("ошибка чтения логов: %w", err)
	}
	d.send(logsMsg{lines: lines})
	return nil
}
