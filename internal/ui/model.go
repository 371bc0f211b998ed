package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/internal/api"
	"github.com/skalibog/cryptodash/internal/assistant"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Tab вкладка дашборда
type Tab int

const (
	TabChart Tab = iota
	TabBook
	TabFeed
	TabTrading
	TabNews
	TabAssistant
)

var tabNames = []string{"Chart", "Book", "Feed", "Trading", "News", "Assistant"}

func (t Tab) String() string {
	if int(t) < len(tabNames) {
		return tabNames[t]
	}
	return fmt.Sprintf("tab(%d)", int(t))
}

// задачи, которые повторяет клавиша r на каждой вкладке
var tabTasks = map[Tab][]string{
	TabChart:     {taskCandles, taskTicker, taskSignals},
	TabBook:      {taskBook, taskTicker},
	TabFeed:      {taskTrades, taskFeed},
	TabTrading:   {taskTicker, taskPrices},
	TabNews:      {taskNews},
	TabAssistant: {taskTicker, taskCandles},
}

type chatLine struct {
	question, answer string
}

// model модель bubbletea. Панели меняются только в Update.
type model struct {
	d      *Dashboard
	tab    Tab
	width  int
	height int

	candles Panel[[]*models.Candle]
	ticker  Panel[*models.Ticker]
	book    Panel[*models.OrderBook]
	trades  Panel[[]models.Trade]
	feed    Panel[feedData]
	news    Panel[newsData]
	server  Panel[*api.SignalsResponse]
	logs    []string

	cursor int // выбранная позиция на вкладке Trading

	notice string
	prompt string
	chat   []chatLine
}

func newModel(d *Dashboard) *model {
	return &model{
		d:      d,
		width:  120,
		height: 40,
		logs:   []string{"cryptodash запущен. Ожидание данных..."},
	}
}

// Методы для bubbletea
func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case candlesMsg:
		m.candles.Apply(msg.candles, msg.err, msg.at)

	case tickerMsg:
		// тикеры позиций на других инструментах только двигают стопы
		if symbol, _ := m.d.selection(); msg.symbol == symbol {
			m.ticker.Apply(msg.ticker, msg.err, msg.at)
		}
		if msg.err == nil && msg.ticker != nil && msg.ticker.Last > 0 {
			m.onPrice(msg.symbol, msg.ticker.Last)
		}

	case bookMsg:
		m.book.Apply(msg.book, msg.err, msg.at)

	case tradesMsg:
		m.trades.Apply(msg.trades, msg.err, msg.at)

	case feedMsg:
		m.feed.Apply(msg.data, msg.err, msg.at)
		if msg.err == nil && msg.data.Live != nil {
			for symbol, price := range msg.data.Live.Prices {
				if price > 0 {
					m.onPrice(symbol, price)
				}
			}
		}

	case signalsMsg:
		if symbol, _ := m.d.selection(); msg.symbol == symbol {
			m.server.Apply(msg.resp, msg.err, msg.at)
		}

	case newsMsg:
		m.news.Apply(msg.data, msg.err, msg.at)

	case logsMsg:
		if len(msg.lines) > 0 {
			m.logs = msg.lines
		}
	}
	return m, nil
}

// onPrice передает цену счету, срабатывание стопов попадает в строку уведомлений
func (m *model) onPrice(symbol string, price float64) {
	closed := m.d.state.UpdatePrice(context.Background(), symbol, decimal.NewFromFloat(price))
	for _, t := range closed {
		m.notice = fmt.Sprintf("%s %s закрыта по %s (%s), PnL %s",
			t.Symbol, t.Side, t.ExitPrice.StringFixed(2), t.Reason, t.PnL.StringFixed(2))
		logger.Info("Позиция закрыта по стопу",
			zap.String("symbol", t.Symbol),
			zap.String("reason", t.Reason),
			zap.String("pnl", t.PnL.String()))
	}
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.tab = (m.tab + 1) % Tab(len(tabNames))
		return m, nil
	case "shift+tab":
		m.tab = (m.tab + Tab(len(tabNames)) - 1) % Tab(len(tabNames))
		return m, nil
	}

	if m.tab == TabAssistant {
		return m.handlePromptKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "[":
		return m, m.switchSymbol(-1)
	case "]":
		return m, m.switchSymbol(1)
	case "t":
		return m, m.nextTimeframe()
	case "i":
		settings := m.d.state.UpdateSettings(func(s *trading.Settings) { s.ShowIndicators = !s.ShowIndicators })
		m.notice = fmt.Sprintf("Индикаторы: %v", settings.ShowIndicators)
	case "b":
		m.openPosition(trading.Long)
	case "s":
		m.openPosition(trading.Short)
	case "c":
		closed := m.d.state.CloseAll(context.Background())
		m.cursor = 0
		m.notice = fmt.Sprintf("Закрыто позиций: %d", len(closed))
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "x":
		m.closeSelected()
	case "R":
		m.d.state.Reset()
		m.cursor = 0
		m.notice = "Счет сброшен, баланс " + m.d.state.Balance().StringFixed(2)
	case "w":
		m.toggleWatch()
	case "r":
		m.notice = "Повторный запрос..."
		return m, m.d.triggerCmd(tabTasks[m.tab]...)
	}
	return m, nil
}

func (m *model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if m.prompt == "" {
			return m, nil
		}
		answer := m.d.assistant.Reply(context.Background(), m.prompt, m.snapshot())
		m.chat = append(m.chat, chatLine{question: m.prompt, answer: answer})
		m.prompt = ""
	case tea.KeyBackspace:
		if r := []rune(m.prompt); len(r) > 0 {
			m.prompt = string(r[:len(r)-1])
		}
	case tea.KeyEsc:
		m.prompt = ""
	case tea.KeySpace:
		m.prompt += " "
	case tea.KeyRunes:
		m.prompt += string(msg.Runes)
	}
	return m, nil
}

// switchSymbol переключает инструмент и сразу запрашивает его данные
func (m *model) switchSymbol(step int) tea.Cmd {
	symbols := m.d.symbols()
	current, _ := m.d.selection()
	idx := 0
	for i, s := range symbols {
		if s == current {
			idx = i
			break
		}
	}
	idx = (idx + step + len(symbols)) % len(symbols)
	m.d.setSymbol(symbols[idx])

	m.candles.Reset()
	m.ticker.Reset()
	m.book.Reset()
	m.trades.Reset()
	m.server.Reset()
	m.notice = "Инструмент: " + symbols[idx]
	return m.d.triggerCmd(taskCandles, taskTicker, taskBook, taskTrades, taskSignals)
}

func (m *model) nextTimeframe() tea.Cmd {
	frames := m.d.timeframes()
	_, current := m.d.selection()
	idx := -1
	for i, f := range frames {
		if f == current {
			idx = i
			break
		}
	}
	next := frames[(idx+1)%len(frames)]
	m.d.setTimeframe(next)

	m.candles.Reset()
	m.notice = "Таймфрейм: " + next
	return m.d.triggerCmd(taskCandles)
}

// livePrice цена выбранного инструмента: тикер, при его отсутствии цена из ленты сервера
func (m *model) livePrice() (float64, bool) {
	if ticker, ok := m.ticker.Data(); ok && ticker != nil && ticker.Last > 0 {
		return ticker.Last, true
	}
	symbol, _ := m.d.selection()
	if data, ok := m.feed.Data(); ok && data.Live != nil {
		if price := data.Live.Prices[symbol]; price > 0 {
			return price, true
		}
	}
	return 0, false
}

// openPosition открывает бумажную позицию по последней цене
func (m *model) openPosition(side trading.Side) {
	symbol, _ := m.d.selection()
	price, ok := m.livePrice()
	if !ok {
		m.notice = "Нет цены для " + symbol
		return
	}
	paper := m.d.opts.Paper
	pos, err := m.d.state.Open(trading.Order{
		Symbol:        symbol,
		Side:          side,
		Size:          decimal.NewFromFloat(paper.OrderSize),
		Price:         decimal.NewFromFloat(price),
		Leverage:      paper.Leverage,
		StopLossPct:   paper.StopLossPct,
		TakeProfitPct: paper.TakeProfitPct,
	})
	if err != nil {
		if errors.Is(err, trading.ErrInsufficientBalance) {
			m.notice = "Недостаточно средств"
		} else {
			m.notice = "Ошибка: " + err.Error()
		}
		return
	}
	m.notice = fmt.Sprintf("Открыта %s %s по %s", pos.Side, pos.Symbol, pos.EntryPrice.StringFixed(2))
}

func (m *model) moveCursor(step int) {
	n := len(m.d.state.Positions())
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+step, 0), n-1)
}

// closeSelected закрывает позицию под курсором по последней известной цене
func (m *model) closeSelected() {
	positions := m.d.state.Positions()
	if len(positions) == 0 {
		m.notice = "Открытых позиций нет"
		return
	}
	m.cursor = min(m.cursor, len(positions)-1)
	p := positions[m.cursor]
	price, ok := m.d.state.Price(p.Symbol)
	if !ok {
		m.notice = "Нет цены для " + p.Symbol
		return
	}
	trade, err := m.d.state.Close(context.Background(), p.ID, price)
	if err != nil {
		m.notice = "Ошибка: " + err.Error()
		return
	}
	m.cursor = min(m.cursor, max(len(positions)-2, 0))
	m.notice = fmt.Sprintf("Закрыта %s %s по %s, PnL %s",
		trade.Side, trade.Symbol, trade.ExitPrice.StringFixed(2), trade.PnL.StringFixed(2))
}

// toggleWatch добавляет выбранный инструмент в список наблюдения или убирает его
func (m *model) toggleWatch() {
	symbol, _ := m.d.selection()
	if slices.Contains(m.d.state.Watchlist(), symbol) {
		m.d.state.Unwatch(symbol)
		m.notice = "Убран из наблюдения: " + symbol
		return
	}
	m.d.state.Watch(symbol)
	m.notice = "Добавлен в наблюдение: " + symbol
}

// snapshot состояние для ассистента
func (m *model) snapshot() assistant.Snapshot {
	symbol, _ := m.d.selection()
	snap := assistant.Snapshot{
		Symbol:    symbol,
		Positions: m.d.state.Positions(),
		Equity:    m.d.state.Equity(),
	}
	if price, ok := m.livePrice(); ok {
		snap.Price = price
	}
	if result := m.signal(); result != nil {
		snap.Signal = result
	}
	if news, ok := m.news.Data(); ok {
		snap.Sentiment = news.Sentiment
	}
	return snap
}

// signal сигнал по загруженным свечам, nil если истории мало
func (m *model) signal() *models.SignalResult {
	candles, ok := m.candles.Data()
	if !ok || len(candles) == 0 {
		return nil
	}
	res := m.d.engine.Calculate(candles)
	if res.Empty() {
		return nil
	}
	symbol, timeframe := m.d.selection()
	last := candles[len(candles)-1]
	return &models.SignalResult{
		Symbol:       symbol,
		Interval:     timeframe,
		Timestamp:    time.Now(),
		Signal:       m.d.signals.Analyze(candles, res),
		CurrentPrice: last.Close,
	}
}
