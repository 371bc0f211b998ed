package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/cryptodash/internal/chart"
	"github.com/skalibog/cryptodash/internal/news"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Размеры областей
const (
	axisWidth  = 10
	logRows    = 5
	chromeRows = 12 // заголовок, вкладки, уведомление, логи, футер, рамка
	minBody    = 8
	listRows   = 10
)

func (m *model) View() string {
	width := max(m.width-4, 40)
	bodyHeight := max(m.height-chromeRows-logRows, minBody)

	var body string
	switch m.tab {
	case TabChart:
		body = m.viewChart(width, bodyHeight)
	case TabBook:
		body = m.viewBook()
	case TabFeed:
		body = m.viewFeed()
	case TabTrading:
		body = m.viewTrading()
	case TabNews:
		body = m.viewNews(width)
	case TabAssistant:
		body = m.viewAssistant(bodyHeight)
	}

	notice := ""
	if m.notice != "" {
		notice = statusStyle.Render(m.notice)
	}
	footer := footerStyle.Render("tab/shift+tab - вкладки, [ ] - инструмент, t - таймфрейм, i - индикаторы, w - наблюдение, " +
		"b/s - купить/продать, j/k и x - закрыть выбранную, c - закрыть все, R - сброс счета, r - повторить, q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.viewTitle(),
			m.viewTabs(),
			"",
			body,
			notice,
			renderLogs(m.logs, logRows),
			footer,
		),
	)
}

func (m *model) viewTitle() string {
	symbol, timeframe := m.d.selection()
	title := fmt.Sprintf("cryptodash - %s %s", symbol, timeframe)
	if ticker, ok := m.ticker.Data(); ok && ticker != nil {
		change := fmt.Sprintf("%+.2f%%", ticker.Percentage)
		if ticker.Percentage >= 0 {
			change = buyStyle.Render(change)
		} else {
			change = sellStyle.Render(change)
		}
		return titleStyle.Render(title) + " " + chart.FormatPrice(ticker.Last) + " " + change
	}
	return titleStyle.Render(title)
}

func (m *model) viewTabs() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == m.tab {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = tabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// panelStatus строка состояния, ошибка выделяется цветом
func panelStatus(status string, failed bool) string {
	if failed {
		return errorStyle.Render(status)
	}
	return statusStyle.Render(status)
}

// viewChart индикатор и сигнал считаются до отрисовки, затем команды
// графика исполняются на холсте ячеек
func (m *model) viewChart(width, height int) string {
	status := panelStatus(m.candles.Status(), m.candles.Err() != "")
	candles, ok := m.candles.Data()
	if !ok || len(candles) == 0 {
		return status
	}

	symbol, _ := m.d.selection()
	settings := m.d.state.Settings()
	res := m.d.engine.Calculate(candles)

	signalLine := "Сигнал: недостаточно истории для Ichimoku"
	if !res.Empty() {
		sig := m.d.signals.Analyze(candles, res)
		signalLine = "Сигнал: " + formatSignal(sig)
	}
	signalLine += m.serverSignal()

	scene := chart.Scene{
		Candles:        candles,
		Indicators:     res,
		ShowIndicators: settings.ShowIndicators,
		Markers:        positionMarkers(m.d.state.Positions(), symbol),
		GridLines:      4,
	}
	scene.LivePrice, scene.HasLivePrice = m.livePrice()

	visible := width - axisWidth
	if scene.ShowIndicators && !res.Empty() {
		visible -= res.Config.Displacement
	}
	scene = scene.Window(max(visible, 10))

	chartHeight := min(m.d.opts.Dashboard.ChartHeight, height-2)
	if chartHeight < 4 {
		chartHeight = 4
	}
	canvas := NewCanvas(width, chartHeight)
	vp := chart.Viewport{Width: float64(width), Height: float64(chartHeight), Right: axisWidth}
	chart.Paint(canvas, chart.Render(&scene, vp))

	return lipgloss.JoinVertical(lipgloss.Left, signalLine, canvas.Render(), status)
}

// serverSignal последний сигнал анализатора сервера для строки над графиком
func (m *model) serverSignal() string {
	resp, ok := m.server.Data()
	switch {
	case ok && resp != nil && resp.Latest != nil:
		return fmt.Sprintf("  Сервер: %s от %s, в истории %d",
			formatSignal(resp.Latest.Signal), resp.Latest.Timestamp.Local().Format("15:04"), len(resp.History))
	case m.server.Err() != "":
		return "  Сервер: " + errorStyle.Render(m.server.Err())
	case ok:
		return "  Сервер: сигнала пока нет"
	}
	return ""
}

func formatSignal(sig models.Signal) string {
	text := fmt.Sprintf("%s (%.0f%%)", strings.ToUpper(string(sig.Type)), sig.Confidence)
	switch sig.Type {
	case models.StrongBuy:
		return buyStyle.Bold(true).Render(text)
	case models.Buy:
		return buyStyle.Render(text)
	case models.StrongSell:
		return sellStyle.Bold(true).Render(text)
	case models.Sell:
		return sellStyle.Render(text)
	}
	return lipgloss.NewStyle().Foreground(warningColor).Render(text)
}

// positionMarkers вход, стоп и тейк открытых позиций по инструменту
func positionMarkers(positions []trading.Position, symbol string) []chart.Marker {
	var markers []chart.Marker
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		entry, _ := p.EntryPrice.Float64()
		markers = append(markers, chart.Marker{
			Kind:  chart.MarkerEntry,
			Price: entry,
			Label: fmt.Sprintf("%s x%d", p.Side, p.Leverage),
		})
		if !p.StopLoss.IsZero() {
			sl, _ := p.StopLoss.Float64()
			markers = append(markers, chart.Marker{Kind: chart.MarkerStopLoss, Price: sl, Label: "SL"})
		}
		if !p.TakeProfit.IsZero() {
			tp, _ := p.TakeProfit.Float64()
			markers = append(markers, chart.Marker{Kind: chart.MarkerTakeProfit, Price: tp, Label: "TP"})
		}
	}
	return markers
}

func (m *model) viewBook() string {
	status := panelStatus(m.book.Status(), m.book.Err() != "")
	book, ok := m.book.Data()
	if !ok || book == nil {
		return status
	}

	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("СТАКАН") + "\n")
	asks := book.Asks
	if len(asks) > listRows {
		asks = asks[:listRows]
	}
	for i := len(asks) - 1; i >= 0; i-- {
		b.WriteString(sellStyle.Render(fmt.Sprintf("  %12s  %12.4f", chart.FormatPrice(asks[i].Price), asks[i].Amount)) + "\n")
	}

	summary := m.d.books.Summarize(book)
	b.WriteString(statusStyle.Render(fmt.Sprintf("  спред %s (%.2f bps)", chart.FormatPrice(summary.Spread), summary.SpreadBps)) + "\n")

	bids := book.Bids
	if len(bids) > listRows {
		bids = bids[:listRows]
	}
	for _, l := range bids {
		b.WriteString(buyStyle.Render(fmt.Sprintf("  %12s  %12.4f", chart.FormatPrice(l.Price), l.Amount)) + "\n")
	}

	fmt.Fprintf(&b, "\n  Глубина: покупка %.2f / продажа %.2f, дисбаланс %+.1f\n",
		summary.BidDepth, summary.AskDepth, summary.Imbalance)
	if summary.BidWall != nil {
		fmt.Fprintf(&b, "  Стена покупок: %s x %.2f\n", chart.FormatPrice(summary.BidWall.Price), summary.BidWall.Amount)
	}
	if summary.AskWall != nil {
		fmt.Fprintf(&b, "  Стена продаж: %s x %.2f\n", chart.FormatPrice(summary.AskWall.Price), summary.AskWall.Amount)
	}
	b.WriteString(status)
	return b.String()
}

// tradeLine строка сделки, symbol добавляется для общей ленты
func tradeLine(t models.Trade, symbol bool) string {
	tag := ""
	switch {
	case t.IsWhale:
		tag = " WHALE"
	case t.IsLarge:
		tag = " LARGE"
	}
	name := ""
	if symbol {
		name = fmt.Sprintf(" %-10s", t.Symbol)
	}
	line := fmt.Sprintf("  %s%s %-4s %12s  %10.4f  $%.0f%s",
		t.Timestamp.Format("15:04:05"), name, t.Side, chart.FormatPrice(t.Price), t.Amount, t.Notional(), tag)
	if t.Side == models.SideBuy {
		return buyStyle.Render(line)
	}
	return sellStyle.Render(line)
}

// viewFeed сводка берется из снимка ленты сервера, киты из файлов аналитики
func (m *model) viewFeed() string {
	var b strings.Builder

	b.WriteString(sectionHeaderStyle.Render("ЛЕНТА") + "\n")
	if data, ok := m.feed.Data(); ok {
		var stats models.FeedStats
		var connected bool
		var cvd float64
		var live []models.Trade
		liquidations := data.Liquidations
		if data.Stats != nil {
			stats, connected = data.Stats.Latest.Stats, data.Stats.Latest.Connected
			cvd = stats.CVD()
		}
		if l := data.Live; l != nil {
			stats, connected, cvd = l.Stats, l.Connected, l.CVD
			live, liquidations = l.Trades, l.Liquidations
		}

		conn := sellStyle.Render("нет связи")
		if connected {
			conn = buyStyle.Render("подключено")
		}
		fmt.Fprintf(&b, "  Поток: %s  Покупки %.0f  Продажи %.0f  CVD %+.0f\n",
			conn, stats.BuyVolume, stats.SellVolume, cvd)
		fmt.Fprintf(&b, "  Крупных сделок %d, ликвидаций %d", stats.LargeTradesCount, stats.LiquidationsCount)
		if data.Stats != nil {
			fmt.Fprintf(&b, ", китов %d (покупки %.0f / продажи %.0f)",
				data.Stats.Whales, data.Stats.WhaleBuyVolume, data.Stats.WhaleSellVolume)
		}
		b.WriteString("\n")

		for _, t := range live[:min(len(live), listRows)] {
			b.WriteString(tradeLine(t, true) + "\n")
		}
		for _, l := range liquidations[:min(len(liquidations), listRows)] {
			line := fmt.Sprintf("  LIQ %-10s %-5s %12s  $%.0f", l.Symbol, l.Side, chart.FormatPrice(l.Price), l.ValueUSD)
			b.WriteString(sellStyle.Render(line) + "\n")
		}
	}
	b.WriteString(panelStatus(m.feed.Status(), m.feed.Err() != "") + "\n\n")

	b.WriteString(sectionHeaderStyle.Render("СДЕЛКИ") + "\n")
	if trades, ok := m.trades.Data(); ok {
		for _, t := range trades {
			b.WriteString(tradeLine(t, false) + "\n")
		}
	}
	b.WriteString(panelStatus(m.trades.Status(), m.trades.Err() != ""))
	return b.String()
}

// formatPct процент стопа, отключенный показывается словом
func formatPct(v float64) string {
	if v <= 0 {
		return "выкл"
	}
	return fmt.Sprintf("%.1f%%", v)
}

func (m *model) viewTrading() string {
	state := m.d.state
	var b strings.Builder

	b.WriteString(sectionHeaderStyle.Render("СЧЕТ") + "\n")
	fmt.Fprintf(&b, "  Баланс %s  Капитал %s  Нереализованный PnL %s\n",
		state.Balance().StringFixed(2), state.Equity().StringFixed(2), state.UnrealizedPnL().StringFixed(2))
	paper := m.d.opts.Paper
	fmt.Fprintf(&b, "  Заявка: %.0f USDT, плечо x%d, SL %s, TP %s\n",
		paper.OrderSize, paper.Leverage, formatPct(paper.StopLossPct), formatPct(paper.TakeProfitPct))
	watch := "пусто"
	if list := state.Watchlist(); len(list) > 0 {
		watch = strings.Join(list, ", ")
	}
	fmt.Fprintf(&b, "  Наблюдение: %s\n\n", watch)

	b.WriteString(sectionHeaderStyle.Render("ПОЗИЦИИ") + "\n")
	positions := state.Positions()
	if len(positions) == 0 {
		b.WriteString("  Открытых позиций нет\n")
	}
	for i, p := range positions {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		line := fmt.Sprintf("%s%-10s %-5s x%-3d вход %s  объем %s  SL %s  TP %s",
			marker, p.Symbol, p.Side, p.Leverage, p.EntryPrice.StringFixed(2), p.Quantity.StringFixed(4),
			p.StopLoss.StringFixed(2), p.TakeProfit.StringFixed(2))
		if price, ok := state.Price(p.Symbol); ok {
			pnl := p.PnL(price)
			text := " PnL " + pnl.StringFixed(2)
			if pnl.IsNegative() {
				text = sellStyle.Render(text)
			} else {
				text = buyStyle.Render(text)
			}
			line += text
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + sectionHeaderStyle.Render("ИСТОРИЯ") + "\n")
	history := state.History()
	if len(history) > listRows {
		history = history[:listRows]
	}
	for _, t := range history {
		fmt.Fprintf(&b, "  %s %-10s %-5s %s -> %s  PnL %s (%s)\n",
			t.ClosedAt.Format("02.01 15:04"), t.Symbol, t.Side,
			t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2), t.PnL.StringFixed(2), t.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) viewNews(width int) string {
	status := panelStatus(m.news.Status(), m.news.Err() != "")
	data, ok := m.news.Data()
	if !ok {
		return status
	}

	var b strings.Builder
	if s := data.Sentiment; s != nil {
		b.WriteString(sectionHeaderStyle.Render("НАСТРОЕНИЕ") + "\n")
		fmt.Fprintf(&b, "  Индекс страха и жадности: %d (%s)\n", s.FearGreedIndex, s.FearGreedLabel)
		fmt.Fprintf(&b, "  Новости %+.0f, поток %+.0f, фандинг %+.0f\n\n", s.NewsScore, s.FlowScore, s.FundingScore)
	}

	b.WriteString(sectionHeaderStyle.Render("НОВОСТИ") + "\n")
	for _, item := range data.Items {
		title := item.Title
		if limit := width - 30; limit > 10 && len([]rune(title)) > limit {
			title = string([]rune(title)[:limit-3]) + "..."
		}
		line := fmt.Sprintf("  %s [%s] %s", item.Timestamp.Format("15:04"), item.Source, title)
		switch item.Sentiment {
		case news.Bullish:
			line = buyStyle.Render(line)
		case news.Bearish:
			line = sellStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(status)
	return b.String()
}

func (m *model) viewAssistant(height int) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("АССИСТЕНТ") + "\n")

	chat := m.chat
	// каждая реплика занимает минимум две строки
	if limit := max((height-3)/2, 1); len(chat) > limit {
		chat = chat[len(chat)-limit:]
	}
	for _, line := range chat {
		b.WriteString(statusStyle.Render("  вы: "+line.question) + "\n")
		b.WriteString("  " + line.answer + "\n")
	}
	b.WriteString("\n> " + m.prompt + "_")
	return b.String()
}
