// Package assistant отвечает на вопросы во вкладке Assistant по текущему
// состоянию дашборда. Ответы собираются из шаблонов, внешних моделей нет.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Snapshot состояние дашборда в момент вопроса
type Snapshot struct {
	Symbol    string
	Price     float64
	Signal    *models.SignalResult
	Positions []trading.Position
	Equity    decimal.Decimal
	Sentiment *models.Sentiment
}

// Assistant отвечает на вопрос пользователя
type Assistant interface {
	Reply(ctx context.Context, prompt string, snap Snapshot) string
}

type intent int

const (
	intentHelp intent = iota
	intentSignal
	intentPrice
	intentPositions
	intentSentiment
)

// Порядок важен: первое совпадение определяет тему
var intentKeywords = []struct {
	intent   intent
	keywords []string
}{
	{intentPositions, []string{"позици", "position", "pnl", "баланс", "balance"}},
	{intentSignal, []string{"сигнал", "signal", "ichimoku", "ишимоку", "купить", "продать", "buy", "sell"}},
	{intentSentiment, []string{"настроен", "sentiment", "страх", "fear", "greed", "новост", "news"}},
	{intentPrice, []string{"цена", "price", "стоит", "курс"}},
}

// Canned отвечает по шаблонам
type Canned struct{}

// New создает ассистента
func New() *Canned {
	return &Canned{}
}

// Reply возвращает ответ. Отмененный контекст дает пустую строку.
func (a *Canned) Reply(ctx context.Context, prompt string, snap Snapshot) string {
	if ctx.Err() != nil {
		return ""
	}
	switch classify(prompt) {
	case intentSignal:
		return signalReply(snap)
	case intentPrice:
		return priceReply(snap)
	case intentPositions:
		return positionsReply(snap)
	case intentSentiment:
		return sentimentReply(snap)
	default:
		return "Спросите про сигнал, цену, позиции или настроение рынка по " + symbolOrDefault(snap) + "."
	}
}

func classify(prompt string) intent {
	text := strings.ToLower(prompt)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.intent
			}
		}
	}
	return intentHelp
}

func signalReply(snap Snapshot) string {
	if snap.Signal == nil {
		return fmt.Sprintf("Сигнал по %s еще не рассчитан: недостаточно свечей.", symbolOrDefault(snap))
	}
	sig := snap.Signal.Signal
	var advice string
	switch sig.Type {
	case models.StrongBuy:
		advice = "Все условия Ichimoku бычьи, тренд вверх."
	case models.Buy:
		advice = "Перевес бычьих условий, но подтверждение неполное."
	case models.StrongSell:
		advice = "Все условия Ichimoku медвежьи, тренд вниз."
	case models.Sell:
		advice = "Перевес медвежьих условий, но подтверждение неполное."
	default:
		advice = "Явного направления нет, лучше дождаться выхода из облака."
	}
	return fmt.Sprintf("%s: %s, уверенность %.0f%%. %s", symbolOrDefault(snap), sig.Type, sig.Confidence, advice)
}

func priceReply(snap Snapshot) string {
	if snap.Price <= 0 {
		return fmt.Sprintf("Цена %s пока неизвестна.", symbolOrDefault(snap))
	}
	return fmt.Sprintf("%s сейчас торгуется по %.2f.", symbolOrDefault(snap), snap.Price)
}

func positionsReply(snap Snapshot) string {
	if len(snap.Positions) == 0 {
		return fmt.Sprintf("Открытых позиций нет. Капитал %s USDT.", snap.Equity.StringFixed(2))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Открыто позиций: %d, капитал %s USDT.", len(snap.Positions), snap.Equity.StringFixed(2))
	for _, p := range snap.Positions {
		fmt.Fprintf(&b, "\n%s %s x%d по %s", p.Symbol, p.Side, p.Leverage, p.EntryPrice.StringFixed(2))
		if snap.Price > 0 && p.Symbol == snap.Symbol {
			fmt.Fprintf(&b, ", PnL %s", p.PnL(decimal.NewFromFloat(snap.Price)).StringFixed(2))
		}
	}
	return b.String()
}

func sentimentReply(snap Snapshot) string {
	if snap.Sentiment == nil {
		return "Данных о настроении рынка пока нет."
	}
	s := snap.Sentiment
	return fmt.Sprintf("Индекс страха и жадности %d (%s). Бычьих новостей %d, медвежьих %d.",
		s.FearGreedIndex, s.FearGreedLabel, s.BullishNews, s.BearishNews)
}

func symbolOrDefault(snap Snapshot) string {
	if snap.Symbol == "" {
		return "рынку"
	}
	return snap.Symbol
}
