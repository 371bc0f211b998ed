package assistant

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/internal/trading"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestReplyByIntent(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTC/USDT",
		Price:  65000,
		Signal: &models.SignalResult{Signal: models.Signal{Type: models.StrongBuy, Confidence: 100}},
		Positions: []trading.Position{{
			Symbol:     "BTC/USDT",
			Side:       trading.Long,
			EntryPrice: decimal.NewFromInt(60000),
			Quantity:   decimal.NewFromFloat(0.1),
			Leverage:   5,
		}},
		Equity:    decimal.NewFromInt(10500),
		Sentiment: &models.Sentiment{FearGreedIndex: 72, FearGreedLabel: "Greed", BullishNews: 4, BearishNews: 1},
	}
	a := New()
	ctx := context.Background()

	tests := []struct {
		prompt string
		want   string
	}{
		{"Какой сигнал?", "strong_buy, уверенность 100%"},
		{"what's the price", "65000.00"},
		{"мои позиции", "PnL 500.00"},
		{"fear and greed?", "72 (Greed)"},
		{"привет", "Спросите про сигнал"},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Contains(t, a.Reply(ctx, tt.prompt, snap), tt.want)
		})
	}
}

func TestReplyWithoutData(t *testing.T) {
	a := New()
	ctx := context.Background()
	snap := Snapshot{Symbol: "ETH/USDT", Equity: decimal.NewFromInt(10000)}

	assert.Contains(t, a.Reply(ctx, "signal", snap), "еще не рассчитан")
	assert.Contains(t, a.Reply(ctx, "price", snap), "неизвестна")
	assert.Contains(t, a.Reply(ctx, "positions", snap), "10000.00")
	assert.Contains(t, a.Reply(ctx, "sentiment", snap), "пока нет")
}

func TestReplyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, New().Reply(ctx, "signal", Snapshot{}))
}

func TestAssistantInterface(t *testing.T) {
	var _ Assistant = New()
}
