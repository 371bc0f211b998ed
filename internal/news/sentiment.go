package news

import (
	"context"
	"math"
	"time"

	"github.com/skalibog/cryptodash/internal/analysis/funding"
	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Веса составляющих индекса
const (
	weightNews    = 0.4
	weightFlow    = 0.3
	weightFunding = 0.3
)

// FlowSource статистика ленты сделок
type FlowSource interface {
	Stats() models.FeedStats
}

// Label подпись индекса страха и жадности
func Label(index int) string {
	switch {
	case index < 25:
		return "Extreme Fear"
	case index < 45:
		return "Fear"
	case index <= 55:
		return "Neutral"
	case index <= 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}

// NewsScore баланс бычьих и медвежьих новостей, -100..100
func NewsScore(items []models.NewsItem) (score float64, bullish, bearish int) {
	for _, it := range items {
		switch it.Sentiment {
		case Bullish:
			bullish++
		case Bearish:
			bearish++
		}
	}
	if bullish+bearish == 0 {
		return 0, bullish, bearish
	}
	return float64(bullish-bearish) / float64(bullish+bearish) * 100, bullish, bearish
}

// FlowScore доля кумулятивной дельты в обороте, -100..100
func FlowScore(stats models.FeedStats) float64 {
	total := stats.BuyVolume + stats.SellVolume
	if total == 0 {
		return 0
	}
	return stats.CVD() / total * 100
}

// SentimentAggregator строит индекс из новостей, потока сделок и ставок финансирования
type SentimentAggregator struct {
	flow    FlowSource
	store   storage.Storage
	funding *funding.Analyzer
	symbols []string
	now     func() time.Time
}

// NewSentimentAggregator flow и store могут быть nil, тогда составляющая равна нулю
func NewSentimentAggregator(flow FlowSource, store storage.Storage, fundingCfg funding.Config, symbols []string) *SentimentAggregator {
	return &SentimentAggregator{
		flow:    flow,
		store:   store,
		funding: funding.NewAnalyzer(fundingCfg),
		symbols: symbols,
		now:     time.Now,
	}
}

// Calculate сводный индекс 0..100, 50 нейтрально
func (a *SentimentAggregator) Calculate(ctx context.Context, items []models.NewsItem) models.Sentiment {
	s := models.Sentiment{Timestamp: a.now().UTC()}
	s.NewsScore, s.BullishNews, s.BearishNews = NewsScore(items)

	if a.flow != nil {
		s.FlowScore = FlowScore(a.flow.Stats())
	}
	s.FundingScore = a.fundingScore(ctx)

	composite := s.NewsScore*weightNews + s.FlowScore*weightFlow + s.FundingScore*weightFunding
	index := int(math.Round(50 + composite/2))
	if index < 0 {
		index = 0
	}
	if index > 100 {
		index = 100
	}
	s.FearGreedIndex = index
	s.FearGreedLabel = Label(index)
	return s
}

// fundingScore среднее по символам, для которых есть ставки
func (a *SentimentAggregator) fundingScore(ctx context.Context) float64 {
	if a.store == nil {
		return 0
	}
	var sum float64
	n := 0
	for _, symbol := range a.symbols {
		score, err := a.funding.Analyze(ctx, a.store, symbol)
		if err != nil {
			logger.Debug("Нет ставок финансирования для индекса", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
