package funding

import (
	"context"
	"testing"

	"github.com/skalibog/cryptodash/internal/storage"
	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rates история новыми первыми
func rates(values ...float64) []*models.FundingRate {
	out := make([]*models.FundingRate, len(values))
	for i, v := range values {
		out[i] = &models.FundingRate{Symbol: "BTC/USDT", Rate: v}
	}
	return out
}

func TestScoreContrarian(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	hot := a.Score(rates(0.003, 0.002, 0.001))
	cold := a.Score(rates(-0.003, -0.002, -0.001))
	assert.Less(t, hot, 0.0, "rising positive funding is bearish")
	assert.Greater(t, cold, 0.0)
	assert.InDelta(t, -hot, cold, 1e-9)

	assert.Equal(t, 0.0, a.Score(nil))
	assert.Equal(t, 0.0, a.Score(rates(0)))
}

func TestScoreBounded(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	for _, r := range [][]float64{
		{1, -1, 1},
		{-1, 1, -1},
		{0.0001},
		{0.0004, 0.0001},
	} {
		s := a.Score(rates(r...))
		assert.GreaterOrEqual(t, s, -100.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestTrendUsesChronologicalOrder(t *testing.T) {
	// Новые первыми: ставка росла от 0.0001 до 0.0003
	assert.Less(t, analyzeTrend(rates(0.0003, 0.0002, 0.0001)), 0.0)
	assert.Greater(t, analyzeTrend(rates(0.0001, 0.0002, 0.0003)), 0.0)
	assert.Equal(t, 0.0, analyzeTrend(rates(0.1, 0.2)))
}

func TestCalculateSlope(t *testing.T) {
	assert.InDelta(t, 2.0, calculateSlope([]float64{1, 3, 5, 7}), 1e-12)
	assert.Equal(t, 0.0, calculateSlope([]float64{1}))
}

func TestAnalyzeFromStorage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	a := NewAnalyzer(Config{})

	_, err := a.Analyze(ctx, store, "BTC/USDT")
	assert.Error(t, err)

	require.NoError(t, store.SaveFundingRate(ctx, &models.FundingRate{Symbol: "BTC/USDT", Rate: -0.001}))
	score, err := a.Analyze(ctx, store, "BTC/USDT")
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
}
