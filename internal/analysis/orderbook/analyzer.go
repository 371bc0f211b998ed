package orderbook

import (
	"math"
	"sort"

	"github.com/skalibog/cryptodash/pkg/models"
)

// Config настройки анализа стакана
type Config struct {
	DepthPercent       float64 // полоса глубины от mid, в процентах
	ImbalanceThreshold float64 // дисбаланс меньше порога считается нулевым
	WallFactor         float64 // стена: объем уровня > среднего * WallFactor
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		DepthPercent:       1,
		ImbalanceThreshold: 5,
		WallFactor:         3,
	}
}

// Summary метрики стакана для панели Book
type Summary struct {
	BestBid   float64 `json:"bestBid"`
	BestAsk   float64 `json:"bestAsk"`
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spreadBps"`

	BidDepth  float64 `json:"bidDepth"` // объем в полосе DepthPercent
	AskDepth  float64 `json:"askDepth"`
	Imbalance float64 `json:"imbalance"` // -100..100, плюс = перевес покупателей

	BidWall *OrderLevel `json:"bidWall,omitempty"`
	AskWall *OrderLevel `json:"askWall,omitempty"`

	DepthSignal  float64 `json:"depthSignal"`
	SpreadSignal float64 `json:"spreadSignal"`
	Score        float64 `json:"score"`
}

// Analyzer реализует анализатор стакана заявок
type Analyzer struct {
	config Config
}

// NewAnalyzer создает новый анализатор стакана заявок
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.DepthPercent <= 0 {
		cfg.DepthPercent = def.DepthPercent
	}
	if cfg.WallFactor <= 0 {
		cfg.WallFactor = def.WallFactor
	}
	if cfg.ImbalanceThreshold < 0 {
		cfg.ImbalanceThreshold = 0
	}
	return &Analyzer{config: cfg}
}

// Summarize считает метрики. Если одна из сторон пуста, возвращает нулевые значения.
func (a *Analyzer) Summarize(book *models.OrderBook) Summary {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return Summary{}
	}
	bids, asks := sortLevels(book)

	s := Summary{
		BestBid: bids[0].Price,
		BestAsk: asks[0].Price,
	}
	s.Mid = (s.BestBid + s.BestAsk) / 2
	s.Spread = s.BestAsk - s.BestBid
	if s.Mid > 0 {
		s.SpreadBps = s.Spread / s.Mid * 10000
	}

	band := a.config.DepthPercent / 100
	for _, b := range bids {
		if s.Mid > 0 && 1-b.Price/s.Mid <= band {
			s.BidDepth += b.Amount
		}
	}
	for _, ask := range asks {
		if s.Mid > 0 && ask.Price/s.Mid-1 <= band {
			s.AskDepth += ask.Amount
		}
	}

	s.Imbalance = a.calculateImbalance(bids, asks)
	s.BidWall = findWall(bids, a.config.WallFactor)
	s.AskWall = findWall(asks, a.config.WallFactor)
	s.DepthSignal = calculateDepth(bids, asks, s.Mid)
	s.SpreadSignal = calculateSpreads(bids, asks)

	// Комбинируем сигналы с весами
	s.Score = clamp(s.Imbalance*0.5 + s.DepthSignal*0.3 + s.SpreadSignal*0.2)
	return s
}

// sortLevels биды по убыванию цены, аски по возрастанию
func sortLevels(book *models.OrderBook) ([]OrderLevel, []OrderLevel) {
	bids := make([]OrderLevel, len(book.Bids))
	for i, b := range book.Bids {
		bids[i] = OrderLevel(b)
	}
	asks := make([]OrderLevel, len(book.Asks))
	for i, ask := range book.Asks {
		asks[i] = OrderLevel(ask)
	}

	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Price > bids[j].Price
	})
	sort.Slice(asks, func(i, j int) bool {
		return asks[i].Price < asks[j].Price
	})

	return bids, asks
}

// calculateImbalance рассчитывает дисбаланс между спросом и предложением
func (a *Analyzer) calculateImbalance(bids, asks []OrderLevel) float64 {
	var totalBidVolume, totalAskVolume float64
	for _, bid := range bids {
		totalBidVolume += bid.Amount
	}
	for _, ask := range asks {
		totalAskVolume += ask.Amount
	}

	totalVolume := totalBidVolume + totalAskVolume
	if totalVolume == 0 {
		return 0
	}

	// Положительные значения указывают на преобладание покупателей
	imbalance := (totalBidVolume - totalAskVolume) / totalVolume * 100
	if math.Abs(imbalance) < a.config.ImbalanceThreshold {
		imbalance = 0
	}

	return imbalance
}

// calculateDepth сравнивает объемы сторон на уровнях 0.5%, 1%, 2%, 5% от mid.
// Близкие уровни имеют больший вес.
func calculateDepth(bids, asks []OrderLevel, mid float64) float64 {
	if mid <= 0 {
		return 0
	}
	depthLevels := []float64{0.005, 0.01, 0.02, 0.05}
	weights := []float64{0.4, 0.3, 0.2, 0.1}

	bidDepthVolumes := make([]float64, len(depthLevels))
	askDepthVolumes := make([]float64, len(depthLevels))

	for _, bid := range bids {
		deviation := 1 - bid.Price/mid
		for i, level := range depthLevels {
			if deviation <= level {
				bidDepthVolumes[i] += bid.Amount
			}
		}
	}
	for _, ask := range asks {
		deviation := ask.Price/mid - 1
		for i, level := range depthLevels {
			if deviation <= level {
				askDepthVolumes[i] += ask.Amount
			}
		}
	}

	var weightedSignal float64
	for i := range depthLevels {
		total := bidDepthVolumes[i] + askDepthVolumes[i]
		if total == 0 {
			continue
		}
		weightedSignal += (bidDepthVolumes[i] - askDepthVolumes[i]) / total * weights[i]
	}

	return weightedSignal * 100
}

// calculateSpreads сравнивает шаг цен между уровнями сторон.
// Более широкий шаг на асках означает меньшее сопротивление сверху.
func calculateSpreads(bids, asks []OrderLevel) float64 {
	mid := (asks[0].Price + bids[0].Price) / 2
	if mid <= 0 {
		return 0
	}
	currentSpread := (asks[0].Price - bids[0].Price) / mid

	bidSpreads := calculateAverageSpreads(bids, 5)
	askSpreads := calculateAverageSpreads(asks, 5)

	spreadRatio := 0.0
	if bidSpreads > 0 && askSpreads > 0 {
		spreadRatio = (askSpreads - bidSpreads) / math.Max(bidSpreads, askSpreads)
	}

	// Узкий спред означает высокую ликвидность
	spreadFactor := math.Min(currentSpread*100, 1.0)

	return spreadRatio * (1 - spreadFactor) * 50
}

// calculateAverageSpreads средний относительный шаг между соседними уровнями.
// Уровни уже отсортированы от лучшей цены.
func calculateAverageSpreads(levels []OrderLevel, count int) float64 {
	if len(levels) < count+1 {
		count = len(levels) - 1
	}
	if count <= 0 {
		return 0
	}

	var totalSpread float64
	for i := 0; i < count; i++ {
		higher := math.Max(levels[i].Price, levels[i+1].Price)
		lower := math.Min(levels[i].Price, levels[i+1].Price)
		if lower > 0 {
			totalSpread += (higher - lower) / lower
		}
	}

	return totalSpread / float64(count)
}

// findWall самый крупный уровень, если он больше среднего в factor раз
func findWall(levels []OrderLevel, factor float64) *OrderLevel {
	if len(levels) < 2 {
		return nil
	}

	var total float64
	largest := 0
	for i, level := range levels {
		total += level.Amount
		if level.Amount > levels[largest].Amount {
			largest = i
		}
	}
	avg := total / float64(len(levels))
	if levels[largest].Amount <= avg*factor {
		return nil
	}

	wall := levels[largest]
	return &wall
}

func clamp(v float64) float64 {
	return math.Max(-100, math.Min(100, v))
}

// OrderLevel представляет уровень с численными значениями
type OrderLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}
