// Package technical считает сводку осцилляторов для панели графика и компонентов сигнала.
package technical

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/cryptodash/pkg/models"
)

// Config периоды индикаторов
type Config struct {
	RSIPeriod     int
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	BBPeriod      int
	ATRPeriod     int
	DeltaLookback int
}

// DefaultConfig стандартные периоды
func DefaultConfig() Config {
	return Config{
		RSIPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		BBPeriod:      20,
		ATRPeriod:     14,
		DeltaLookback: 20,
	}
}

// MinCandles минимальная история для всех индикаторов
func (c Config) MinCandles() int {
	n := c.MACDSlow + c.MACDSignal
	for _, p := range []int{c.RSIPeriod + 1, c.BBPeriod, c.ATRPeriod + 1, c.DeltaLookback} {
		if p > n {
			n = p
		}
	}
	return n
}

// Summary значения индикаторов на последней свече и их оценки -100..100
type Summary struct {
	Ready bool `json:"ready"`

	RSI         float64 `json:"rsi"`
	MACDHist    float64 `json:"macdHist"`
	PercentB    float64 `json:"percentB"`
	ATRPercent  float64 `json:"atrPercent"`
	VolumeDelta float64 `json:"volumeDelta"`

	RSIScore   float64 `json:"rsiScore"`
	MACDScore  float64 `json:"macdScore"`
	BBScore    float64 `json:"bbScore"`
	ATRScore   float64 `json:"atrScore"`
	DeltaScore float64 `json:"deltaScore"`
	Score      float64 `json:"score"`
}

// Components оценки для сохранения вместе с сигналом
func (s Summary) Components() map[string]float64 {
	if !s.Ready {
		return map[string]float64{}
	}
	return map[string]float64{
		"rsi":          s.RSIScore,
		"macd":         s.MACDScore,
		"bollinger":    s.BBScore,
		"atr":          s.ATRScore,
		"volume_delta": s.DeltaScore,
		"technical":    s.Score,
	}
}

// Analyzer реализует анализатор технических индикаторов
type Analyzer struct {
	config Config
}

// NewAnalyzer создает новый анализатор технических индикаторов
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	setDefault(&cfg.RSIPeriod, def.RSIPeriod)
	setDefault(&cfg.MACDFast, def.MACDFast)
	setDefault(&cfg.MACDSlow, def.MACDSlow)
	setDefault(&cfg.MACDSignal, def.MACDSignal)
	setDefault(&cfg.BBPeriod, def.BBPeriod)
	setDefault(&cfg.ATRPeriod, def.ATRPeriod)
	setDefault(&cfg.DeltaLookback, def.DeltaLookback)
	return &Analyzer{config: cfg}
}

// Summarize считает сводку. При недостатке истории возвращает нулевую сводку с Ready=false.
func (a *Analyzer) Summarize(candles []*models.Candle) Summary {
	if len(candles) < a.config.MinCandles() {
		return Summary{}
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	s := Summary{Ready: true}
	s.RSI, s.RSIScore = a.calculateRSI(closes)
	s.MACDHist, s.MACDScore = a.calculateMACD(closes)
	s.PercentB, s.BBScore = a.calculateBollingerBands(closes)
	s.ATRPercent, s.ATRScore = a.calculateATR(highs, lows, closes)
	s.VolumeDelta = a.cumulativeDelta(candles)
	s.DeltaScore = s.VolumeDelta

	// Комбинируем сигналы с весами
	s.Score = clamp(s.RSIScore*0.25 +
		s.MACDScore*0.25 +
		s.BBScore*0.2 +
		s.DeltaScore*0.2 +
		s.ATRScore*0.1)

	return s
}

// calculateRSI RSI и сигнал от -100 до 100
func (a *Analyzer) calculateRSI(closes []float64) (float64, float64) {
	rsi := talib.Rsi(closes, a.config.RSIPeriod)
	lastRSI := rsi[len(rsi)-1]

	// < 30: перепроданность (покупка), > 70: перекупленность (продажа)
	var signal float64
	switch {
	case lastRSI < 30:
		signal = 100 * (30 - lastRSI) / 30
	case lastRSI > 70:
		signal = -100 * (lastRSI - 70) / 30
	default:
		signal = (50 - lastRSI) * 2
	}

	return lastRSI, clamp(signal)
}

// calculateMACD гистограмма MACD, нормированная по максимуму за историю
func (a *Analyzer) calculateMACD(closes []float64) (float64, float64) {
	_, _, hist := talib.Macd(closes, a.config.MACDFast, a.config.MACDSlow, a.config.MACDSignal)
	lastHist := hist[len(hist)-1]

	maxHist := 0.0
	for _, h := range hist {
		maxHist = math.Max(maxHist, math.Abs(h))
	}
	if maxHist == 0 {
		return lastHist, 0
	}

	// Гистограмма выше нуля: MACD над сигнальной линией
	return lastHist, clamp(lastHist / maxHist * 100)
}

// calculateBollingerBands %B и сигнал, у границ полосы сильнее при широкой полосе
func (a *Analyzer) calculateBollingerBands(closes []float64) (float64, float64) {
	upper, middle, lower := talib.BBands(closes, a.config.BBPeriod, 2.0, 2.0, 0)

	lastUpper := upper[len(upper)-1]
	lastMiddle := middle[len(middle)-1]
	lastLower := lower[len(lower)-1]
	lastClose := closes[len(closes)-1]

	if lastUpper == lastLower || lastMiddle == 0 {
		return 0.5, 0
	}

	bandwidth := (lastUpper - lastLower) / lastMiddle
	percentB := (lastClose - lastLower) / (lastUpper - lastLower)

	var signal float64
	switch {
	case percentB > 1:
		signal = -100
	case percentB < 0:
		signal = 100
	case percentB > 0.8:
		signal = -80 * bandwidth
	case percentB < 0.2:
		signal = 80 * bandwidth
	default:
		signal = (0.5 - percentB) * 100 * bandwidth
	}

	return percentB, clamp(signal)
}

// calculateATR ATR в процентах от цены. Направления не дает, оценивает режим волатильности.
func (a *Analyzer) calculateATR(highs, lows, closes []float64) (float64, float64) {
	atr := talib.Atr(highs, lows, closes, a.config.ATRPeriod)
	lastATR := atr[len(atr)-1]
	lastClose := closes[len(closes)-1]
	if lastClose == 0 {
		return 0, 0
	}

	atrPercent := lastATR / lastClose * 100

	var signal float64
	switch {
	case atrPercent > 5:
		// Очень высокая волатильность: возможен разворот
		signal = -20
	case atrPercent > 3:
		signal = -10
	case atrPercent < 0.5:
		// Сжатие перед прорывом
		signal = 20
	case atrPercent < 1:
		signal = 10
	}

	return atrPercent, signal
}

// cumulativeDelta дельта объема по направлению свечей за lookback, свежие свечи весят больше.
// Результат нормирован к -100..100.
func (a *Analyzer) cumulativeDelta(candles []*models.Candle) float64 {
	lookback := a.config.DeltaLookback
	var delta, total float64

	for i := 0; i < lookback && i < len(candles); i++ {
		c := candles[len(candles)-1-i]
		v := c.Volume
		if c.Close < c.Open {
			v = -v
		}
		weight := 1.0 - float64(i)/float64(lookback)
		delta += v * weight
		total += math.Abs(v) * weight
	}

	if total == 0 {
		return 0
	}
	return clamp(delta / total * 100)
}

func setDefault(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-100, math.Min(100, v))
}
