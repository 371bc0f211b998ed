package models

import (
	"strings"
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string    `json:"symbol,omitempty"`
	Interval  string    `json:"interval,omitempty"`
	OpenTime  time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"closeTime,omitempty"`
}

// Bullish свеча закрылась не ниже открытия
func (c *Candle) Bullish() bool {
	return c.Close >= c.Open
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// Ticker сводка по инструменту за 24 часа
type Ticker struct {
	Symbol     string    `json:"symbol"`
	Last       float64   `json:"last"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Volume     float64   `json:"volume"`
	Change     float64   `json:"change"`
	Percentage float64   `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}

// Market торгуемая пара биржи
type Market struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Active bool   `json:"active"`
}

// FundingRate представляет ставку финансирования
type FundingRate struct {
	Symbol          string
	Rate            float64
	Timestamp       time.Time
	NextFundingTime time.Time
}

// TradeSide сторона сделки
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade сделка из ленты
type Trade struct {
	ID        string    `json:"id"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Side      TradeSide `json:"side"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	IsLarge   bool      `json:"isLarge"`
	IsWhale   bool      `json:"isWhale"`
}

// Notional объем сделки в валюте котировки
func (t *Trade) Notional() float64 {
	return t.Price * t.Amount
}

// LiquidationSide сторона ликвидированной позиции
type LiquidationSide string

const (
	LiquidationLong  LiquidationSide = "long"
	LiquidationShort LiquidationSide = "short"
)

// Liquidation принудительное закрытие позиции
type Liquidation struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      LiquidationSide `json:"side"`
	Price     float64         `json:"price"`
	Size      float64         `json:"size"`
	ValueUSD  float64         `json:"valueUsd"`
	Timestamp time.Time       `json:"timestamp"`
}

// FeedStats накопленная статистика ленты за сессию
type FeedStats struct {
	BuyVolume         float64 `json:"buyVolume"`
	SellVolume        float64 `json:"sellVolume"`
	LargeTradesCount  int     `json:"largeTradesCount"`
	LiquidationsCount int     `json:"liquidationsCount"`
}

// CVD кумулятивная дельта объема
func (s FeedStats) CVD() float64 {
	return s.BuyVolume - s.SellVolume
}

// SignalType тип торгового сигнала
type SignalType string

const (
	StrongBuy  SignalType = "strong_buy"
	Buy        SignalType = "buy"
	Neutral    SignalType = "neutral"
	Sell       SignalType = "sell"
	StrongSell SignalType = "strong_sell"
)

// Signal сигнал с уверенностью 0..100
type Signal struct {
	Type       SignalType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// SignalResult представляет сохраненный результат сигнала
type SignalResult struct {
	Symbol       string             `json:"symbol"`
	Interval     string             `json:"interval"`
	Timestamp    time.Time          `json:"timestamp"`
	Signal       Signal             `json:"signal"`
	CurrentPrice float64            `json:"price"`
	Components   map[string]float64 `json:"components,omitempty"`
}

// NewsItem новость с оценкой тональности
type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment string    `json:"sentiment"`
	Symbols   []string  `json:"symbols"`
}

// Sentiment сводный индекс настроений рынка
type Sentiment struct {
	Timestamp      time.Time `json:"timestamp"`
	FearGreedIndex int       `json:"fearGreedIndex"`
	FearGreedLabel string    `json:"fearGreedLabel"`
	NewsScore      float64   `json:"newsScore"`
	FlowScore      float64   `json:"flowScore"`
	FundingScore   float64   `json:"fundingScore"`
	BullishNews    int       `json:"bullishNews"`
	BearishNews    int       `json:"bearishNews"`
}

// ExchangeSymbol переводит BASE/QUOTE в формат биржи BASEQUOTE
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// DisplaySymbol переводит BASEQUOTE обратно в BASE/QUOTE для известных котировок
func DisplaySymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}

// TrainingExample снимок признаков и сигнала для офлайн-обучения
type TrainingExample struct {
	Timestamp  time.Time          `json:"timestamp"`
	Symbol     string             `json:"symbol"`
	Interval   string             `json:"interval"`
	Price      float64            `json:"price"`
	Signal     Signal             `json:"signal"`
	Conditions map[string]int     `json:"conditions"`
	Features   map[string]float64 `json:"features"`
}
