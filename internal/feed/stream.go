package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

const (
	exchangeName      = "binance"
	liquidationStream = "!forceOrder@arr"
	readTimeout       = 90 * time.Second
)

// Sink получает классифицированные события ленты
type Sink interface {
	OnTrade(t models.Trade)
	OnLiquidation(l models.Liquidation)
}

// Stream поток сделок и ликвидаций с биржи с автоматическим переподключением
type Stream struct {
	url    string
	agg    *Aggregator
	sink   Sink
	dialer *websocket.Dialer

	mu      sync.Mutex
	symbols []string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStream создает поток. sink может быть nil.
func NewStream(url string, agg *Aggregator, sink Sink) *Stream {
	return &Stream{
		url:    url,
		agg:    agg,
		sink:   sink,
		dialer: websocket.DefaultDialer,
	}
}

// Aggregator агрегатор потока
func (s *Stream) Aggregator() *Aggregator {
	return s.agg
}

// Connected состояние соединения
func (s *Stream) Connected() bool {
	return s.agg.Connected()
}

// Price последняя цена символа
func (s *Stream) Price(symbol string) (float64, bool) {
	return s.agg.Price(models.DisplaySymbol(symbol))
}

// Symbols текущая подписка
func (s *Stream) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.symbols...)
}

// Live снимок агрегатора с последними ценами подписанных символов
func (s *Stream) Live() Snapshot {
	snap := s.agg.Snapshot()
	for _, symbol := range s.Symbols() {
		price, ok := s.Price(symbol)
		if !ok {
			continue
		}
		if snap.Prices == nil {
			snap.Prices = make(map[string]float64)
		}
		snap.Prices[models.DisplaySymbol(symbol)] = price
	}
	return snap
}

// Subscribe явно переподключается к новому списку символов и начинает новую сессию статистики
func (s *Stream) Subscribe(ctx context.Context, symbols []string) {
	s.Close()

	s.agg.Reset()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.symbols = append([]string(nil), symbols...)
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	url := StreamURL(s.url, symbols)
	go func() {
		defer close(done)
		s.run(runCtx, url)
	}()
}

// Close останавливает поток и дожидается завершения
func (s *Stream) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.agg.SetConnected(false)
}

// run держит соединение, после обрыва переподключается с экспоненциальной задержкой.
// Статистика агрегатора при этом не сбрасывается.
func (s *Stream) run(ctx context.Context, url string) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := s.connect(ctx, url, b.Reset)
		s.agg.SetConnected(false)
		if ctx.Err() != nil {
			return
		}

		delay := b.Duration()
		logger.Warn("Соединение с лентой потеряно, переподключение",
			zap.Error(err),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Stream) connect(ctx context.Context, url string, onConnected func()) error {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("ошибка подключения к %s: %w", url, err)
	}
	defer conn.Close()

	s.agg.SetConnected(true)
	onConnected()
	logger.Info("Подключено к ленте сделок", zap.String("url", url))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ошибка чтения: %w", err)
		}
		if err := s.HandleMessage(message); err != nil {
			logger.Debug("Пропущено сообщение ленты", zap.Error(err))
		}
	}
}

// HandleMessage разбирает сообщение комбинированного потока и передает событие агрегатору
func (s *Stream) HandleMessage(message []byte) error {
	var msg combinedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("ошибка разбора сообщения: %w", err)
	}

	switch {
	case strings.HasSuffix(msg.Stream, "@aggTrade"):
		t, err := ParseAggTrade(msg.Data)
		if err != nil {
			return err
		}
		t = s.agg.ProcessTrade(t)
		if s.sink != nil {
			s.sink.OnTrade(t)
		}
	case msg.Stream == liquidationStream:
		l, err := ParseForceOrder(msg.Data)
		if err != nil {
			return err
		}
		if !s.subscribed(l.Symbol) {
			return nil
		}
		l = s.agg.ProcessLiquidation(l)
		if s.sink != nil {
			s.sink.OnLiquidation(l)
		}
	default:
		return fmt.Errorf("неизвестный поток %q", msg.Stream)
	}
	return nil
}

// subscribed ликвидации приходят по всем рынкам, оставляем только подписанные
func (s *Stream) subscribed(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.symbols) == 0 {
		return true
	}
	for _, sym := range s.symbols {
		if models.DisplaySymbol(sym) == symbol {
			return true
		}
	}
	return false
}

// StreamURL адрес комбинированного потока для списка символов
func StreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols)+1)
	for _, sym := range symbols {
		streams = append(streams, strings.ToLower(models.ExchangeSymbol(sym))+"@aggTrade")
	}
	streams = append(streams, liquidationStream)
	return strings.TrimRight(base, "/?") + "?streams=" + strings.Join(streams, "/")
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type aggTradeEvent struct {
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type forceOrderEvent struct {
	EventTime int64 `json:"E"`
	Order     struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		OrigQuantity string `json:"q"`
		Price        string `json:"p"`
		AvgPrice     string `json:"ap"`
		TradeTime    int64  `json:"T"`
	} `json:"o"`
}

// ParseAggTrade разбирает агрегированную сделку. Покупатель-мейкер означает агрессивную продажу.
func ParseAggTrade(data []byte) (models.Trade, error) {
	var ev aggTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Trade{}, fmt.Errorf("ошибка разбора сделки: %w", err)
	}
	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("некорректная цена сделки %q: %w", ev.Price, err)
	}
	qty, err := strconv.ParseFloat(ev.Quantity, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("некорректный объем сделки %q: %w", ev.Quantity, err)
	}

	side := models.SideBuy
	if ev.IsBuyerMaker {
		side = models.SideSell
	}

	return models.Trade{
		ID:        strconv.FormatInt(ev.AggTradeID, 10),
		Exchange:  exchangeName,
		Symbol:    models.DisplaySymbol(ev.Symbol),
		Side:      side,
		Price:     price,
		Amount:    qty,
		Timestamp: time.UnixMilli(ev.TradeTime),
	}, nil
}

// ParseForceOrder разбирает принудительный ордер. Продажа закрывает лонг, покупка шорт.
func ParseForceOrder(data []byte) (models.Liquidation, error) {
	var ev forceOrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Liquidation{}, fmt.Errorf("ошибка разбора ликвидации: %w", err)
	}
	o := ev.Order

	price, err := strconv.ParseFloat(o.AvgPrice, 64)
	if err != nil || price == 0 {
		price, err = strconv.ParseFloat(o.Price, 64)
		if err != nil {
			return models.Liquidation{}, fmt.Errorf("некорректная цена ликвидации %q: %w", o.Price, err)
		}
	}
	size, err := strconv.ParseFloat(o.OrigQuantity, 64)
	if err != nil {
		return models.Liquidation{}, fmt.Errorf("некорректный объем ликвидации %q: %w", o.OrigQuantity, err)
	}

	side := models.LiquidationShort
	if strings.EqualFold(o.Side, "SELL") {
		side = models.LiquidationLong
	}

	return models.Liquidation{
		ID:        fmt.Sprintf("%s-%d", o.Symbol, o.TradeTime),
		Symbol:    models.DisplaySymbol(o.Symbol),
		Side:      side,
		Price:     price,
		Size:      size,
		ValueUSD:  price * size,
		Timestamp: time.UnixMilli(o.TradeTime),
	}, nil
}
