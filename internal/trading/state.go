// Package trading бумажная торговля: баланс, позиции со стопами, история сделок
// и пользовательские настройки с явной загрузкой и сохранением.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptodash/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientBalance не хватает средств на маржу и комиссию
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrPositionNotFound позиция не найдена
	ErrPositionNotFound = errors.New("position not found")
	// ErrInvalidOrder некорректные параметры заявки
	ErrInvalidOrder = errors.New("invalid order")
)

// Side направление позиции
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Причины закрытия
const (
	ReasonManual     = "manual"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// Position открытая позиция
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`
	Margin     decimal.Decimal `json:"margin"`
	StopLoss   decimal.Decimal `json:"stopLoss"`   // ноль без стопа
	TakeProfit decimal.Decimal `json:"takeProfit"` // ноль без тейка
	OpenedAt   time.Time       `json:"openedAt"`
}

// PnL нереализованный результат по цене price
func (p Position) PnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == Short {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// ClosedTrade закрытая сделка
type ClosedTrade struct {
	Position
	ExitPrice decimal.Decimal `json:"exitPrice"`
	PnL       decimal.Decimal `json:"pnl"` // после комиссии закрытия
	Fee       decimal.Decimal `json:"fee"`
	Reason    string          `json:"reason"`
	ClosedAt  time.Time       `json:"closedAt"`
}

// Order заявка на открытие позиции
type Order struct {
	Symbol        string
	Side          Side
	Size          decimal.Decimal // объем позиции в валюте котировки
	Price         decimal.Decimal
	Leverage      int
	StopLossPct   float64
	TakeProfitPct float64
}

// Settings настройки дашборда
type Settings struct {
	Symbol         string `json:"symbol"`
	Timeframe      string `json:"timeframe"`
	ShowIndicators bool   `json:"showIndicators"`
}

// Snapshot сохраняемая часть состояния. Других полей в хранилище нет.
type Snapshot struct {
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
	History   []ClosedTrade   `json:"history"`
	Settings  Settings        `json:"settings"`
	Watchlist []string        `json:"watchlist"`
}

// Store загружает и сохраняет Snapshot
type Store interface {
	// Load возвращает nil без ошибки, если состояние еще не сохранялось
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Journal получает закрытые сделки
type Journal interface {
	RecordTrade(ctx context.Context, trade ClosedTrade) error
}

// Config параметры счета
type Config struct {
	InitialBalance decimal.Decimal
	FeeRate        decimal.Decimal
	MaxHistory     int
	Settings       Settings
}

// State состояние бумажного счета. Передается вьюхам явно.
type State struct {
	config  Config
	store   Store
	journal Journal

	mu        sync.RWMutex
	balance   decimal.Decimal
	positions []Position
	history   []ClosedTrade
	settings  Settings
	watchlist []string
	prices    map[string]decimal.Decimal // не сохраняется

	now func() time.Time
}

// NewState создает счет с начальным балансом. store и journal могут быть nil.
func NewState(cfg Config, store Store, journal Journal) *State {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}
	return &State{
		config:   cfg,
		store:    store,
		journal:  journal,
		balance:  cfg.InitialBalance,
		settings: cfg.Settings,
		prices:   make(map[string]decimal.Decimal),
		now:      time.Now,
	}
}

// Load восстанавливает состояние из хранилища
func (s *State) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки состояния: %w", err)
	}
	if snap == nil {
		logger.Info("Сохраненного состояния нет, используется начальный баланс",
			zap.String("balance", s.config.InitialBalance.String()))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = snap.Balance
	s.positions = append([]Position(nil), snap.Positions...)
	s.history = append([]ClosedTrade(nil), snap.History...)
	if snap.Settings.Symbol != "" {
		s.settings = snap.Settings
	}
	s.watchlist = append([]string(nil), snap.Watchlist...)

	logger.Info("Состояние загружено",
		zap.String("balance", s.balance.String()),
		zap.Int("positions", len(s.positions)))
	return nil
}

// Save сохраняет разрешенные поля
func (s *State) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("ошибка сохранения состояния: %w", err)
	}
	return nil
}

// Snapshot копия сохраняемых полей
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Balance:   s.balance,
		Positions: append([]Position{}, s.positions...),
		History:   append([]ClosedTrade{}, s.history...),
		Settings:  s.settings,
		Watchlist: append([]string{}, s.watchlist...),
	}
}

// Open открывает позицию. С баланса списываются маржа и комиссия открытия.
func (s *State) Open(order Order) (Position, error) {
	if order.Symbol == "" || !order.Size.IsPositive() || !order.Price.IsPositive() {
		return Position{}, fmt.Errorf("%w: symbol=%q size=%s price=%s",
			ErrInvalidOrder, order.Symbol, order.Size, order.Price)
	}
	if order.Side != Long && order.Side != Short {
		return Position{}, fmt.Errorf("%w: side=%q", ErrInvalidOrder, order.Side)
	}
	if order.Leverage < 1 {
		order.Leverage = 1
	}

	margin := order.Size.Div(decimal.NewFromInt(int64(order.Leverage)))
	fee := order.Size.Mul(s.config.FeeRate)

	pos := Position{
		ID:         uuid.NewString(),
		Symbol:     order.Symbol,
		Side:       order.Side,
		EntryPrice: order.Price,
		Quantity:   order.Size.Div(order.Price),
		Leverage:   order.Leverage,
		Margin:     margin,
		StopLoss:   stopPrice(order.Price, order.Side, order.StopLossPct, true),
		TakeProfit: stopPrice(order.Price, order.Side, order.TakeProfitPct, false),
		OpenedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cost := margin.Add(fee)
	if s.balance.LessThan(cost) {
		return Position{}, fmt.Errorf("%w: нужно %s, доступно %s",
			ErrInsufficientBalance, cost.StringFixed(2), s.balance.StringFixed(2))
	}
	s.balance = s.balance.Sub(cost)
	s.positions = append(s.positions, pos)
	s.prices[pos.Symbol] = order.Price

	logger.Info("Открыта позиция",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.String("price", pos.EntryPrice.String()),
		zap.String("size", order.Size.String()))
	return pos, nil
}

// stopPrice цена стопа или тейка в процентах от входа. Ноль при pct <= 0.
func stopPrice(entry decimal.Decimal, side Side, pct float64, loss bool) decimal.Decimal {
	if pct <= 0 {
		return decimal.Zero
	}
	delta := entry.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	// Стоп лонга ниже входа, тейк выше; для шорта наоборот
	if (side == Long) == loss {
		return entry.Sub(delta)
	}
	return entry.Add(delta)
}

// Close закрывает позицию по цене price
func (s *State) Close(ctx context.Context, id string, price decimal.Decimal) (ClosedTrade, error) {
	s.mu.Lock()
	trade, err := s.closeLocked(id, price, ReasonManual)
	s.mu.Unlock()
	if err != nil {
		return ClosedTrade{}, err
	}
	s.record(ctx, trade)
	return trade, nil
}

// CloseAll закрывает все позиции по последним известным ценам
func (s *State) CloseAll(ctx context.Context) []ClosedTrade {
	s.mu.Lock()
	var closed []ClosedTrade
	for len(s.positions) > 0 {
		p := s.positions[0]
		price, ok := s.prices[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		trade, err := s.closeLocked(p.ID, price, ReasonManual)
		if err != nil {
			break
		}
		closed = append(closed, trade)
	}
	s.mu.Unlock()

	for _, trade := range closed {
		s.record(ctx, trade)
	}
	return closed
}

// UpdatePrice запоминает цену и закрывает позиции, достигшие стопа или тейка
func (s *State) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) []ClosedTrade {
	s.mu.Lock()
	s.prices[symbol] = price

	var triggered []ClosedTrade
	for i := 0; i < len(s.positions); {
		p := s.positions[i]
		reason := ""
		if p.Symbol == symbol {
			reason = triggerReason(p, price)
		}
		if reason == "" {
			i++
			continue
		}
		exit := p.StopLoss
		if reason == ReasonTakeProfit {
			exit = p.TakeProfit
		}
		trade, err := s.closeLocked(p.ID, exit, reason)
		if err != nil {
			i++
			continue
		}
		triggered = append(triggered, trade)
	}
	s.mu.Unlock()

	for _, trade := range triggered {
		s.record(ctx, trade)
	}
	return triggered
}

func triggerReason(p Position, price decimal.Decimal) string {
	switch p.Side {
	case Long:
		if !p.StopLoss.IsZero() && price.LessThanOrEqual(p.StopLoss) {
			return ReasonStopLoss
		}
		if !p.TakeProfit.IsZero() && price.GreaterThanOrEqual(p.TakeProfit) {
			return ReasonTakeProfit
		}
	case Short:
		if !p.StopLoss.IsZero() && price.GreaterThanOrEqual(p.StopLoss) {
			return ReasonStopLoss
		}
		if !p.TakeProfit.IsZero() && price.LessThanOrEqual(p.TakeProfit) {
			return ReasonTakeProfit
		}
	}
	return ""
}

func (s *State) closeLocked(id string, price decimal.Decimal, reason string) (ClosedTrade, error) {
	idx := -1
	for i, p := range s.positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ClosedTrade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}

	p := s.positions[idx]
	fee := price.Mul(p.Quantity).Mul(s.config.FeeRate)
	pnl := p.PnL(price).Sub(fee)

	s.balance = s.balance.Add(p.Margin).Add(pnl)
	s.positions = append(s.positions[:idx], s.positions[idx+1:]...)

	trade := ClosedTrade{
		Position:  p,
		ExitPrice: price,
		PnL:       pnl,
		Fee:       fee,
		Reason:    reason,
		ClosedAt:  s.now(),
	}
	s.history = append([]ClosedTrade{trade}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}

	logger.Info("Позиция закрыта",
		zap.String("id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", reason),
		zap.String("pnl", pnl.StringFixed(2)))
	return trade, nil
}

func (s *State) record(ctx context.Context, trade ClosedTrade) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTrade(ctx, trade); err != nil {
		logger.Warn("Не удалось записать сделку в журнал", zap.String("id", trade.ID), zap.Error(err))
	}
}

// UnrealizedPnL суммарный результат открытых позиций по последним ценам
func (s *State) UnrealizedPnL() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unrealizedLocked()
}

func (s *State) unrealizedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		if price, ok := s.prices[p.Symbol]; ok {
			total = total.Add(p.PnL(price))
		}
	}
	return total
}

// Equity баланс плюс маржа и нереализованный результат
func (s *State) Equity() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	equity := s.balance.Add(s.unrealizedLocked())
	for _, p := range s.positions {
		equity = equity.Add(p.Margin)
	}
	return equity
}

// Balance свободные средства
func (s *State) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Positions копия открытых позиций
func (s *State) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Position{}, s.positions...)
}

// History закрытые сделки, новые первыми
func (s *State) History() []ClosedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ClosedTrade{}, s.history...)
}

// Price последняя известная цена символа
func (s *State) Price(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Reset возвращает счет к начальному балансу. Настройки и список наблюдения сохраняются.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.config.InitialBalance
	s.positions = nil
	s.history = nil
	logger.Info("Счет сброшен", zap.String("balance", s.balance.String()))
}

// Settings текущие настройки
func (s *State) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings изменяет настройки
func (s *State) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.settings
}

// Watchlist список наблюдения
func (s *State) Watchlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.watchlist...)
}

// Watch добавляет символ, повтор игнорируется
func (s *State) Watch(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchlist {
		if w == symbol {
			return
		}
	}
	s.watchlist = append(s.watchlist, symbol)
	sort.Strings(s.watchlist)
}

// Unwatch удаляет символ
func (s *State) Unwatch(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watchlist {
		if w == symbol {
			s.watchlist = append(s.watchlist[:i], s.watchlist[i+1:]...)
			return
		}
	}
}
