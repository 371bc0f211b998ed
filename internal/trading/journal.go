package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/skalibog/cryptodash/pkg/logger"
	"go.uber.org/zap"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS paper_trades (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry_price NUMERIC NOT NULL,
	exit_price  NUMERIC NOT NULL,
	quantity    NUMERIC NOT NULL,
	leverage    INTEGER NOT NULL,
	pnl         NUMERIC NOT NULL,
	fee         NUMERIC NOT NULL,
	reason      TEXT NOT NULL,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ NOT NULL
)`

// JournalRow строка таблицы paper_trades
type JournalRow struct {
	ID         string    `db:"id"`
	Symbol     string    `db:"symbol"`
	Side       string    `db:"side"`
	EntryPrice string    `db:"entry_price"`
	ExitPrice  string    `db:"exit_price"`
	Quantity   string    `db:"quantity"`
	Leverage   int       `db:"leverage"`
	PnL        string    `db:"pnl"`
	Fee        string    `db:"fee"`
	Reason     string    `db:"reason"`
	OpenedAt   time.Time `db:"opened_at"`
	ClosedAt   time.Time `db:"closed_at"`
}

// NewJournalRow переводит сделку в строку таблицы
func NewJournalRow(t ClosedTrade) JournalRow {
	return JournalRow{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		EntryPrice: t.EntryPrice.String(),
		ExitPrice:  t.ExitPrice.String(),
		Quantity:   t.Quantity.String(),
		Leverage:   t.Leverage,
		PnL:        t.PnL.String(),
		Fee:        t.Fee.String(),
		Reason:     t.Reason,
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
	}
}

// PostgresJournal журнал сделок в PostgreSQL
type PostgresJournal struct {
	db *sqlx.DB
}

// NewPostgresJournal подключается к базе и создает таблицу
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка создания таблицы paper_trades: %w", err)
	}
	logger.Info("Журнал сделок подключен")
	return &PostgresJournal{db: db}, nil
}

// RecordTrade вставляет сделку, повтор по id игнорируется
func (j *PostgresJournal) RecordTrade(ctx context.Context, trade ClosedTrade) error {
	query := `
		INSERT INTO paper_trades (id, symbol, side, entry_price, exit_price, quantity, leverage, pnl, fee, reason, opened_at, closed_at)
		VALUES (:id, :symbol, :side, :entry_price, :exit_price, :quantity, :leverage, :pnl, :fee, :reason, :opened_at, :closed_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := j.db.NamedExecContext(ctx, query, NewJournalRow(trade)); err != nil {
		return fmt.Errorf("PostgresJournal.RecordTrade: %w", err)
	}
	logger.Debug("Сделка записана в журнал", zap.String("id", trade.ID))
	return nil
}

// Recent последние сделки из журнала
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]JournalRow, error) {
	query := `
		SELECT id, symbol, side, entry_price, exit_price, quantity, leverage, pnl, fee, reason, opened_at, closed_at
		FROM paper_trades
		ORDER BY closed_at DESC
		LIMIT $1
	`
	var rows []JournalRow
	if err := j.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("PostgresJournal.Recent: %w", err)
	}
	return rows, nil
}

// Close закрывает соединение
func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
