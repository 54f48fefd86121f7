package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// PostgresLedger stores the trade ledger in an insert-only table. Rows are
// never updated or deleted.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger opens a connection and ensures the schema exists.
func NewPostgresLedger(connStr string, maxOpen, maxIdle int) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	l := &PostgresLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			coin TEXT NOT NULL,
			action TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT '',
			size DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			order_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_coin_time ON trades (coin, time)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			data JSONB
		)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate ledger schema: %w", err)
		}
	}
	return nil
}

// AppendTrade inserts one ledger record.
func (l *PostgresLedger) AppendTrade(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO trades (time, coin, action, direction, size, entry_price, exit_price, pnl, stop_loss, take_profit, order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.Time, rec.Coin, string(rec.Action), string(rec.Direction), rec.Size,
		rec.EntryPrice, rec.ExitPrice, rec.PnL, rec.StopLoss, rec.TakeProfit, rec.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// Trades returns all records for coin in append order.
func (l *PostgresLedger) Trades(ctx context.Context, coin string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT time, coin, action, direction, size, entry_price, exit_price, pnl, stop_loss, take_profit, order_id
		FROM trades WHERE ($1 = '' OR coin = $1) ORDER BY id ASC`, coin)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var action, direction string
		if err := rows.Scan(&rec.Time, &rec.Coin, &action, &direction, &rec.Size,
			&rec.EntryPrice, &rec.ExitPrice, &rec.PnL, &rec.StopLoss, &rec.TakeProfit, &rec.OrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Action = signal.Action(action)
		rec.Direction = signal.Direction(direction)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LogEvent inserts one audit event.
func (l *PostgresLedger) LogEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
		event.Time, event.Type, event.Description, data)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (l *PostgresLedger) Close() error { return l.db.Close() }
