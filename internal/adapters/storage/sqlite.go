package storage

// sqlite.go is the append-only trade journal.
//
// One row per executed leg, never updated. Realized PnL is derived from
// SELL rows at query time, so the journal stays the single source of truth
// for accounting across restarts.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alvarohm/upbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    executed_at DATETIME NOT NULL,
    token_id   TEXT NOT NULL,
    outcome    TEXT NOT NULL,
    side       TEXT NOT NULL,
    price      REAL NOT NULL,
    size       REAL NOT NULL,
    pnl        REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_at    ON trades(executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_token ON trades(token_id);
`

// SQLiteStore implements ports.TradeStore using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal at dsn. ":memory:" works
// for tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes one executed trade leg.
func (s *SQLiteStore) Append(ctx context.Context, rec domain.TradeRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (executed_at, token_id, outcome, side, price, size, pnl)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, rec.TokenID, string(rec.Outcome), string(rec.Side), rec.Price, rec.Size, rec.PnL,
	)
	if err != nil {
		return fmt.Errorf("storage.Append: %w", err)
	}
	return nil
}

// History returns the trades executed in [from, to], oldest first.
func (s *SQLiteStore) History(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT executed_at, token_id, outcome, side, price, size, pnl
		 FROM trades
		 WHERE executed_at >= ? AND executed_at <= ?
		 ORDER BY executed_at ASC, id ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.History: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var outcome, side string
		if err := rows.Scan(&rec.Timestamp, &rec.TokenID, &outcome, &side, &rec.Price, &rec.Size, &rec.PnL); err != nil {
			return nil, fmt.Errorf("storage.History: scan: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.Side = domain.Side(side)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RealizedPnL sums realized PnL over all SELL legs, in cents.
func (s *SQLiteStore) RealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE side = 'SELL'`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedPnL: %w", err)
	}
	return total, nil
}

// Close closes the database cleanly.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
