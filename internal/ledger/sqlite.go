package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_totals (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    generations INTEGER NOT NULL DEFAULT 0,
    bookings INTEGER NOT NULL DEFAULT 0,
    api_calls INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO usage_totals (id) VALUES (1);

CREATE TABLE IF NOT EXISTS style_popularity (
    style_id INTEGER PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0
);
`

// SQLite is the durable ledger. All increments are single atomic
// statements, so concurrent requests cannot lose updates.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (l *SQLite) RecordGeneration(ctx context.Context, styleID int64, apiCalls int) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE usage_totals SET generations = generations + 1, api_calls = api_calls + ? WHERE id = 1`,
		apiCalls,
	); err != nil {
		return fmt.Errorf("update totals: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO style_popularity (style_id, count) VALUES (?, 1)
		 ON CONFLICT(style_id) DO UPDATE SET count = count + 1`,
		styleID,
	); err != nil {
		return fmt.Errorf("update popularity: %w", err)
	}

	return tx.Commit()
}

func (l *SQLite) RecordBooking(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE usage_totals SET bookings = bookings + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("update bookings: %w", err)
	}
	return nil
}

func (l *SQLite) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := l.db.QueryRowContext(ctx,
		`SELECT generations, bookings, api_calls FROM usage_totals WHERE id = 1`,
	).Scan(&t.Generations, &t.Bookings, &t.APICalls)
	if err != nil {
		return Totals{}, fmt.Errorf("read totals: %w", err)
	}
	return t, nil
}

func (l *SQLite) Popularity(ctx context.Context) (map[int64]int64, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT style_id, count FROM style_popularity ORDER BY count DESC, style_id`)
	if err != nil {
		return nil, fmt.Errorf("read popularity: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var styleID, count int64
		if err := rows.Scan(&styleID, &count); err != nil {
			return nil, fmt.Errorf("scan popularity: %w", err)
		}
		out[styleID] = count
	}
	return out, rows.Err()
}
