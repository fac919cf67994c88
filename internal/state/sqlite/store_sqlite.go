package sqlite

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"lp-hedge-bot/internal/state"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TIMESTAMP NOT NULL,
			instrument TEXT NOT NULL,
			action TEXT NOT NULL,
			value REAL NOT NULL,
			pct_diff REAL NOT NULL,
			auto_mode INTEGER NOT NULL,
			trigger_fired INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			instrument TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity REAL NOT NULL,
			status TEXT NOT NULL,
			fill_pct REAL NOT NULL,
			payload BLOB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// AppendDecision writes one decision ledger row. The ledger is append-only.
func (s *Store) AppendDecision(ctx context.Context, row state.DecisionRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (ts, instrument, action, value, pct_diff, auto_mode, trigger_fired) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.Time, row.Instrument, row.Action, row.Value, row.PctDiff, row.AutoMode, row.TriggerFired,
	)
	return err
}

// UpsertOrder writes or replaces an order ledger row keyed by order id.
func (s *Store) UpsertOrder(ctx context.Context, row state.OrderRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, instrument, action, quantity, status, fill_pct, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			fill_pct = excluded.fill_pct,
			updated_at = excluded.updated_at`,
		row.OrderID, row.Instrument, row.Action, row.Quantity, row.Status, row.FillPct, row.Payload, row.CreatedAt, row.UpdatedAt,
	)
	return err
}

// GetOrder reads back one order ledger row.
func (s *Store) GetOrder(ctx context.Context, orderID string) (state.OrderRow, bool, error) {
	var row state.OrderRow
	err := s.db.QueryRowContext(ctx,
		`SELECT order_id, instrument, action, quantity, status, fill_pct, payload, created_at, updated_at FROM orders WHERE order_id = ?`,
		orderID,
	).Scan(&row.OrderID, &row.Instrument, &row.Action, &row.Quantity, &row.Status, &row.FillPct, &row.Payload, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.OrderRow{}, false, nil
		}
		return state.OrderRow{}, false, err
	}
	return row, true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
