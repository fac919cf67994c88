package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/state"
)

const writeTimeout = 3 * time.Second

// Writer mirrors the decision and order ledgers into TimescaleDB for
// long-term audit and replay. It is optional: New returns nil when the
// ledger is disabled, and all methods are nil-receiver safe so call sites
// stay unconditional.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	decisions chan state.DecisionRow
	orders    chan state.OrderRow
	started   atomic.Bool
	dropDec   atomic.Uint64
	dropOrd   atomic.Uint64
}

func New(cfg config.LedgerConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("ledger dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		decisions: make(chan state.DecisionRow, queueSize),
		orders:    make(chan state.OrderRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueDecision(row state.DecisionRow) {
	if w == nil {
		return
	}
	select {
	case w.decisions <- row:
		return
	default:
		if w.dropDec.Add(1) == 1 && w.log != nil {
			w.log.Warn("ledger decision queue full")
		}
	}
}

func (w *Writer) EnqueueOrder(row state.OrderRow) {
	if w == nil {
		return
	}
	select {
	case w.orders <- row:
		return
	default:
		if w.dropOrd.Add(1) == 1 && w.log != nil {
			w.log.Warn("ledger order queue full")
		}
	}
}

// Drain flushes whatever is queued before a run-to-completion process
// exits; decisions are small enough to write synchronously here.
func (w *Writer) Drain(ctx context.Context) {
	if w == nil {
		return
	}
	for {
		select {
		case row := <-w.decisions:
			w.writeDecision(ctx, row)
		case row := <-w.orders:
			w.writeOrder(ctx, row)
		default:
			return
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.decisions:
			w.writeDecision(ctx, row)
		case row := <-w.orders:
			w.writeOrder(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("ledger db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		instrument TEXT NOT NULL,
		action TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		pct_diff DOUBLE PRECISION NOT NULL,
		auto_mode BOOLEAN NOT NULL,
		trigger_fired BOOLEAN NOT NULL
	)`, w.table("hedge_decisions"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		order_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		fill_pct DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (order_id, updated_at)
	)`, w.table("hedge_orders"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("hedge_decisions"))); err != nil && w.log != nil {
		w.log.Warn("hedge_decisions hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeDecision(ctx context.Context, row state.DecisionRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, instrument, action, value, pct_diff, auto_mode, trigger_fired
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("hedge_decisions"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Instrument,
		row.Action,
		row.Value,
		row.PctDiff,
		row.AutoMode,
		row.TriggerFired,
	); err != nil && w.log != nil {
		w.log.Warn("ledger decision insert failed", zap.Error(err))
	}
}

func (w *Writer) writeOrder(ctx context.Context, row state.OrderRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		order_id, instrument, action, quantity, status, fill_pct, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (order_id, updated_at) DO NOTHING`, w.table("hedge_orders"))
	if _, err := w.db.ExecContext(ctx, query,
		row.OrderID,
		row.Instrument,
		row.Action,
		row.Quantity,
		row.Status,
		row.FillPct,
		row.CreatedAt,
		row.UpdatedAt,
	); err != nil && w.log != nil {
		w.log.Warn("ledger order insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
