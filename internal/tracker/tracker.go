package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"lp-hedge-bot/internal/gateway"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/rebalance"
	"lp-hedge-bot/internal/state"
	"lp-hedge-bot/internal/stream"
)

var (
	// ErrInstrumentBusy rejects a decision while a non-terminal order for
	// the same instrument is still in flight.
	ErrInstrumentBusy = errors.New("instrument has an active order")
	// ErrSubmission marks a gateway rejection after retry exhaustion.
	ErrSubmission = errors.New("order submission failed")
)

type Gateway interface {
	Submit(ctx context.Context, req gateway.OrderRequest) (bool, gateway.OrderRequest, error)
}

type Stream interface {
	Subscribe(orderID string)
	Unsubscribe(orderID string)
	Latest(orderID string) (stream.ExecutionSnapshot, bool)
}

type Notifier interface {
	Notify(ctx context.Context, message string)
}

type OrderStore interface {
	UpsertOrder(ctx context.Context, row state.OrderRow) error
}

// OrderRecord is the tracked lifecycle of one submitted order. External
// readers receive copies; only the owning Tracker mutates the live record.
type OrderRecord struct {
	OrderID    string
	Instrument string
	Action     rebalance.Action
	Quantity   float64
	Status     Status
	FillPct    float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Config struct {
	PollInterval      time.Duration
	MaxSubmitAttempts int
	FillTolerance     float64
	TimeoutBufferMS   int64
}

type trackedOrder struct {
	rec      OrderRecord
	req      gateway.OrderRequest
	deadline time.Time
	payload  []byte
}

// Tracker owns the set of in-flight orders: it submits with bounded retries,
// watches the execution stream, applies lifecycle transitions strictly in
// observation order per order id, and resolves every order to a terminal
// status exactly once.
type Tracker struct {
	gw       Gateway
	stream   Stream
	notifier Notifier
	store    OrderStore
	cfg      Config
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	active       map[string]*trackedOrder
	byInstrument map[string]string
	resolved     []OrderRecord
}

func New(gw Gateway, st Stream, notifier Notifier, store OrderStore, cfg Config, m *metrics.Metrics, log *zap.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = 1
	}
	if cfg.FillTolerance <= 0 {
		cfg.FillTolerance = 0.03
	}
	if cfg.TimeoutBufferMS <= 0 {
		cfg.TimeoutBufferMS = 10000
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		gw:           gw,
		stream:       st,
		notifier:     notifier,
		store:        store,
		cfg:          cfg,
		metrics:      m,
		log:          log,
		now:          time.Now,
		active:       make(map[string]*trackedOrder),
		byInstrument: make(map[string]string),
	}
}

// Track submits the order and begins monitoring it. Submission is retried up
// to MaxSubmitAttempts; exhaustion resolves the order as SUBMISSION_ERROR
// and alerts the operator.
func (t *Tracker) Track(ctx context.Context, req gateway.OrderRequest, action rebalance.Action) error {
	t.mu.Lock()
	if _, busy := t.byInstrument[req.Instrument]; busy {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstrumentBusy, req.Instrument)
	}
	// Reserve the instrument before the submit I/O so a concurrent decision
	// for the same symbol cannot slip in mid-flight.
	t.byInstrument[req.Instrument] = req.ID
	t.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxSubmitAttempts; attempt++ {
		accepted, echo, err := t.gw.Submit(ctx, req)
		if accepted {
			t.accept(ctx, req, echo, action)
			return nil
		}
		lastErr = err
		t.log.Warn("order submission rejected",
			zap.String("order_id", req.ID),
			zap.String("instrument", req.Instrument),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	t.mu.Lock()
	delete(t.byInstrument, req.Instrument)
	t.mu.Unlock()

	now := t.now()
	rec := OrderRecord{
		OrderID:    req.ID,
		Instrument: req.Instrument,
		Action:     action,
		Quantity:   req.TargetSize,
		Status:     StatusSubmissionError,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.persist(ctx, rec, t.encodeRequest(req))
	t.appendResolved(rec)
	t.metrics.OrdersRejected.Inc()
	t.notify(ctx, fmt.Sprintf("Order submission failed for %s (%s %.6f): %v", req.Instrument, action, req.TargetSize, lastErr))
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrSubmission, req.Instrument, t.cfg.MaxSubmitAttempts, lastErr)
}

func (t *Tracker) accept(ctx context.Context, req, echo gateway.OrderRequest, action rebalance.Action) {
	now := t.now()
	budget := TimeoutBudget(echo.TargetSize, echo.MaxOrderSize, echo.MaxAliveOrderTimeMS, echo.ChildOrderDelayMS, echo.MaxRetryAsLimitOrder, t.cfg.TimeoutBufferMS)
	ord := &trackedOrder{
		rec: OrderRecord{
			OrderID:    req.ID,
			Instrument: req.Instrument,
			Action:     action,
			Quantity:   echo.TargetSize,
			Status:     StatusReceived,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		req:      echo,
		deadline: now.Add(budget),
		payload:  t.encodeRequest(echo),
	}
	t.mu.Lock()
	t.active[req.ID] = ord
	t.byInstrument[req.Instrument] = req.ID
	t.mu.Unlock()

	t.stream.Subscribe(req.ID)
	t.persist(ctx, ord.rec, ord.payload)
	t.metrics.OrdersSubmitted.Inc()
	t.log.Info("order accepted",
		zap.String("order_id", req.ID),
		zap.String("instrument", req.Instrument),
		zap.Float64("target_size", echo.TargetSize),
		zap.Float64("max_order_size", echo.MaxOrderSize),
		zap.Duration("timeout_budget", budget),
	)
}

// Run polls in-flight orders until all resolve or the context is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if t.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// ActiveCount reports the number of non-terminal tracked orders.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Resolved returns copies of the records resolved so far this run.
func (t *Tracker) Resolved() []OrderRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]OrderRecord, len(t.resolved))
	copy(out, t.resolved)
	return out
}

func (t *Tracker) poll(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.pollOrder(ctx, id)
	}
}

func (t *Tracker) pollOrder(ctx context.Context, orderID string) {
	snap, haveSnap := t.stream.Latest(orderID)
	now := t.now()

	t.mu.Lock()
	ord, ok := t.active[orderID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if !haveSnap {
		// No execution update yet; only the timeout budget can resolve it.
		if now.After(ord.deadline) {
			t.resolveLocked(ctx, ord, EventTimeout)
		}
		t.mu.Unlock()
		return
	}
	if ord.rec.Status == StatusReceived {
		// First stream event confirms gateway intake.
		ord.rec.Status = nextStatus(ord.rec.Status, EventIntake)
		ord.rec.UpdatedAt = now
	}
	if ord.req.TargetSize > 0 {
		ord.rec.FillPct = math.Abs(snap.ExecQty / ord.req.TargetSize)
	}
	switch {
	case ord.rec.FillPct >= 1-t.cfg.FillTolerance:
		t.resolveLocked(ctx, ord, EventFilled)
	case now.After(ord.deadline):
		t.resolveLocked(ctx, ord, EventTimeout)
	default:
		ord.rec.UpdatedAt = now
	}
	t.mu.Unlock()
}

// resolveLocked applies a terminal transition and releases the order's slot.
// Callers hold t.mu; each order id passes through here at most once because
// it is removed from the active set in the same critical section.
func (t *Tracker) resolveLocked(ctx context.Context, ord *trackedOrder, event Event) {
	next := nextStatus(ord.rec.Status, event)
	if !next.Terminal() {
		return
	}
	ord.rec.Status = next
	ord.rec.UpdatedAt = t.now()
	delete(t.active, ord.rec.OrderID)
	delete(t.byInstrument, ord.rec.Instrument)
	t.resolved = append(t.resolved, ord.rec)
	rec := ord.rec
	payload := ord.payload

	t.stream.Unsubscribe(rec.OrderID)
	t.persist(ctx, rec, payload)
	switch rec.Status {
	case StatusSuccess:
		t.metrics.OrdersSucceeded.Inc()
		t.log.Info("order filled",
			zap.String("order_id", rec.OrderID),
			zap.String("instrument", rec.Instrument),
			zap.Float64("fill_pct", rec.FillPct),
		)
	case StatusExecutionError:
		t.metrics.OrdersTimedOut.Inc()
		t.log.Error("order timed out without full fill",
			zap.String("order_id", rec.OrderID),
			zap.String("instrument", rec.Instrument),
			zap.Float64("fill_pct", rec.FillPct),
		)
		t.notify(ctx, fmt.Sprintf("Order %s on %s timed out at %.1f%% filled; manual reconciliation required", rec.OrderID, rec.Instrument, rec.FillPct*100))
	}
}

func (t *Tracker) appendResolved(rec OrderRecord) {
	t.mu.Lock()
	t.resolved = append(t.resolved, rec)
	t.mu.Unlock()
}

func (t *Tracker) persist(ctx context.Context, rec OrderRecord, payload []byte) {
	if t.store == nil {
		return
	}
	row := state.OrderRow{
		OrderID:    rec.OrderID,
		Instrument: rec.Instrument,
		Action:     string(rec.Action),
		Quantity:   rec.Quantity,
		Status:     string(rec.Status),
		FillPct:    rec.FillPct,
		Payload:    payload,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if err := t.store.UpsertOrder(ctx, row); err != nil {
		t.log.Warn("failed to persist order record", zap.String("order_id", rec.OrderID), zap.Error(err))
	}
}

func (t *Tracker) encodeRequest(req gateway.OrderRequest) []byte {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		t.log.Warn("failed to encode order payload", zap.String("order_id", req.ID), zap.Error(err))
		return nil
	}
	return payload
}

func (t *Tracker) notify(ctx context.Context, message string) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(ctx, message)
}
