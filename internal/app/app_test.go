package app

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/feeds"
	"lp-hedge-bot/internal/gateway"
	"lp-hedge-bot/internal/instrument"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/rebalance"
	"lp-hedge-bot/internal/sizing"
	"lp-hedge-bot/internal/state/sqlite"
	"lp-hedge-bot/internal/stream"
	"lp-hedge-bot/internal/tracker"
)

type fakeExposureSource struct {
	readings map[string]rebalance.ExposureReading
	err      error
}

func (f *fakeExposureSource) ReadExposures(context.Context) (map[string]rebalance.ExposureReading, error) {
	return f.readings, f.err
}

type fakeHedgeSource struct {
	positions map[string]rebalance.HedgePosition
	err       error
}

func (f *fakeHedgeSource) ReadHedges(context.Context) (map[string]rebalance.HedgePosition, error) {
	return f.positions, f.err
}

// fakeVenue plays both the execution gateway and the execution stream:
// every accepted order is immediately reported as fully filled.
type fakeVenue struct {
	submitted []gateway.OrderRequest
}

func (v *fakeVenue) Submit(_ context.Context, req gateway.OrderRequest) (bool, gateway.OrderRequest, error) {
	v.submitted = append(v.submitted, req)
	return true, req, nil
}

func (v *fakeVenue) Subscribe(string)   {}
func (v *fakeVenue) Unsubscribe(string) {}

func (v *fakeVenue) Latest(orderID string) (stream.ExecutionSnapshot, bool) {
	for _, req := range v.submitted {
		if req.ID == orderID {
			return stream.ExecutionSnapshot{
				OrderID:    orderID,
				ExecQty:    req.TargetSize,
				TargetSize: req.TargetSize,
				State:      "FILLED",
				ReceivedAt: time.Now(),
			}, true
		}
	}
	return stream.ExecutionSnapshot{}, false
}

func newTestApp(t *testing.T, exp feeds.ExposureSource, hed feeds.HedgeSource, venue *fakeVenue, autoMode bool) *App {
	t.Helper()
	log := zap.NewNop()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	registry, err := instrument.NewRegistry([]config.InstrumentConfig{
		{Symbol: "ETH", UnitScale: 1, Auto: autoMode},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	notifier := alerts.NewTelegram(config.TelegramConfig{}, log)
	trk := tracker.New(venue, venue, notifier, store, tracker.Config{
		PollInterval:      5 * time.Millisecond,
		MaxSubmitAttempts: 1,
		FillTolerance:     0.03,
		TimeoutBufferMS:   10000,
	}, metrics.NewNoop(), log)

	return &App{
		cfg:       &config.Config{},
		log:       log,
		store:     store,
		registry:  registry,
		exposures: exp,
		hedges:    hed,
		engine: rebalance.NewEngine(rebalance.Policy{
			PositiveTrigger: 0.2,
			NegativeTrigger: -0.2,
			MinUSDTrigger:   100,
			ManualBandPct:   10,
		}, log),
		sizer: sizing.New(sizing.Config{
			NotionalThresholdUSD: 100000,
			ChildDelayMinMS:      200,
			ChildDelayMaxMS:      1000,
			AliveTimeMinMS:       5000,
			AliveTimeMaxMS:       8000,
			MaxRetryAsLimitOrder: 3,
		}, rand.New(rand.NewSource(1))),
		tracker: trk,
		alerts:  notifier,
		metrics: metrics.NewNoop(),
	}
}

func TestRunSubmitsAndResolvesFiredDecision(t *testing.T) {
	venue := &fakeVenue{}
	exp := &fakeExposureSource{readings: map[string]rebalance.ExposureReading{
		"ETH": {Instrument: "ETH", Quantity: 130},
	}}
	hed := &fakeHedgeSource{positions: map[string]rebalance.HedgePosition{
		"ETH": {Instrument: "ETH", Quantity: -90, MarkPrice: 2000},
	}}
	app := newTestApp(t, exp, hed, venue, true)

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(venue.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(venue.submitted))
	}
	req := venue.submitted[0]
	if req.Side != gateway.SideSell {
		t.Fatalf("side = %s, want sell", req.Side)
	}
	if req.TargetSize != 40 {
		t.Fatalf("target size = %f, want 40", req.TargetSize)
	}

	recs := app.tracker.Resolved()
	if len(recs) != 1 {
		t.Fatalf("resolved = %d, want 1", len(recs))
	}
	if recs[0].Status != tracker.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", recs[0].Status)
	}
	if recs[0].FillPct != 1 {
		t.Fatalf("fill pct = %f, want 1", recs[0].FillPct)
	}
}

func TestRunManualModeNeverSubmits(t *testing.T) {
	venue := &fakeVenue{}
	exp := &fakeExposureSource{readings: map[string]rebalance.ExposureReading{
		"ETH": {Instrument: "ETH", Quantity: 130},
	}}
	hed := &fakeHedgeSource{positions: map[string]rebalance.HedgePosition{
		"ETH": {Instrument: "ETH", Quantity: -90, MarkPrice: 2000},
	}}
	app := newTestApp(t, exp, hed, venue, false)

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(venue.submitted) != 0 {
		t.Fatalf("submitted = %d, want 0", len(venue.submitted))
	}
}

func TestRunAllSourcesUnavailable(t *testing.T) {
	venue := &fakeVenue{}
	exp := &fakeExposureSource{err: feeds.ErrDataUnavailable}
	hed := &fakeHedgeSource{err: feeds.ErrDataUnavailable}
	app := newTestApp(t, exp, hed, venue, true)

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("expected error when no source is available")
	}
}

func TestRunSingleSourceUnavailableSkipsCycle(t *testing.T) {
	venue := &fakeVenue{}
	exp := &fakeExposureSource{readings: map[string]rebalance.ExposureReading{
		"ETH": {Instrument: "ETH", Quantity: 130},
	}}
	hed := &fakeHedgeSource{err: feeds.ErrDataUnavailable}
	app := newTestApp(t, exp, hed, venue, true)

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(venue.submitted) != 0 {
		t.Fatalf("submitted = %d, want 0", len(venue.submitted))
	}
}
