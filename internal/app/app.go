package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/feeds"
	"lp-hedge-bot/internal/gateway"
	"lp-hedge-bot/internal/instrument"
	"lp-hedge-bot/internal/ledger"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/rebalance"
	"lp-hedge-bot/internal/sizing"
	"lp-hedge-bot/internal/state"
	"lp-hedge-bot/internal/state/sqlite"
	"lp-hedge-bot/internal/stream"
	"lp-hedge-bot/internal/tracker"
)

// App wires one rebalance cycle end to end: snapshot both position sources,
// evaluate per-instrument decisions, submit the fired ones, and monitor the
// submitted orders until every one of them reaches a terminal status.
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	registry  *instrument.Registry
	exposures feeds.ExposureSource
	hedges    feeds.HedgeSource
	engine    *rebalance.Engine
	sizer     *sizing.Sizer
	stream    *stream.Client
	tracker   *tracker.Tracker
	ledger    *ledger.Writer
	alerts    *alerts.Telegram
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	registry, err := instrument.NewRegistry(cfg.Instruments)
	if err != nil {
		store.Close()
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	ledgerWriter, err := ledger.New(cfg.Ledger, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	streamClient := stream.New(cfg.Stream.URL, cfg.Stream.ReconnectDelay, m.StreamReconnects, log)
	gatewayClient := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, cfg.Gateway.RatePerSec, log)
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	trk := tracker.New(gatewayClient, streamClient, alertsClient, store, tracker.Config{
		PollInterval:      cfg.Tracker.PollInterval,
		MaxSubmitAttempts: cfg.Tracker.MaxSubmitAttempts,
		FillTolerance:     cfg.Tracker.FillTolerance,
		TimeoutBufferMS:   cfg.Tracker.TimeoutBufferMS,
	}, m, log)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		registry:  registry,
		exposures: feeds.NewHTTPExposureSource(cfg.Exposure.BaseURL, cfg.Exposure.Timeout, log),
		hedges:    feeds.NewHTTPHedgeSource(cfg.Hedge.BaseURL, cfg.Hedge.Timeout, log),
		engine: rebalance.NewEngine(rebalance.Policy{
			PositiveTrigger: cfg.Policy.PositiveTrigger,
			NegativeTrigger: cfg.Policy.NegativeTrigger,
			MinUSDTrigger:   cfg.Policy.MinUSDTrigger,
			ManualBandPct:   cfg.Policy.ManualBandPct,
		}, log),
		sizer: sizing.New(sizing.Config{
			NotionalThresholdUSD: cfg.Sizing.NotionalThresholdUSD,
			ChildDelayMinMS:      cfg.Sizing.ChildDelayMinMS,
			ChildDelayMaxMS:      cfg.Sizing.ChildDelayMaxMS,
			AliveTimeMinMS:       cfg.Sizing.AliveTimeMinMS,
			AliveTimeMaxMS:       cfg.Sizing.AliveTimeMaxMS,
			MaxRetryAsLimitOrder: cfg.Sizing.MaxRetryAsLimitOrder,
		}, rand.New(rand.NewSource(time.Now().UnixNano()))),
		stream:  streamClient,
		tracker: trk,
		ledger:  ledgerWriter,
		alerts:  alertsClient,
		metrics: m,
		prom:    prom,
	}, nil
}

// Run executes one full cycle and returns once every submitted order is
// terminal. It returns an error only when no fresh position data could be
// obtained at all; a single unavailable source skips the cycle cleanly.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.stream != nil {
		defer a.stream.Close()
	}
	if a.prom != nil {
		a.serveMetrics(ctx)
	}
	a.ledger.Start(ctx)
	defer a.ledger.Close()

	exposures, expErr := a.exposures.ReadExposures(ctx)
	hedges, hedErr := a.hedges.ReadHedges(ctx)
	if expErr != nil && hedErr != nil {
		a.alerts.Notify(ctx, "hedge cycle aborted: all position sources unavailable")
		return fmt.Errorf("no position source available: exposure: %v, hedge: %w", expErr, hedErr)
	}
	if expErr != nil || hedErr != nil {
		a.log.Warn("position source unavailable, skipping cycle",
			zap.NamedError("exposure_err", expErr),
			zap.NamedError("hedge_err", hedErr),
		)
		return nil
	}

	decisions := a.engine.Evaluate(exposures, hedges, a.registry.AutoSymbols())
	a.recordDecisions(ctx, decisions)
	writeSummary(os.Stdout, decisions)

	submitted := a.submitFired(ctx, decisions, hedges)
	a.log.Info("decision cycle complete",
		zap.Int("decisions", len(decisions)),
		zap.Int("submitted", submitted),
	)

	if a.tracker.ActiveCount() > 0 {
		if err := a.tracker.Run(ctx); err != nil {
			return err
		}
	}
	a.recordResolved()
	a.ledger.Drain(ctx)
	return nil
}

func (a *App) recordDecisions(ctx context.Context, decisions []rebalance.Decision) {
	now := time.Now().UTC()
	for _, d := range decisions {
		a.metrics.DecisionsEvaluated.Inc()
		if d.TriggerFired {
			a.metrics.TriggersFired.Inc()
		}
		row := state.DecisionRow{
			Time:         now,
			Instrument:   d.Instrument,
			Action:       string(d.Action),
			Value:        d.Value,
			PctDiff:      d.PctDifference,
			AutoMode:     d.AutoMode,
			TriggerFired: d.TriggerFired,
		}
		if err := a.store.AppendDecision(ctx, row); err != nil {
			a.log.Warn("decision persist failed", zap.String("instrument", d.Instrument), zap.Error(err))
		}
		a.ledger.EnqueueDecision(row)
	}
}

// submitFired sizes and submits every fired auto-mode decision. A failure on
// one instrument never blocks the others.
func (a *App) submitFired(ctx context.Context, decisions []rebalance.Decision, hedges map[string]rebalance.HedgePosition) int {
	submitted := 0
	for _, d := range decisions {
		if !d.AutoMode || !d.TriggerFired || d.Action == rebalance.ActionNone {
			continue
		}
		inst, ok := a.registry.Get(d.Instrument)
		if !ok {
			a.log.Warn("decision for unknown instrument", zap.String("instrument", d.Instrument))
			continue
		}
		req, err := a.sizer.Build(d, hedges[d.Instrument].MarkPrice, inst)
		if err != nil {
			a.log.Warn("order sizing failed", zap.String("instrument", d.Instrument), zap.Error(err))
			continue
		}
		if err := a.tracker.Track(ctx, req, d.Action); err != nil {
			a.log.Warn("order submission failed",
				zap.String("instrument", d.Instrument),
				zap.String("order_id", req.ID),
				zap.Error(err),
			)
			continue
		}
		submitted++
	}
	return submitted
}

func (a *App) recordResolved() {
	for _, rec := range a.tracker.Resolved() {
		a.ledger.EnqueueOrder(state.OrderRow{
			OrderID:    rec.OrderID,
			Instrument: rec.Instrument,
			Action:     string(rec.Action),
			Quantity:   rec.Quantity,
			Status:     string(rec.Status),
			FillPct:    rec.FillPct,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
