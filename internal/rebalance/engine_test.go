package rebalance

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

func testEngine() *Engine {
	return NewEngine(Policy{
		PositiveTrigger: 0.2,
		NegativeTrigger: -0.2,
		MinUSDTrigger:   200,
		ManualBandPct:   10,
	}, zap.NewNop())
}

func evalOne(t *testing.T, e *Engine, lpQty float64, hedge HedgePosition, auto bool) Decision {
	t.Helper()
	exposures := map[string]ExposureReading{}
	if lpQty != 0 {
		exposures["ETHUSDT"] = ExposureReading{Instrument: "ETHUSDT", Quantity: lpQty}
	}
	hedges := map[string]HedgePosition{}
	if hedge != (HedgePosition{}) {
		hedge.Instrument = "ETHUSDT"
		hedges["ETHUSDT"] = hedge
	}
	decisions := e.Evaluate(exposures, hedges, map[string]bool{"ETHUSDT": auto})
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	return decisions[0]
}

func TestCloseOnZeroExposure(t *testing.T) {
	dec := evalOne(t, testEngine(), 0, HedgePosition{Quantity: -50, MarkPrice: 1}, true)
	if dec.Action != ActionClose {
		t.Fatalf("expected close, got %s", dec.Action)
	}
	if dec.Value != 50 {
		t.Fatalf("expected value 50, got %f", dec.Value)
	}
	if !dec.TriggerFired {
		t.Fatalf("expected trigger fired for close")
	}
}

func TestCloseIgnoresUSDGate(t *testing.T) {
	// Residual hedge notional far below min_usd_trigger must still close.
	dec := evalOne(t, testEngine(), 0, HedgePosition{Quantity: -0.1, MarkPrice: 10}, true)
	if dec.Action != ActionClose {
		t.Fatalf("expected close, got %s", dec.Action)
	}
}

func TestMissingHedgeAlwaysTriggers(t *testing.T) {
	dec := evalOne(t, testEngine(), 1000, HedgePosition{MarkPrice: 1}, true)
	if dec.Action != ActionSell {
		t.Fatalf("expected sell, got %s", dec.Action)
	}
	if dec.Value != 1000 {
		t.Fatalf("expected value 1000, got %f", dec.Value)
	}
}

func TestHysteresisDeadBand(t *testing.T) {
	// ratio = 100/90 - 1 = 0.111, inside (-0.2, 0.2): no action.
	e := NewEngine(Policy{PositiveTrigger: 0.2, NegativeTrigger: -0.2}, zap.NewNop())
	dec := evalOne(t, e, 100, HedgePosition{Quantity: -90, MarkPrice: 1}, true)
	if dec.Action != ActionNone {
		t.Fatalf("expected none inside dead-band, got %s", dec.Action)
	}
	// ratio = 130/90 - 1 = 0.444 > 0.2: sell.
	dec = evalOne(t, e, 130, HedgePosition{Quantity: -90, MarkPrice: 1}, true)
	if dec.Action != ActionSell {
		t.Fatalf("expected sell above positive trigger, got %s", dec.Action)
	}
	if math.Abs(dec.Value-40) > 1e-9 {
		t.Fatalf("expected value 40, got %f", dec.Value)
	}
}

func TestUSDGateSuppressesSmallDrift(t *testing.T) {
	e := testEngine()
	// difference = 0, usd_difference = 0 < 200: nothing to do.
	dec := evalOne(t, e, 1000, HedgePosition{Quantity: -1000, MarkPrice: 1}, true)
	if dec.Action != ActionNone {
		t.Fatalf("expected none at parity, got %s", dec.Action)
	}
	// difference = 300, usd 300 >= 200, ratio 0.4286 > 0.2: sell 300.
	dec = evalOne(t, e, 1000, HedgePosition{Quantity: -700, MarkPrice: 1}, true)
	if dec.Action != ActionSell {
		t.Fatalf("expected sell, got %s", dec.Action)
	}
	if math.Abs(dec.Value-300) > 1e-9 {
		t.Fatalf("expected value 300, got %f", dec.Value)
	}
	if !dec.TriggerFired {
		t.Fatalf("expected trigger fired")
	}
}

func TestUSDGateBlocksRatioTrigger(t *testing.T) {
	// ratio breaches the trigger but the drift is worth only 100 USD.
	e := NewEngine(Policy{PositiveTrigger: 0.2, NegativeTrigger: -0.2, MinUSDTrigger: 200}, zap.NewNop())
	dec := evalOne(t, e, 100, HedgePosition{Quantity: -50, MarkPrice: 2}, true)
	if dec.Action != ActionNone {
		t.Fatalf("expected none below usd gate, got %s", dec.Action)
	}
}

func TestBuyReducesShortBelowNegativeTrigger(t *testing.T) {
	e := NewEngine(Policy{PositiveTrigger: 0.2, NegativeTrigger: -0.2}, zap.NewNop())
	dec := evalOne(t, e, 50, HedgePosition{Quantity: -100, MarkPrice: 1}, true)
	if dec.Action != ActionBuy {
		t.Fatalf("expected buy, got %s", dec.Action)
	}
	if dec.Value != 50 {
		t.Fatalf("expected value 50, got %f", dec.Value)
	}
}

func TestManualModeAdvisory(t *testing.T) {
	e := testEngine()
	dec := evalOne(t, e, 100, HedgePosition{Quantity: -60, MarkPrice: 1}, false)
	if dec.Action != ActionSell {
		t.Fatalf("expected sell suggestion, got %s", dec.Action)
	}
	if dec.Value != 40 {
		t.Fatalf("expected value 40, got %f", dec.Value)
	}
	if dec.TriggerFired {
		t.Fatalf("manual decisions must never fire the auto trigger")
	}
	// 5% drift sits inside the 10% advisory band.
	dec = evalOne(t, e, 100, HedgePosition{Quantity: -95, MarkPrice: 1}, false)
	if dec.Action != ActionNone {
		t.Fatalf("expected none inside manual band, got %s", dec.Action)
	}
}

func TestSignViolationSkipsInstrumentOnly(t *testing.T) {
	e := testEngine()
	exposures := map[string]ExposureReading{
		"BADUSDT": {Instrument: "BADUSDT", Quantity: -5},
		"ETHUSDT": {Instrument: "ETHUSDT", Quantity: 130},
	}
	hedges := map[string]HedgePosition{
		"LONGUSDT": {Instrument: "LONGUSDT", Quantity: 10, MarkPrice: 1},
		"ETHUSDT":  {Instrument: "ETHUSDT", Quantity: -90, MarkPrice: 100},
	}
	decisions := e.Evaluate(exposures, hedges, map[string]bool{"ETHUSDT": true})
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if decisions[0].Instrument != "ETHUSDT" || decisions[0].Action != ActionSell {
		t.Fatalf("unexpected decision %+v", decisions[0])
	}
}

func TestFlatInstrumentsProduceNoDecision(t *testing.T) {
	e := testEngine()
	decisions := e.Evaluate(
		map[string]ExposureReading{"ETHUSDT": {Instrument: "ETHUSDT", Quantity: 0}},
		map[string]HedgePosition{"ETHUSDT": {Instrument: "ETHUSDT", Quantity: 0}},
		nil,
	)
	if len(decisions) != 0 {
		t.Fatalf("expected no decisions, got %d", len(decisions))
	}
}
