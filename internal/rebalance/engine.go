package rebalance

import (
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"
)

// ErrSignInvariant marks exposure or hedge data whose sign contradicts the
// data model: LP quantities must be >= 0 and hedges <= 0.
var ErrSignInvariant = errors.New("sign invariant violated")

// Engine turns exposure and hedge snapshots into per-instrument decisions.
// It performs no I/O; collaborators supply fresh snapshots each cycle.
type Engine struct {
	policy Policy
	log    *zap.Logger
}

func NewEngine(policy Policy, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{policy: policy, log: log}
}

// Evaluate produces one Decision per instrument that has LP exposure or a
// residual hedge. Instruments with inconsistent signs are skipped and
// logged; one bad instrument never aborts the batch.
func (e *Engine) Evaluate(exposures map[string]ExposureReading, hedges map[string]HedgePosition, auto map[string]bool) []Decision {
	symbols := make(map[string]struct{}, len(exposures)+len(hedges))
	for s := range exposures {
		symbols[s] = struct{}{}
	}
	for s := range hedges {
		symbols[s] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	decisions := make([]Decision, 0, len(ordered))
	for _, symbol := range ordered {
		lpQty := exposures[symbol].Quantity
		hedge := hedges[symbol]
		if lpQty == 0 && hedge.Quantity == 0 {
			continue
		}
		if lpQty < 0 || hedge.Quantity > 0 {
			e.log.Warn("skipping instrument with inconsistent signs",
				zap.String("instrument", symbol),
				zap.Float64("lp_qty", lpQty),
				zap.Float64("hedged_qty", hedge.Quantity),
				zap.Error(ErrSignInvariant),
			)
			continue
		}
		decisions = append(decisions, e.decide(symbol, lpQty, hedge, auto[symbol]))
	}
	return decisions
}

func (e *Engine) decide(symbol string, lpQty float64, hedge HedgePosition, auto bool) Decision {
	hedgedAbs := math.Abs(hedge.Quantity)
	diff := lpQty - hedgedAbs
	pct := 0.0
	if lpQty > 0 {
		pct = math.Abs(diff) / lpQty * 100
	}
	dec := Decision{
		Instrument:    symbol,
		LPQty:         lpQty,
		HedgedQty:     hedge.Quantity,
		Difference:    diff,
		PctDifference: pct,
		Action:        ActionNone,
		AutoMode:      auto,
	}
	if !auto {
		e.decideManual(&dec)
		return dec
	}
	e.decideAuto(&dec, hedge.MarkPrice)
	return dec
}

// decideManual suggests a correction for an operator to act on. The fixed
// relative band keeps the suggestion list quiet near parity; nothing here is
// ever auto-submitted.
func (e *Engine) decideManual(dec *Decision) {
	if dec.PctDifference < e.policy.ManualBandPct && dec.LPQty > 0 {
		return
	}
	if dec.Difference > 0 {
		dec.Action = ActionSell
		dec.Value = dec.Difference
	} else if dec.Difference < 0 {
		dec.Action = ActionBuy
		dec.Value = math.Abs(dec.Difference)
	}
}

func (e *Engine) decideAuto(dec *Decision, markPrice float64) {
	hedgedAbs := math.Abs(dec.HedgedQty)

	// Zero exposure with a residual short must always be bought back,
	// regardless of how small the notional is.
	if dec.LPQty == 0 && dec.HedgedQty != 0 {
		dec.Action = ActionClose
		dec.Value = hedgedAbs
		dec.TriggerFired = true
		return
	}

	// A source that reports no mark price cannot be USD-gated; the ratio
	// checks below still apply.
	if markPrice > 0 {
		usdDiff := math.Abs(dec.Difference) * markPrice
		if usdDiff < e.policy.MinUSDTrigger {
			return
		}
	}

	if hedgedAbs == 0 && dec.LPQty > 0 {
		dec.Action = ActionSell
		dec.Value = dec.LPQty
		dec.TriggerFired = true
		return
	}

	// Dead-band between the two triggers is intentional hysteresis: a ratio
	// oscillating near zero must not flap orders.
	ratio := dec.LPQty/hedgedAbs - 1
	switch {
	case ratio > e.policy.PositiveTrigger:
		dec.Action = ActionSell
		dec.Value = dec.Difference
		dec.TriggerFired = true
	case ratio < e.policy.NegativeTrigger:
		dec.Action = ActionBuy
		dec.Value = math.Abs(dec.Difference)
		dec.TriggerFired = true
	}
}
