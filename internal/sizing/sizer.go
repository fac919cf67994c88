package sizing

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"lp-hedge-bot/internal/gateway"
	"lp-hedge-bot/internal/instrument"
	"lp-hedge-bot/internal/rebalance"
)

// Slice cap randomization band around the notional threshold. Randomizing
// the cap and the child timing keeps counterparties from inferring total
// order size from fill cadence.
const (
	sliceCapMinFactor = 0.8
	sliceCapMaxFactor = 1.6
)

type Config struct {
	NotionalThresholdUSD float64
	ChildDelayMinMS      int64
	ChildDelayMaxMS      int64
	AliveTimeMinMS       int64
	AliveTimeMaxMS       int64
	MaxRetryAsLimitOrder int
}

// Sizer converts an actionable decision into a concrete order request. It is
// a pure transform apart from the injected randomness source, which is
// seedable so tests are deterministic.
type Sizer struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config, rng *rand.Rand) *Sizer {
	return &Sizer{cfg: cfg, rng: rng}
}

func (s *Sizer) Build(dec rebalance.Decision, price float64, inst instrument.Instrument) (gateway.OrderRequest, error) {
	if dec.Action == rebalance.ActionNone {
		return gateway.OrderRequest{}, errors.New("decision is not actionable")
	}
	if dec.Value <= 0 {
		return gateway.OrderRequest{}, fmt.Errorf("decision value must be > 0, got %f", dec.Value)
	}
	if price <= 0 {
		return gateway.OrderRequest{}, fmt.Errorf("price must be > 0, got %f", price)
	}

	targetContracts := dec.Value * inst.UnitScale
	notional := targetContracts * price

	var maxOrderSize float64
	if notional > s.cfg.NotionalThresholdUSD {
		maxAmount := s.uniform(sliceCapMinFactor, sliceCapMaxFactor) * s.cfg.NotionalThresholdUSD
		maxOrderSize = maxAmount / price
		if maxOrderSize > targetContracts {
			maxOrderSize = targetContracts
		}
	} else {
		maxOrderSize = s.cfg.NotionalThresholdUSD / price
	}

	req := gateway.OrderRequest{
		ID:                   uuid.New().String(),
		Instrument:           inst.Symbol,
		Side:                 sideFor(dec.Action),
		TargetSize:           targetContracts,
		MaxOrderSize:         maxOrderSize,
		ChildOrderDelayMS:    s.uniformInt(s.cfg.ChildDelayMinMS, s.cfg.ChildDelayMaxMS),
		MaxAliveOrderTimeMS:  s.uniformInt(s.cfg.AliveTimeMinMS, s.cfg.AliveTimeMaxMS),
		MaxRetryAsLimitOrder: s.cfg.MaxRetryAsLimitOrder,
		MarginMode:           "cross",
		ReduceOnly:           dec.Action == rebalance.ActionClose,
	}
	return req, nil
}

func sideFor(action rebalance.Action) gateway.Side {
	// Closing buys back the short; only sell increases it.
	if action == rebalance.ActionSell {
		return gateway.SideSell
	}
	return gateway.SideBuy
}

func (s *Sizer) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func (s *Sizer) uniformInt(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + s.rng.Int63n(max-min+1)
}
