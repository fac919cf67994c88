package rebalance

type Action string

const (
	ActionNone  Action = "none"
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
)

// ExposureReading is the aggregated long LP quantity for one instrument,
// summed across chains. Always non-negative when the source is healthy.
type ExposureReading struct {
	Instrument string
	Quantity   float64
}

// HedgePosition is the broker-held derivative position. A short hedge has a
// negative Quantity; a positive quantity violates the sign convention and is
// rejected by the engine rather than silently accepted.
type HedgePosition struct {
	Instrument  string
	Quantity    float64
	NotionalUSD float64
	MarkPrice   float64
	FundingRate float64
}

type Policy struct {
	PositiveTrigger float64
	NegativeTrigger float64
	MinUSDTrigger   float64
	ManualBandPct   float64
}

// Decision is the per-instrument output of one evaluation cycle. It is
// created once and never mutated; actionable auto-mode decisions feed the
// sizer, manual ones are advisory only.
type Decision struct {
	Instrument    string
	LPQty         float64
	HedgedQty     float64
	Difference    float64
	PctDifference float64
	Action        Action
	Value         float64
	AutoMode      bool
	TriggerFired  bool
}
