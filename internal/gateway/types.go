package gateway

// Side is the direction of an order from the venue's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRequest is the sliced-order configuration submitted to the execution
// gateway. Immutable once submitted; the gateway echoes the configuration it
// accepted, and the tracker derives its timeout budget from that echo.
type OrderRequest struct {
	ID                   string  `json:"id"`
	Instrument           string  `json:"instrument"`
	Side                 Side    `json:"side"`
	TargetSize           float64 `json:"targetSize"`
	MaxOrderSize         float64 `json:"maxOrderSize"`
	ChildOrderDelayMS    int64   `json:"childOrderDelay"`
	MaxAliveOrderTimeMS  int64   `json:"maxAliveOrderTime"`
	MaxRetryAsLimitOrder int     `json:"maxRetryAsLimitOrder"`
	MarginMode           string  `json:"marginMode,omitempty"`
	ReduceOnly           bool    `json:"reduceOnly,omitempty"`
}
