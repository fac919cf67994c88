package state

import (
	"context"
	"time"
)

// Store is the small kv surface used to resume process state across runs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// DecisionRow is one appended entry of the decision ledger.
type DecisionRow struct {
	Time         time.Time
	Instrument   string
	Action       string
	Value        float64
	PctDiff      float64
	AutoMode     bool
	TriggerFired bool
}

// OrderRow is one upserted entry of the order ledger. Payload carries the
// msgpack-encoded OrderRequest exactly as submitted, for audit and replay.
type OrderRow struct {
	OrderID    string
	Instrument string
	Action     string
	Quantity   float64
	Status     string
	FillPct    float64
	Payload    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
