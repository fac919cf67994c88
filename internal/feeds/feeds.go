package feeds

import (
	"context"
	"errors"

	"lp-hedge-bot/internal/rebalance"
)

// ErrDataUnavailable marks a snapshot source that could not be read this
// cycle. Callers skip the affected instruments and continue the batch.
var ErrDataUnavailable = errors.New("snapshot source unavailable")

// ExposureSource reads the aggregated LP quantity per hedgeable symbol.
type ExposureSource interface {
	ReadExposures(ctx context.Context) (map[string]rebalance.ExposureReading, error)
}

// HedgeSource reads the current broker position snapshot per symbol.
type HedgeSource interface {
	ReadHedges(ctx context.Context) (map[string]rebalance.HedgePosition, error)
}
