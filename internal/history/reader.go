// Package history reads normalized trend points from the run history
// store, the queryable log of past evaluation runs.
package history

import (
	"context"

	"github.com/promptgate/promptgate/internal/models"
)

// Reader is the run-history abstraction consumed by the trend aggregator,
// the regression detector, and the promotion gate.
type Reader interface {
	// QueryRuns returns up to limit points for evalType ordered by
	// timestamp, most recent last.
	QueryRuns(ctx context.Context, evalType string, limit int) ([]models.TrendPoint, error)
	// EvalTypes lists every eval type with at least one recorded run.
	EvalTypes(ctx context.Context) ([]string, error)
}
