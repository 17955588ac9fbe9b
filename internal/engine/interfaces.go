package engine

import (
	"context"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/rules"
)

// RuleSource supplies cached rule snapshots per pool.
type RuleSource interface {
	Snapshot(ctx context.Context, pool model.RulePool) (*rules.Snapshot, error)
}

// StatisticsInvalidator drops cached statistics after classification results change.
type StatisticsInvalidator interface {
	InvalidateStatistics()
}
