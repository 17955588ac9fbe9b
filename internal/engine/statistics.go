package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

func statsKey(target model.RuleTarget) string {
	return fmt.Sprintf("%s:%d", target.Pool(), target.ID())
}

// Statistics returns aggregate figures for a sub-category or an account.
// Results are cached until the TTL expires or a classification writes.
func (e *ClassificationEngine) Statistics(ctx context.Context, target model.RuleTarget) (*model.Statistics, error) {
	if target == nil || target.ID() <= 0 {
		return nil, fmt.Errorf("%w: statistics target is required", common.ErrInvalidInput)
	}

	key := statsKey(target)
	if cached, ok := e.stats.Get(key); ok {
		copied := *cached
		return &copied, nil
	}

	e.statsMu.Lock()
	generation := e.statsGen
	e.statsMu.Unlock()

	stats, err := e.storage.GetStatistics(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics for %s: %w", key, err)
	}

	// A write that invalidated during the query makes this result stale;
	// it is returned but not cached.
	e.statsMu.Lock()
	if e.statsGen == generation {
		e.stats.SetWithTTL(key, stats, 1, e.statsTTL)
		e.stats.Wait()
	}
	e.statsMu.Unlock()

	copied := *stats
	return &copied, nil
}

// InvalidateStatistics drops every cached statistics entry.
func (e *ClassificationEngine) InvalidateStatistics() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.statsGen++
	e.stats.Clear()
}
