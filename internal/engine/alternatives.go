package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
)

// Alternatives returns up to n rules that matched a transaction in its most
// recent matching attempt but were not selected, best first and one per
// target. When no attempt was ever logged, the current rule set is evaluated
// instead without writing anything.
func (e *ClassificationEngine) Alternatives(ctx context.Context, txnID int64, pool model.RulePool, n int) (model.Alternatives, error) {
	if !pool.Valid() {
		return nil, fmt.Errorf("%w: unknown pool %q", common.ErrInvalidInput, pool)
	}
	if n <= 0 {
		n = DefaultAlternatives
	}

	logs, err := e.storage.GetLatestAttemptLogs(ctx, txnID, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load matching logs: %w", err)
	}
	if len(logs) == 0 {
		return e.liveAlternatives(ctx, txnID, pool, n)
	}

	var selected model.RuleTarget
	candidates := make([]model.MatchingLog, 0, len(logs))
	for _, entry := range logs {
		if entry.Selected {
			rule, err := e.storage.GetRule(ctx, entry.RuleID)
			if err == nil {
				selected = rule.Target
			} else if !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
			continue
		}
		if entry.Matched {
			candidates = append(candidates, entry)
		}
	}

	alts := make(model.Alternatives, 0, len(candidates))
	for _, entry := range candidates {
		rule, err := e.storage.GetRule(ctx, entry.RuleID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		alts = append(alts, model.Alternative{
			Target:      rule.Target,
			RuleID:      entry.RuleID,
			Score:       entry.Score,
			Priority:    entry.PrioritySnapshot,
			MatchedText: entry.MatchedText,
			Reason:      entry.Reason,
		})
	}
	alts.Sort()

	seen := make(map[model.RuleTarget]bool)
	if selected != nil {
		seen[selected] = true
	}
	deduped := make(model.Alternatives, 0, len(alts))
	for _, alt := range alts {
		if seen[alt.Target] {
			continue
		}
		seen[alt.Target] = true
		deduped = append(deduped, alt)
	}
	return deduped.TopN(n), nil
}

func (e *ClassificationEngine) liveAlternatives(ctx context.Context, txnID int64, pool model.RulePool, n int) (model.Alternatives, error) {
	txn, err := e.storage.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", txnID, err)
	}
	snapshot, err := e.rules.Snapshot(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", pool, err)
	}
	return pattern.Alternatives(snapshot.Matcher.Evaluate(txn.Description), n), nil
}
