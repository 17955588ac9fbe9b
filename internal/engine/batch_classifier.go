package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// attempt is the result of classifying one transaction.
type attempt struct {
	selected *pattern.Evaluation
	result   pattern.MatchResult
	logs     []model.MatchingLog
	// written reports whether the transaction row changed.
	written bool
}

// classifyOne evaluates txn against matcher and writes the winning target
// through repo. Matched rules are tried best first; a rule whose target has
// vanished is treated as not matching and the next candidate is tried.
func (e *ClassificationEngine) classifyOne(ctx context.Context, repo service.Repositories, a assigner, matcher pattern.Evaluator, txn *model.Transaction, force bool) (attempt, error) {
	result := matcher.Evaluate(txn.Description)
	out := attempt{result: result}

	for _, candidate := range rankCandidates(result) {
		err := a.apply(ctx, repo, txn, candidate)
		if errors.Is(err, errTargetGone) {
			slog.Debug("Skipping rule with missing target",
				"rule_id", candidate.Rule.ID,
				"transaction_id", txn.ID,
				"pool", a.pool())
			continue
		}
		if err != nil {
			return out, err
		}
		out.selected = candidate
		out.written = true
		break
	}

	if out.selected == nil && force {
		cleared, err := a.clear(ctx, repo, txn)
		if err != nil {
			return out, err
		}
		out.written = cleared
	}

	if out.written {
		var selectedID int64
		if out.selected != nil {
			selectedID = out.selected.Rule.ID
		}
		out.logs = attemptLogs(e.newAttemptID(), txn.ID, a.pool(), result, selectedID)
	}
	return out, nil
}

// rankCandidates returns the matched evaluations best first. The stable sort
// keeps rule order among equal scores, so the first candidate is always the
// matcher's own winner.
func rankCandidates(result pattern.MatchResult) []*pattern.Evaluation {
	if !result.Matched() {
		return nil
	}
	candidates := make([]*pattern.Evaluation, 0, len(result.Evaluations))
	for i := range result.Evaluations {
		if result.Evaluations[i].Matched {
			candidates = append(candidates, &result.Evaluations[i])
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// ClassifyBatch classifies every eligible transaction of a statement against
// the category pool. The whole batch is one database transaction: any failure,
// including cancellation, rolls back every assignment made so far.
func (e *ClassificationEngine) ClassifyBatch(ctx context.Context, statementID int64, opts Options) (*Summary, error) {
	start := time.Now()
	if _, err := e.storage.GetStatement(ctx, statementID); err != nil {
		return nil, fmt.Errorf("failed to load statement %d: %w", statementID, err)
	}

	// The snapshot must be taken before the transaction opens: a refresh
	// reads through the same single connection.
	snapshot, err := e.rules.Snapshot(ctx, model.PoolCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to load category rules: %w", err)
	}

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("Failed to roll back classification batch",
					"statement_id", statementID,
					"error", rbErr)
			}
		}
	}()

	txns, err := tx.GetTransactionsForMatching(ctx, model.PoolCategory, statementID, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	summary := &Summary{Pool: model.PoolCategory, StatementID: statementID, Total: len(txns)}
	a := assignerFor(model.PoolCategory)
	pending := make([][]model.MatchingLog, 0, len(txns))

	for i := range txns {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("classification of statement %d canceled: %w", statementID, err)
		}

		out, err := e.classifyOne(ctx, tx, a, snapshot.Matcher, &txns[i], opts.Force)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %w", common.ErrClassificationFailed, txns[i].ID, err)
		}
		if out.selected != nil {
			summary.record(out.selected.Score, e.highConfidence)
		} else {
			summary.Unmatched++
		}
		if len(out.logs) > 0 {
			pending = append(pending, out.logs)
		}
		opts.progress(i+1, len(txns))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit classification batch: %w", err)
	}
	committed = true

	for _, logs := range pending {
		if !e.writeAuditLogs(ctx, logs) {
			summary.AuditFailures++
		}
	}
	if len(pending) > 0 {
		e.InvalidateStatistics()
	}

	summary.Duration = time.Since(start)
	logSummary(summary)
	return summary, nil
}

// ClassifyAccounts classifies every eligible transaction of a statement
// against the account pool. Each transaction is written on its own; a failure
// is counted and the batch continues. On cancellation the partial summary is
// returned together with the context error, and committed work is kept.
func (e *ClassificationEngine) ClassifyAccounts(ctx context.Context, statementID int64, opts Options) (*Summary, error) {
	start := time.Now()
	if _, err := e.storage.GetStatement(ctx, statementID); err != nil {
		return nil, fmt.Errorf("failed to load statement %d: %w", statementID, err)
	}

	snapshot, err := e.rules.Snapshot(ctx, model.PoolAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to load account rules: %w", err)
	}

	txns, err := e.storage.GetTransactionsForMatching(ctx, model.PoolAccount, statementID, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	summary := &Summary{Pool: model.PoolAccount, StatementID: statementID, Total: len(txns)}
	a := assignerFor(model.PoolAccount)
	written := false
	var runErr error

	for i := range txns {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("account classification of statement %d canceled: %w", statementID, err)
			break
		}

		txn := &txns[i]
		var out attempt
		err := common.WithRetry(ctx, func() error {
			var err error
			out, err = e.classifyOne(ctx, e.storage, a, snapshot.Matcher, txn, opts.Force)
			return err
		}, common.RetryOptions{})
		if err != nil {
			summary.Errors++
			slog.Warn("Account classification failed for transaction",
				"transaction_id", txn.ID,
				"statement_id", statementID,
				"error", err)
			opts.progress(i+1, len(txns))
			continue
		}

		if out.selected != nil {
			summary.record(out.selected.Score, e.highConfidence)
		} else {
			summary.Unmatched++
		}
		if out.written {
			written = true
			if !e.writeAuditLogs(ctx, out.logs) {
				summary.AuditFailures++
			}
		}
		opts.progress(i+1, len(txns))
	}

	if written {
		e.InvalidateStatistics()
	}

	summary.Duration = time.Since(start)
	logSummary(summary)
	return summary, runErr
}

func logSummary(s *Summary) {
	slog.Info("Classification complete",
		"pool", s.Pool,
		"statement_id", s.StatementID,
		"total", s.Total,
		"matched", s.Matched,
		"unmatched", s.Unmatched,
		"high_confidence", s.HighConfidence,
		"low_confidence", s.LowConfidence,
		"errors", s.Errors,
		"audit_failures", s.AuditFailures,
		"duration", s.Duration)
}
