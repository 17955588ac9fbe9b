package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
)

// DefaultAlternatives is how many alternatives a single match reports.
const DefaultAlternatives = 3

// MatchOutcome is the result of matching a single transaction.
type MatchOutcome struct {
	Transaction  *model.Transaction
	Best         *pattern.Evaluation
	Alternatives model.Alternatives
	// Skipped is set when the transaction already carried an assignment and
	// no forced re-match was requested. Nothing was written.
	Skipped     bool
	AuditLogged bool
}

// MatchOne classifies one transaction against the category pool.
func (e *ClassificationEngine) MatchOne(ctx context.Context, txnID int64, force bool) (*MatchOutcome, error) {
	return e.matchOne(ctx, model.PoolCategory, txnID, force)
}

// MatchOneAccount classifies one transaction against the account pool.
func (e *ClassificationEngine) MatchOneAccount(ctx context.Context, txnID int64, force bool) (*MatchOutcome, error) {
	return e.matchOne(ctx, model.PoolAccount, txnID, force)
}

func (e *ClassificationEngine) matchOne(ctx context.Context, pool model.RulePool, txnID int64, force bool) (*MatchOutcome, error) {
	txn, err := e.storage.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", txnID, err)
	}

	a := assignerFor(pool)
	if !force && a.assigned(txn) {
		return &MatchOutcome{Transaction: txn, Skipped: true}, nil
	}

	snapshot, err := e.rules.Snapshot(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", pool, err)
	}

	var out attempt
	if pool == model.PoolCategory {
		out, err = e.matchOneInTx(ctx, a, snapshot.Matcher, txn, force)
	} else {
		err = common.WithRetry(ctx, func() error {
			var err error
			out, err = e.classifyOne(ctx, e.storage, a, snapshot.Matcher, txn, force)
			return err
		}, common.RetryOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %d: %w", common.ErrClassificationFailed, txnID, err)
	}

	outcome := &MatchOutcome{
		Transaction: txn,
		Best:        out.selected,
		AuditLogged: true,
	}
	if out.written {
		outcome.AuditLogged = e.writeAuditLogs(ctx, out.logs)
		e.InvalidateStatistics()
	}

	live := out.result
	live.Best = out.selected
	outcome.Alternatives = pattern.Alternatives(live, DefaultAlternatives)

	slog.Debug("Matched transaction",
		"transaction_id", txnID,
		"pool", pool,
		"matched", out.selected != nil,
		"written", out.written,
		"alternatives", len(outcome.Alternatives))
	return outcome, nil
}

func (e *ClassificationEngine) matchOneInTx(ctx context.Context, a assigner, matcher pattern.Evaluator, txn *model.Transaction, force bool) (attempt, error) {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return attempt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	out, err := e.classifyOne(ctx, tx, a, matcher, txn, force)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("Failed to roll back match", "transaction_id", txn.ID, "error", rbErr)
		}
		return attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return attempt{}, fmt.Errorf("failed to commit match: %w", err)
	}
	return out, nil
}
