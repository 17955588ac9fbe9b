package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

const suggestionColumns = `id, pool, pattern, target_id, confidence, occurrences, status,
	promoted_rule_id, created_at, updated_at`

func scanSuggestion(row rowScanner) (*model.SuggestedRule, error) {
	var (
		sr       model.SuggestedRule
		pool     string
		targetID int64
		status   string
		promoted sql.NullInt64
	)
	if err := row.Scan(&sr.ID, &pool, &sr.Pattern, &targetID, &sr.Confidence, &sr.Occurrences,
		&status, &promoted, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}
	target, err := model.NewTarget(model.RulePool(pool), targetID)
	if err != nil {
		return nil, err
	}
	sr.Target = target
	sr.Status = model.SuggestionStatus(status)
	sr.PromotedRuleID = int64Ptr(promoted)
	return &sr, nil
}

// RecordSuggestionObservation counts one corrected transaction as evidence for
// a suggested rule. A transaction is counted at most once per suggestion and
// the stored confidence only ever rises. Patterns are stored upper-cased.
func (s *queries) RecordSuggestionObservation(ctx context.Context, pattern string, target model.RuleTarget, confidence int, txnID int64) (*model.SuggestedRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: target", ErrNilParameter)
	}
	if err := validateID(txnID, "txnID"); err != nil {
		return nil, err
	}
	if err := validateConfidence(&confidence); err != nil {
		return nil, err
	}

	pattern = strings.ToUpper(strings.TrimSpace(pattern))
	now := time.Now().UTC()

	existing, err := s.findSuggestion(ctx, pattern, target)
	switch {
	case errors.Is(err, common.ErrNotFound):
		result, insErr := s.q.ExecContext(ctx, `
			INSERT INTO suggested_rules (pool, pattern, target_id, confidence, occurrences, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, 'pending', ?, ?)`,
			string(target.Pool()), pattern, target.ID(), confidence, now, now)
		if insErr != nil {
			return nil, fmt.Errorf("failed to create suggested rule: %w", mapError(insErr))
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return nil, fmt.Errorf("failed to get suggested rule ID: %w", idErr)
		}
		existing = &model.SuggestedRule{
			ID: id, Target: target, Pattern: pattern, Confidence: confidence,
			Status: model.SuggestionPending, CreatedAt: now, UpdatedAt: now,
		}
	case err != nil:
		return nil, err
	case existing.Status != model.SuggestionPending:
		return existing, nil
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO suggested_rule_observations (suggestion_id, transaction_id, created_at)
		VALUES (?, ?, ?)`, existing.ID, txnID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record observation: %w", mapError(err))
	}
	added, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	existing.Occurrences += int(added)
	existing.Confidence = max(existing.Confidence, confidence)
	existing.UpdatedAt = now
	if _, err := s.q.ExecContext(ctx, `
		UPDATE suggested_rules SET occurrences = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		existing.Occurrences, existing.Confidence, now, existing.ID); err != nil {
		return nil, fmt.Errorf("failed to update suggested rule: %w", mapError(err))
	}
	return existing, nil
}

func (s *queries) findSuggestion(ctx context.Context, pattern string, target model.RuleTarget) (*model.SuggestedRule, error) {
	sr, err := scanSuggestion(s.q.QueryRowContext(ctx,
		"SELECT "+suggestionColumns+" FROM suggested_rules WHERE pool = ? AND pattern = ? AND target_id = ?",
		string(target.Pool()), pattern, target.ID()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find suggested rule: %w", mapError(err))
	}
	return sr, nil
}

// ListSuggestedRules returns suggestions in a status, best supported first.
func (s *queries) ListSuggestedRules(ctx context.Context, status model.SuggestionStatus) ([]model.SuggestedRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT "+suggestionColumns+" FROM suggested_rules WHERE status = ? ORDER BY occurrences DESC, confidence DESC, id",
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query suggested rules: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.SuggestedRule
	for rows.Next() {
		sr, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggested rule: %w", err)
		}
		out = append(out, *sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggested rules: %w", err)
	}
	return out, nil
}

// MarkSuggestionPromoted links a pending suggestion to the rule created from it.
func (s *queries) MarkSuggestionPromoted(ctx context.Context, id, ruleID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}
	if err := validateID(ruleID, "ruleID"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE suggested_rules SET status = 'promoted', promoted_rule_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`, ruleID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to promote suggested rule: %w", mapError(err))
	}
	return expectRow(result, "pending suggested rule", id)
}

// MarkSuggestionDismissed stops a pending suggestion from accruing evidence.
func (s *queries) MarkSuggestionDismissed(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE suggested_rules SET status = 'dismissed', updated_at = ?
		WHERE id = ? AND status = 'pending'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to dismiss suggested rule: %w", mapError(err))
	}
	return expectRow(result, "pending suggested rule", id)
}
