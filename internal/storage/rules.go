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

const ruleColumns = `r.id, r.pool, r.pattern, r.match_kind, r.case_sensitive, r.priority,
	r.sub_category_id, r.account_id, r.match_count, r.last_matched_at,
	r.is_active, r.is_deleted, r.is_auto_created, r.created_at, r.updated_at`

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule          model.Rule
		pool          string
		kind          string
		subCategoryID sql.NullInt64
		accountID     sql.NullInt64
		lastMatched   sql.NullTime
	)
	if err := row.Scan(
		&rule.ID, &pool, &rule.Pattern, &kind, &rule.CaseSensitive, &rule.Priority,
		&subCategoryID, &accountID, &rule.MatchCount, &lastMatched,
		&rule.IsActive, &rule.IsDeleted, &rule.IsAutoCreated, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Kind = model.MatchKind(kind)
	switch model.RulePool(pool) {
	case model.PoolCategory:
		rule.Target = model.CategoryTarget{SubCategoryID: subCategoryID.Int64}
	case model.PoolAccount:
		rule.Target = model.AccountTarget{AccountID: accountID.Int64}
	default:
		return nil, fmt.Errorf("rule %d has unknown pool %q", rule.ID, pool)
	}
	if lastMatched.Valid {
		t := lastMatched.Time
		rule.LastMatchedAt = &t
	}
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]model.Rule, error) {
	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// targetColumns splits a target into the sub_category_id and account_id columns.
func targetColumns(target model.RuleTarget) (sql.NullInt64, sql.NullInt64) {
	switch t := target.(type) {
	case model.CategoryTarget:
		return sql.NullInt64{Int64: t.SubCategoryID, Valid: true}, sql.NullInt64{}
	case model.AccountTarget:
		return sql.NullInt64{}, sql.NullInt64{Int64: t.AccountID, Valid: true}
	}
	return sql.NullInt64{}, sql.NullInt64{}
}

// checkTarget verifies the rule target exists and is usable.
func (s *queries) checkTarget(ctx context.Context, target model.RuleTarget) error {
	var (
		query string
		count int
	)
	switch target.Pool() {
	case model.PoolCategory:
		query = "SELECT COUNT(*) FROM sub_categories WHERE id = ? AND is_deleted = 0"
	case model.PoolAccount:
		query = "SELECT COUNT(*) FROM accounts WHERE id = ? AND is_active = 1"
	default:
		return fmt.Errorf("%w: unknown pool", common.ErrInvalidRule)
	}
	if err := s.q.QueryRowContext(ctx, query, target.ID()).Scan(&count); err != nil {
		return fmt.Errorf("failed to verify rule target: %w", mapError(err))
	}
	if count == 0 {
		return fmt.Errorf("%w: %s target %d does not exist", common.ErrNotFound, target.Pool(), target.ID())
	}
	return nil
}

// CreateRule creates a new rule.
func (s *queries) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.checkTarget(ctx, rule.Target); err != nil {
		return err
	}

	subCategoryID, accountID := targetColumns(rule.Target)
	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO rules (
			pool, pattern, match_kind, case_sensitive, priority,
			sub_category_id, account_id, is_active, is_auto_created,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rule.Pool()), rule.Pattern, string(rule.Kind), rule.CaseSensitive, rule.Priority,
		subCategoryID, accountID, rule.IsActive, rule.IsAutoCreated,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}

	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by ID, including retired rules.
func (s *queries) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.q.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM rules r WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", mapError(err))
	}
	return rule, nil
}

// UpdateRule rewrites the editable fields of a rule.
func (s *queries) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := validateID(rule.ID, "id"); err != nil {
		return err
	}
	if err := s.checkTarget(ctx, rule.Target); err != nil {
		return err
	}

	subCategoryID, accountID := targetColumns(rule.Target)
	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE rules
		SET pool = ?, pattern = ?, match_kind = ?, case_sensitive = ?, priority = ?,
			sub_category_id = ?, account_id = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`,
		string(rule.Pool()), rule.Pattern, string(rule.Kind), rule.CaseSensitive, rule.Priority,
		subCategoryID, accountID, rule.IsActive, now, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", mapError(err))
	}
	if err := expectRow(result, "rule", rule.ID); err != nil {
		return err
	}
	rule.UpdatedAt = now
	return nil
}

// ListRules returns the rules of a pool ordered by priority, skipping retired
// rules. Inactive rules are included only when requested.
func (s *queries) ListRules(ctx context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePool(pool); err != nil {
		return nil, err
	}

	query := "SELECT " + ruleColumns + " FROM rules r WHERE r.pool = ? AND r.is_deleted = 0"
	if !includeInactive {
		query += " AND r.is_active = 1"
	}
	query += " ORDER BY r.priority DESC, r.id ASC"

	rows, err := s.q.QueryContext(ctx, query, string(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanRules(rows)
}

// GetActiveRules returns the rules the matcher should evaluate for a pool.
// A rule whose target was deleted or deactivated never matches.
func (s *queries) GetActiveRules(ctx context.Context, pool model.RulePool) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePool(pool); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules r
		LEFT JOIN sub_categories sc ON r.sub_category_id = sc.id
		LEFT JOIN accounts a ON r.account_id = a.id
		WHERE r.pool = ? AND r.is_active = 1 AND r.is_deleted = 0
			AND (
				(r.pool = 'category' AND sc.id IS NOT NULL AND sc.is_deleted = 0) OR
				(r.pool = 'account' AND a.id IS NOT NULL AND a.is_active = 1)
			)
		ORDER BY r.priority DESC, r.id ASC`, string(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanRules(rows)
}

// FindRuleByPattern finds a live rule with the same pattern, ignoring case,
// pointing at the same target.
func (s *queries) FindRuleByPattern(ctx context.Context, pattern string, target model.RuleTarget) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: target", ErrNilParameter)
	}

	column := "sub_category_id"
	if target.Pool() == model.PoolAccount {
		column = "account_id"
	}
	rule, err := scanRule(s.q.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules r
		WHERE r.pool = ? AND r.`+column+` = ? AND UPPER(r.pattern) = ? AND r.is_deleted = 0
		ORDER BY r.priority DESC, r.id ASC
		LIMIT 1`,
		string(target.Pool()), target.ID(), strings.ToUpper(strings.TrimSpace(pattern))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule for pattern %q: %w", pattern, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule: %w", mapError(err))
	}
	return rule, nil
}

// SetRuleActive toggles whether a rule participates in matching.
func (s *queries) SetRuleActive(ctx context.Context, id int64, active bool) error {
	return s.updateRuleField(ctx, id, "is_active = ?", active)
}

// SetRulePriority sets a rule's priority.
func (s *queries) SetRulePriority(ctx context.Context, id int64, priority int) error {
	if priority < model.MinPriority || priority > model.MaxPriority {
		return fmt.Errorf("%w: %d is outside %d..%d", common.ErrInvalidPriority, priority, model.MinPriority, model.MaxPriority)
	}
	return s.updateRuleField(ctx, id, "priority = ?", priority)
}

// RetireRule soft-deletes a rule. Retired rules keep their history.
func (s *queries) RetireRule(ctx context.Context, id int64) error {
	return s.updateRuleField(ctx, id, "is_deleted = 1, is_active = ?", false)
}

func (s *queries) updateRuleField(ctx context.Context, id int64, set string, value any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		"UPDATE rules SET "+set+", updated_at = ? WHERE id = ? AND is_deleted = 0",
		value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", mapError(err))
	}
	return expectRow(result, "rule", id)
}

// ApplyRuleFeedback persists a feedback-driven priority change, optionally
// counting the outcome as a match.
func (s *queries) ApplyRuleFeedback(ctx context.Context, id int64, priority int, countMatch bool, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}
	if priority < model.MinPriority || priority > model.MaxPriority {
		return fmt.Errorf("%w: %d is outside %d..%d", common.ErrInvalidPriority, priority, model.MinPriority, model.MaxPriority)
	}

	var (
		result sql.Result
		err    error
	)
	if countMatch {
		result, err = s.q.ExecContext(ctx, `
			UPDATE rules
			SET priority = ?, match_count = match_count + 1, last_matched_at = ?, updated_at = ?
			WHERE id = ? AND is_deleted = 0`,
			priority, at.UTC(), at.UTC(), id)
	} else {
		result, err = s.q.ExecContext(ctx,
			"UPDATE rules SET priority = ?, updated_at = ? WHERE id = ? AND is_deleted = 0",
			priority, at.UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to apply rule feedback: %w", mapError(err))
	}
	return expectRow(result, "rule", id)
}

// IncrementRuleMatchCount records a successful match for a rule.
func (s *queries) IncrementRuleMatchCount(ctx context.Context, id int64, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE rules
		SET match_count = match_count + 1, last_matched_at = ?
		WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to increment rule match count: %w", mapError(err))
	}
	return expectRow(result, "rule", id)
}

func expectRow(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, common.ErrNotFound)
	}
	return nil
}
