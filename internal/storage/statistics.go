package storage

import (
	"context"
	"fmt"
	"math"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/shopspring/decimal"
)

// GetStatistics aggregates the transactions assigned to a target. Amounts
// are summed as decimals in Go since SQLite would sum the TEXT columns as floats.
func (s *queries) GetStatistics(ctx context.Context, target model.RuleTarget) (*model.Statistics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: target", ErrNilParameter)
	}

	var txnQuery, ruleQuery string
	switch target.Pool() {
	case model.PoolCategory:
		txnQuery = "SELECT debit, credit, confidence, is_manual, is_verified FROM transactions WHERE sub_category_id = ?"
		ruleQuery = "SELECT COUNT(*) FROM rules WHERE sub_category_id = ? AND is_deleted = 0"
	case model.PoolAccount:
		txnQuery = "SELECT debit, credit, account_confidence, is_manual_account, is_verified FROM transactions WHERE account_id = ?"
		ruleQuery = "SELECT COUNT(*) FROM rules WHERE account_id = ? AND is_deleted = 0"
	default:
		return nil, fmt.Errorf("%w: unknown pool %q", common.ErrInvalidInput, target.Pool())
	}

	stats := &model.Statistics{
		Target:      target,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}

	// Counted before the row scan; a single connection cannot serve a
	// second query while rows are open.
	if err := s.q.QueryRowContext(ctx, ruleQuery, target.ID()).Scan(&stats.RuleCount); err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", mapError(err))
	}

	rows, err := s.q.QueryContext(ctx, txnQuery, target.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var (
		confidenceSum   int64
		confidenceCount int
	)
	for rows.Next() {
		var (
			debit, credit decimal.Decimal
			confidence    *int64
			manual        bool
			verified      bool
		)
		if err := rows.Scan(&debit, &credit, &confidence, &manual, &verified); err != nil {
			return nil, fmt.Errorf("failed to scan statistics row: %w", err)
		}
		stats.TransactionCount++
		stats.TotalDebit = stats.TotalDebit.Add(debit)
		stats.TotalCredit = stats.TotalCredit.Add(credit)
		if manual {
			stats.ManualCount++
		}
		if verified {
			stats.VerifiedCount++
		}
		if confidence != nil {
			confidenceSum += *confidence
			confidenceCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statistics rows: %w", err)
	}
	if confidenceCount > 0 {
		avg := float64(confidenceSum) / float64(confidenceCount)
		stats.AverageConfidence = math.Round(avg*100) / 100
	}

	return stats, nil
}
