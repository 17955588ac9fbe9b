package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
)

// maxLogsPerInsert keeps a multi-row insert below SQLite's bound-variable limit.
const maxLogsPerInsert = 500

const matchingLogInsertColumns = 11

// InsertMatchingLogs appends audit records. Records for one attempt are
// written as a single multi-row insert.
func (s *queries) InsertMatchingLogs(ctx context.Context, logs []model.MatchingLog) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for start := 0; start < len(logs); start += maxLogsPerInsert {
		end := min(start+maxLogsPerInsert, len(logs))
		chunk := logs[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO matching_logs (
			attempt_id, transaction_id, rule_id, pool, matched_text, score,
			is_matched, is_selected, priority_snapshot, reason, created_at
		) VALUES `)
		args := make([]any, 0, len(chunk)*matchingLogInsertColumns)
		for i := range chunk {
			l := &chunk[i]
			if err := validatePool(l.Pool); err != nil {
				return err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				l.AttemptID, l.TransactionID, l.RuleID, string(l.Pool), l.MatchedText, l.Score,
				l.Matched, l.Selected, l.PrioritySnapshot, l.Reason, now)
		}

		if _, err := s.q.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("failed to insert matching logs: %w", mapError(err))
		}
	}
	return nil
}

// GetLatestAttemptLogs returns every record of the most recent matching
// attempt for a transaction in a pool.
func (s *queries) GetLatestAttemptLogs(ctx context.Context, txnID int64, pool model.RulePool) ([]model.MatchingLog, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(txnID, "txnID"); err != nil {
		return nil, err
	}
	if err := validatePool(pool); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, attempt_id, transaction_id, rule_id, pool, matched_text, score,
			is_matched, is_selected, priority_snapshot, reason, created_at
		FROM matching_logs
		WHERE transaction_id = ? AND pool = ? AND attempt_id = (
			SELECT attempt_id FROM matching_logs
			WHERE transaction_id = ? AND pool = ?
			ORDER BY id DESC LIMIT 1
		)
		ORDER BY id`,
		txnID, string(pool), txnID, string(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to query matching logs: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var logs []model.MatchingLog
	for rows.Next() {
		var (
			l        model.MatchingLog
			poolName string
		)
		if err := rows.Scan(&l.ID, &l.AttemptID, &l.TransactionID, &l.RuleID, &poolName, &l.MatchedText,
			&l.Score, &l.Matched, &l.Selected, &l.PrioritySnapshot, &l.Reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan matching log: %w", err)
		}
		l.Pool = model.RulePool(poolName)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matching logs: %w", err)
	}
	return logs, nil
}
