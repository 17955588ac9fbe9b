package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateStatement records an imported bank statement.
func (s *queries) CreateStatement(ctx context.Context, stmt *model.Statement) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStatement(stmt); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO statements (bank, account_number, source_file, period_start, period_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(stmt.Bank), stmt.AccountNumber, stmt.SourceFile,
		nullTime(stmt.PeriodStart), nullTime(stmt.PeriodEnd), now)
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get statement ID: %w", err)
	}
	stmt.ID = id
	stmt.CreatedAt = now
	return nil
}

const statementColumns = "id, bank, account_number, source_file, period_start, period_end, created_at"

func scanStatement(row rowScanner) (*model.Statement, error) {
	var (
		stmt        model.Statement
		periodStart sql.NullTime
		periodEnd   sql.NullTime
	)
	if err := row.Scan(&stmt.ID, &stmt.Bank, &stmt.AccountNumber, &stmt.SourceFile,
		&periodStart, &periodEnd, &stmt.CreatedAt); err != nil {
		return nil, err
	}
	stmt.PeriodStart = periodStart.Time
	stmt.PeriodEnd = periodEnd.Time
	return &stmt, nil
}

// GetStatement retrieves a statement by ID.
func (s *queries) GetStatement(ctx context.Context, id int64) (*model.Statement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	stmt, err := scanStatement(s.q.QueryRowContext(ctx,
		"SELECT "+statementColumns+" FROM statements WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("statement %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", mapError(err))
	}
	return stmt, nil
}

// ListStatements returns every statement, newest first.
func (s *queries) ListStatements(ctx context.Context) ([]model.Statement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, "SELECT "+statementColumns+" FROM statements ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var statements []model.Statement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		statements = append(statements, *stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statements: %w", err)
	}
	return statements, nil
}

// SaveTransactions inserts the transactions of a statement and fills in their IDs.
func (s *queries) SaveTransactions(ctx context.Context, statementID int64, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(statementID, "statementID"); err != nil {
		return err
	}
	if err := validateTransactions(txns); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range txns {
		txn := &txns[i]
		result, err := s.q.ExecContext(ctx, `
			INSERT INTO transactions (statement_id, date, description, debit, credit, balance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			statementID, txn.Date.UTC(), strings.TrimSpace(txn.Description),
			txn.Debit.String(), txn.Credit.String(), txn.Balance,
			now, now)
		if err != nil {
			return fmt.Errorf("failed to save transaction %d: %w", i, mapError(err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transaction ID: %w", err)
		}
		txn.ID = id
		txn.StatementID = statementID
		txn.CreatedAt = now
		txn.UpdatedAt = now
	}

	slog.Debug("saved transactions", "statement_id", statementID, "count", len(txns))
	return nil
}

const transactionColumns = `id, statement_id, date, description, debit, credit, balance,
	matched_rule_id, type_id, category_id, sub_category_id, confidence, is_manual,
	matched_account_rule_id, account_id, account_confidence, is_manual_account,
	is_verified, verified_by, verified_at, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn               model.Transaction
		matchedRuleID     sql.NullInt64
		typeID            sql.NullInt64
		categoryID        sql.NullInt64
		subCategoryID     sql.NullInt64
		confidence        sql.NullInt64
		accountRuleID     sql.NullInt64
		accountID         sql.NullInt64
		accountConfidence sql.NullInt64
		verifiedAt        sql.NullTime
	)
	if err := row.Scan(
		&txn.ID, &txn.StatementID, &txn.Date, &txn.Description, &txn.Debit, &txn.Credit, &txn.Balance,
		&matchedRuleID, &typeID, &categoryID, &subCategoryID, &confidence, &txn.Category.IsManual,
		&accountRuleID, &accountID, &accountConfidence, &txn.Account.IsManual,
		&txn.IsVerified, &txn.VerifiedBy, &verifiedAt, &txn.CreatedAt, &txn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	txn.Category.MatchedRuleID = int64Ptr(matchedRuleID)
	txn.Category.TypeID = int64Ptr(typeID)
	txn.Category.CategoryID = int64Ptr(categoryID)
	txn.Category.SubCategoryID = int64Ptr(subCategoryID)
	txn.Category.Confidence = intPtr(confidence)
	txn.Account.MatchedRuleID = int64Ptr(accountRuleID)
	txn.Account.AccountID = int64Ptr(accountID)
	txn.Account.Confidence = intPtr(accountConfidence)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		txn.VerifiedAt = &t
	}
	return &txn, nil
}

func (s *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *queries) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", mapError(err))
	}
	return txn, nil
}

// GetTransactionsForMatching selects the transactions a pool's pipeline
// evaluates. Without force, transactions that already carry a rule match or
// a manual assignment for that pool are skipped.
func (s *queries) GetTransactionsForMatching(ctx context.Context, pool model.RulePool, statementID int64, force bool) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePool(pool); err != nil {
		return nil, err
	}
	if err := validateID(statementID, "statementID"); err != nil {
		return nil, err
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE statement_id = ?"
	if !force {
		switch pool {
		case model.PoolCategory:
			query += " AND matched_rule_id IS NULL AND sub_category_id IS NULL AND is_manual = 0"
		case model.PoolAccount:
			query += " AND matched_account_rule_id IS NULL AND account_id IS NULL AND is_manual_account = 0"
		}
	}
	query += " ORDER BY date, id"

	return s.queryTransactions(ctx, query, statementID)
}

// GetUnmatchedTransactions returns transactions with no category.
func (s *queries) GetUnmatchedTransactions(ctx context.Context, statementID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if statementID < 0 {
		return nil, fmt.Errorf("%w: statementID", ErrInvalidID)
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE sub_category_id IS NULL AND is_manual = 0"
	args := []any{}
	if statementID > 0 {
		query += " AND statement_id = ?"
		args = append(args, statementID)
	}
	query += " ORDER BY date, id"

	return s.queryTransactions(ctx, query, args...)
}

// UpdateCategoryAssignment writes only the category-side fields of a transaction.
func (s *queries) UpdateCategoryAssignment(ctx context.Context, txnID int64, a model.CategoryAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(txnID, "txnID"); err != nil {
		return err
	}
	if err := validateConfidence(a.Confidence); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET matched_rule_id = ?, type_id = ?, category_id = ?, sub_category_id = ?,
			confidence = ?, is_manual = ?, updated_at = ?
		WHERE id = ?`,
		nullInt64(a.MatchedRuleID), nullInt64(a.TypeID), nullInt64(a.CategoryID), nullInt64(a.SubCategoryID),
		nullInt(a.Confidence), a.IsManual, time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to update category assignment: %w", mapError(err))
	}
	return expectRow(result, "transaction", txnID)
}

// UpdateAccountAssignment writes only the account-side fields of a transaction.
func (s *queries) UpdateAccountAssignment(ctx context.Context, txnID int64, a model.AccountAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(txnID, "txnID"); err != nil {
		return err
	}
	if err := validateConfidence(a.Confidence); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET matched_account_rule_id = ?, account_id = ?, account_confidence = ?,
			is_manual_account = ?, updated_at = ?
		WHERE id = ?`,
		nullInt64(a.MatchedRuleID), nullInt64(a.AccountID), nullInt(a.Confidence),
		a.IsManual, time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to update account assignment: %w", mapError(err))
	}
	return expectRow(result, "transaction", txnID)
}

// MarkVerified records that a reviewer checked a transaction's classification.
func (s *queries) MarkVerified(ctx context.Context, txnID int64, reviewer string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(txnID, "txnID"); err != nil {
		return err
	}
	if err := validateString(reviewer, "reviewer"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET is_verified = 1, verified_by = ?, verified_at = ?, updated_at = ?
		WHERE id = ?`,
		reviewer, at.UTC(), time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction verified: %w", mapError(err))
	}
	return expectRow(result, "transaction", txnID)
}
