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

// CreateAccount creates a ledger account. Codes are unique.
func (s *queries) CreateAccount(ctx context.Context, code, name string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	result, err := s.q.ExecContext(ctx,
		"INSERT INTO accounts (code, name, is_active, created_at) VALUES (?, ?, 1, ?)", code, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get account ID: %w", err)
	}
	return &model.Account{ID: id, Code: code, Name: name, IsActive: true, CreatedAt: now}, nil
}

// GetAccount retrieves an account, active or not.
func (s *queries) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	var account model.Account
	err := s.q.QueryRowContext(ctx,
		"SELECT id, code, name, is_active, created_at FROM accounts WHERE id = ?", id).
		Scan(&account.ID, &account.Code, &account.Name, &account.IsActive, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", mapError(err))
	}
	return &account, nil
}

// SetAccountActive activates or deactivates an account. Rules pointing at an
// inactive account stop matching.
func (s *queries) SetAccountActive(ctx context.Context, id int64, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, "UPDATE accounts SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", mapError(err))
	}
	return expectRow(result, "account", id)
}

// ListAccounts returns every account ordered by code.
func (s *queries) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT id, code, name, is_active, created_at FROM accounts ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.ID, &account.Code, &account.Name, &account.IsActive, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
