// Package storage provides the data persistence layer for the spice application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidID          = errors.New("id must be positive")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidStatement   = errors.New("invalid statement")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidID, paramName)
	}
	return nil
}

func validatePool(pool model.RulePool) error {
	if !pool.Valid() {
		return fmt.Errorf("%w: unknown pool %q", common.ErrInvalidInput, pool)
	}
	return nil
}

func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRule, err)
	}
	return nil
}

func validateStatement(stmt *model.Statement) error {
	if stmt == nil {
		return fmt.Errorf("%w: statement", ErrNilParameter)
	}
	if strings.TrimSpace(stmt.Bank) == "" {
		return fmt.Errorf("%w: missing bank", ErrInvalidStatement)
	}
	if !stmt.PeriodStart.IsZero() && !stmt.PeriodEnd.IsZero() && stmt.PeriodEnd.Before(stmt.PeriodStart) {
		return fmt.Errorf("%w: period end %v is before period start %v", ErrInvalidStatement, stmt.PeriodEnd, stmt.PeriodStart)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.Debit.IsNegative() || txn.Credit.IsNegative() {
		return fmt.Errorf("%w: debit and credit must not be negative", ErrInvalidTransaction)
	}
	return nil
}

func validateConfidence(c *int) error {
	if c != nil && (*c < 0 || *c > 100) {
		return fmt.Errorf("%w: confidence must be between 0 and 100, got %d", common.ErrInvalidInput, *c)
	}
	return nil
}
