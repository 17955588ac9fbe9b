package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is one uploaded bank statement; transactions belong to exactly one.
type Statement struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	CreatedAt     time.Time
	Bank          string
	AccountNumber string
	SourceFile    string
	ID            int64
}

// CategoryAssignment holds the category classification fields of a transaction.
// Type and category are always derived from the sub-category.
type CategoryAssignment struct {
	MatchedRuleID *int64
	TypeID        *int64
	CategoryID    *int64
	SubCategoryID *int64
	Confidence    *int
	IsManual      bool
}

// Assigned reports whether any category has been set.
func (a CategoryAssignment) Assigned() bool {
	return a.SubCategoryID != nil
}

// AccountAssignment holds the account classification fields of a transaction.
type AccountAssignment struct {
	MatchedRuleID *int64
	AccountID     *int64
	Confidence    *int
	IsManual      bool
}

// Assigned reports whether an account has been set.
func (a AccountAssignment) Assigned() bool {
	return a.AccountID != nil
}

// Transaction is one extracted statement line plus its mutable classification.
type Transaction struct {
	Date        time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	VerifiedAt  *time.Time
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.NullDecimal
	Description string
	VerifiedBy  string
	Category    CategoryAssignment
	Account     AccountAssignment
	ID          int64
	StatementID int64
	IsVerified  bool
}

// Amount returns the absolute value moved by the transaction.
func (t *Transaction) Amount() decimal.Decimal {
	if !t.Debit.IsZero() {
		return t.Debit.Abs()
	}
	return t.Credit.Abs()
}

// IsDebit reports whether money left the account.
func (t *Transaction) IsDebit() bool {
	return !t.Debit.IsZero()
}
