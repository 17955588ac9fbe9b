package model

import "github.com/shopspring/decimal"

// Statistics summarizes the transactions assigned to one sub-category or account.
type Statistics struct {
	Target            RuleTarget      `json:"-"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	TransactionCount  int             `json:"transaction_count"`
	ManualCount       int             `json:"manual_count"`
	VerifiedCount     int             `json:"verified_count"`
	RuleCount         int             `json:"rule_count"`
	AverageConfidence float64         `json:"average_confidence"`
}
