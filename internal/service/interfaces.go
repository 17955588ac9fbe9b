// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
)

// RuleRepository persists classification rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	ListRules(ctx context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error)
	// GetActiveRules returns active, non-retired rules whose target still
	// exists, ordered by priority descending then creation order.
	GetActiveRules(ctx context.Context, pool model.RulePool) ([]model.Rule, error)
	FindRuleByPattern(ctx context.Context, pattern string, target model.RuleTarget) (*model.Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) error
	SetRulePriority(ctx context.Context, id int64, priority int) error
	RetireRule(ctx context.Context, id int64) error
	ApplyRuleFeedback(ctx context.Context, id int64, priority int, countMatch bool, at time.Time) error
	IncrementRuleMatchCount(ctx context.Context, id int64, at time.Time) error
}

// CategoryRepository persists the Type -> Category -> Sub-category tree.
type CategoryRepository interface {
	CreateCategoryType(ctx context.Context, name string) (*model.CategoryType, error)
	CreateCategory(ctx context.Context, typeID int64, name string) (*model.Category, error)
	CreateSubCategory(ctx context.Context, categoryID int64, name string) (*model.SubCategory, error)
	DeleteSubCategory(ctx context.Context, id int64) error
	ResolveSubCategory(ctx context.Context, id int64) (*model.CategoryPath, error)
	ListSubCategories(ctx context.Context) ([]model.CategoryPath, error)
}

// AccountRepository persists ledger accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, code, name string) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// TransactionRepository persists statements and their transactions.
type TransactionRepository interface {
	CreateStatement(ctx context.Context, stmt *model.Statement) error
	GetStatement(ctx context.Context, id int64) (*model.Statement, error)
	ListStatements(ctx context.Context) ([]model.Statement, error)
	SaveTransactions(ctx context.Context, statementID int64, txns []model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	// GetTransactionsForMatching returns the transactions of a statement the
	// pool's pipeline should evaluate: unassigned ones, or every one when force is set.
	GetTransactionsForMatching(ctx context.Context, pool model.RulePool, statementID int64, force bool) ([]model.Transaction, error)
	// GetUnmatchedTransactions returns transactions without a category rule
	// match or manual category. statementID 0 selects every statement.
	GetUnmatchedTransactions(ctx context.Context, statementID int64) ([]model.Transaction, error)
	UpdateCategoryAssignment(ctx context.Context, txnID int64, assignment model.CategoryAssignment) error
	UpdateAccountAssignment(ctx context.Context, txnID int64, assignment model.AccountAssignment) error
	MarkVerified(ctx context.Context, txnID int64, reviewer string, at time.Time) error
}

// MatchLogRepository persists the append-only matching audit trail.
type MatchLogRepository interface {
	InsertMatchingLogs(ctx context.Context, logs []model.MatchingLog) error
	GetLatestAttemptLogs(ctx context.Context, txnID int64, pool model.RulePool) ([]model.MatchingLog, error)
}

// SuggestionRepository persists rules learned from manual corrections.
type SuggestionRepository interface {
	RecordSuggestionObservation(ctx context.Context, pattern string, target model.RuleTarget, confidence int, txnID int64) (*model.SuggestedRule, error)
	ListSuggestedRules(ctx context.Context, status model.SuggestionStatus) ([]model.SuggestedRule, error)
	MarkSuggestionPromoted(ctx context.Context, id, ruleID int64) error
	MarkSuggestionDismissed(ctx context.Context, id int64) error
}

// StatisticsRepository aggregates classification results.
type StatisticsRepository interface {
	GetStatistics(ctx context.Context, target model.RuleTarget) (*model.Statistics, error)
}

// Repositories groups every repository; it is implemented both by the
// storage and by a storage transaction.
type Repositories interface {
	RuleRepository
	CategoryRepository
	AccountRepository
	TransactionRepository
	MatchLogRepository
	SuggestionRepository
	StatisticsRepository
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Repositories
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Repositories
	Commit() error
	Rollback() error
}
