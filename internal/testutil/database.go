// Package testutil provides fixtures for tests that need a migrated database
// holding a category tree, accounts, statements and rules.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/service"
	"github.com/Veraticus/spice-classifier/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB is a migrated sqlite database living in the test's temp directory.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	t          *testing.T
	types      map[string]int64
	categories map[string]int64
}

// SetupTestDB creates and migrates a fresh database. It is closed when the
// test finishes.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	groceries := db.SubCategory("Expense", "Shopping", "Groceries")
//	stmt := db.Statement("BCA")
//	txns := db.Transactions(stmt.ID, "INDOMARET CABANG 12", "TRANSFER KE BUDI")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "spice.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage:    store,
		t:          t,
		types:      make(map[string]int64),
		categories: make(map[string]int64),
	}
}

// SubCategory creates a sub-category, creating its type and category on first
// use, and returns its resolved path.
func (db *TestDB) SubCategory(typeName, categoryName, name string) *model.CategoryPath {
	db.t.Helper()
	ctx := context.Background()

	typeID, ok := db.types[typeName]
	if !ok {
		ct, err := db.Storage.CreateCategoryType(ctx, typeName)
		if err != nil {
			db.t.Fatalf("failed to create category type %q: %v", typeName, err)
		}
		typeID = ct.ID
		db.types[typeName] = typeID
	}

	key := fmt.Sprintf("%d/%s", typeID, categoryName)
	categoryID, ok := db.categories[key]
	if !ok {
		cat, err := db.Storage.CreateCategory(ctx, typeID, categoryName)
		if err != nil {
			db.t.Fatalf("failed to create category %q: %v", categoryName, err)
		}
		categoryID = cat.ID
		db.categories[key] = categoryID
	}

	sub, err := db.Storage.CreateSubCategory(ctx, categoryID, name)
	if err != nil {
		db.t.Fatalf("failed to create sub-category %q: %v", name, err)
	}
	path, err := db.Storage.ResolveSubCategory(ctx, sub.ID)
	if err != nil {
		db.t.Fatalf("failed to resolve sub-category %q: %v", name, err)
	}
	return path
}

// Account creates an active ledger account.
func (db *TestDB) Account(code, name string) *model.Account {
	db.t.Helper()
	account, err := db.Storage.CreateAccount(context.Background(), code, name)
	if err != nil {
		db.t.Fatalf("failed to create account %q: %v", code, err)
	}
	return account
}

// Statement creates a statement for bank covering March 2024.
func (db *TestDB) Statement(bank string) *model.Statement {
	db.t.Helper()
	stmt := &model.Statement{
		Bank:          bank,
		AccountNumber: "1234567890",
		SourceFile:    fmt.Sprintf("%s-2024-03.pdf", bank),
		PeriodStart:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Storage.CreateStatement(context.Background(), stmt); err != nil {
		db.t.Fatalf("failed to create statement: %v", err)
	}
	return stmt
}

// Transactions saves one debit transaction per description, a day apart, and
// returns them with their IDs.
func (db *TestDB) Transactions(statementID int64, descriptions ...string) []model.Transaction {
	db.t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txns := make([]model.Transaction, len(descriptions))
	for i, desc := range descriptions {
		txns[i] = model.Transaction{
			Date:        base.AddDate(0, 0, i),
			Description: desc,
			Debit:       decimal.NewFromInt(int64(i+1) * 25000),
			Credit:      decimal.Zero,
		}
	}
	if err := db.Storage.SaveTransactions(context.Background(), statementID, txns); err != nil {
		db.t.Fatalf("failed to save transactions: %v", err)
	}
	return txns
}

// Rule creates an active, case-insensitive rule.
func (db *TestDB) Rule(target model.RuleTarget, pattern string, kind model.MatchKind, priority int) *model.Rule {
	db.t.Helper()
	rule := &model.Rule{
		Target:   target,
		Pattern:  pattern,
		Kind:     kind,
		Priority: priority,
		IsActive: true,
	}
	if err := db.Storage.CreateRule(context.Background(), rule); err != nil {
		db.t.Fatalf("failed to create rule %q: %v", pattern, err)
	}
	return rule
}

// Transaction reloads a transaction.
func (db *TestDB) Transaction(id int64) *model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %d: %v", id, err)
	}
	return txn
}

// WithTransaction executes fn within a database transaction that is always
// rolled back afterwards.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
