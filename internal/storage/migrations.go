package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 6

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Category hierarchy and accounts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS category_types (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					type_id INTEGER NOT NULL REFERENCES category_types(id),
					name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (type_id, name)
				)`,
				`CREATE TABLE IF NOT EXISTS sub_categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					name TEXT NOT NULL,
					is_deleted BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (category_id, name)
				)`,
				`CREATE TABLE IF NOT EXISTS accounts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Statements and transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS statements (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					bank TEXT NOT NULL,
					account_number TEXT NOT NULL DEFAULT '',
					source_file TEXT NOT NULL DEFAULT '',
					period_start DATETIME,
					period_end DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					statement_id INTEGER NOT NULL REFERENCES statements(id),
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					debit TEXT NOT NULL DEFAULT '0',
					credit TEXT NOT NULL DEFAULT '0',
					balance TEXT,
					matched_rule_id INTEGER,
					type_id INTEGER REFERENCES category_types(id),
					category_id INTEGER REFERENCES categories(id),
					sub_category_id INTEGER REFERENCES sub_categories(id),
					confidence INTEGER CHECK (confidence IS NULL OR confidence BETWEEN 0 AND 100),
					is_manual BOOLEAN NOT NULL DEFAULT 0,
					matched_account_rule_id INTEGER,
					account_id INTEGER REFERENCES accounts(id),
					account_confidence INTEGER CHECK (account_confidence IS NULL OR account_confidence BETWEEN 0 AND 100),
					is_manual_account BOOLEAN NOT NULL DEFAULT 0,
					is_verified BOOLEAN NOT NULL DEFAULT 0,
					verified_by TEXT NOT NULL DEFAULT '',
					verified_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_statement ON transactions(statement_id)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Classification rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pool TEXT NOT NULL CHECK (pool IN ('category', 'account')),
					pattern TEXT NOT NULL,
					match_kind TEXT NOT NULL CHECK (match_kind IN ('exact', 'contains', 'starts_with', 'ends_with', 'regex')),
					case_sensitive BOOLEAN NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 5 CHECK (priority BETWEEN 1 AND 10),
					sub_category_id INTEGER REFERENCES sub_categories(id),
					account_id INTEGER REFERENCES accounts(id),
					match_count INTEGER NOT NULL DEFAULT 0,
					last_matched_at DATETIME,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					is_deleted BOOLEAN NOT NULL DEFAULT 0,
					is_auto_created BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					CHECK (
						(pool = 'category' AND sub_category_id IS NOT NULL AND account_id IS NULL) OR
						(pool = 'account' AND account_id IS NOT NULL AND sub_category_id IS NULL)
					)
				)`,
				`CREATE INDEX idx_rules_pool_active ON rules(pool, is_active, is_deleted)`,
				`CREATE INDEX idx_rules_priority ON rules(priority DESC, id ASC)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Matching audit log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS matching_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					attempt_id TEXT NOT NULL,
					transaction_id INTEGER NOT NULL REFERENCES transactions(id),
					rule_id INTEGER NOT NULL REFERENCES rules(id),
					pool TEXT NOT NULL CHECK (pool IN ('category', 'account')),
					matched_text TEXT NOT NULL DEFAULT '',
					score INTEGER NOT NULL DEFAULT 0,
					is_matched BOOLEAN NOT NULL DEFAULT 0,
					is_selected BOOLEAN NOT NULL DEFAULT 0,
					priority_snapshot INTEGER NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_matching_logs_txn ON matching_logs(transaction_id, pool, id)`,
				`CREATE INDEX idx_matching_logs_attempt ON matching_logs(attempt_id)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Suggested rules learned from corrections",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS suggested_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pool TEXT NOT NULL CHECK (pool IN ('category', 'account')),
					pattern TEXT NOT NULL,
					target_id INTEGER NOT NULL,
					confidence INTEGER NOT NULL DEFAULT 0 CHECK (confidence BETWEEN 0 AND 100),
					occurrences INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'promoted', 'dismissed')),
					promoted_rule_id INTEGER REFERENCES rules(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (pool, pattern, target_id)
				)`,
				`CREATE TABLE IF NOT EXISTS suggested_rule_observations (
					suggestion_id INTEGER NOT NULL REFERENCES suggested_rules(id),
					transaction_id INTEGER NOT NULL REFERENCES transactions(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (suggestion_id, transaction_id)
				)`,
			})
		},
	},
	{
		Version:     6,
		Description: "Indexes for matching selection and statistics",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX idx_transactions_sub_category ON transactions(sub_category_id)`,
				`CREATE INDEX idx_transactions_account ON transactions(account_id)`,
				`CREATE INDEX idx_rules_sub_category ON rules(sub_category_id)`,
				`CREATE INDEX idx_rules_account ON rules(account_id)`,
				`CREATE INDEX idx_suggested_rules_status ON suggested_rules(status)`,
			})
		},
	},
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
