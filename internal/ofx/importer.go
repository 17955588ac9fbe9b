package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// Importer stores parsed statements so they can be classified.
type Importer struct {
	storage service.Storage
	parser  *Parser
}

// NewImporter creates an importer writing to storage.
func NewImporter(storage service.Storage) *Importer {
	return &Importer{storage: storage, parser: NewParser()}
}

// Import parses an OFX file and saves every statement in it with its
// transactions. Either the whole file is stored or nothing is.
func (i *Importer) Import(ctx context.Context, reader io.Reader, sourceFile string) ([]model.Statement, error) {
	parsed, err := i.parser.ParseFile(ctx, reader)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no statements found in %s", sourceFile)
	}

	tx, err := i.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	statements := make([]model.Statement, 0, len(parsed))
	for _, p := range parsed {
		stmt := p.Statement
		stmt.SourceFile = filepath.Base(sourceFile)
		if err := tx.CreateStatement(ctx, &stmt); err != nil {
			return nil, fmt.Errorf("failed to create statement for account %s: %w", stmt.AccountNumber, err)
		}
		if len(p.Transactions) > 0 {
			if err := tx.SaveTransactions(ctx, stmt.ID, p.Transactions); err != nil {
				return nil, fmt.Errorf("failed to save transactions for account %s: %w", stmt.AccountNumber, err)
			}
		}
		statements = append(statements, stmt)

		slog.Info("Imported statement",
			"statement_id", stmt.ID,
			"bank", stmt.Bank,
			"account", stmt.AccountNumber,
			"transactions", len(p.Transactions))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return statements, nil
}
