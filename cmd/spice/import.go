package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import statements from OFX/QFX files",
		Long: `Import bank and credit card statements from OFX or QFX files. Each account
in a file becomes one statement ready for classification.

Examples:
  # Import a single file
  spice import ~/Downloads/bca_2024_03.ofx

  # Import every QFX file in a directory and classify right away
  spice import --classify ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("classify", false, "Classify the imported statements")

	return cmd
}

// expandFiles resolves globs, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	classify, _ := cmd.Flags().GetBool("classify")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	importer := ofx.NewImporter(a.store)
	out := cmd.OutOrStdout()
	var statementIDs []int64
	failed := 0

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			slog.Error("Failed to open file", "file", path, "error", err)
			failed++
			continue
		}
		statements, err := importer.Import(ctx, f, path)
		_ = f.Close()
		if err != nil {
			slog.Error("Failed to import file", "file", path, "error", err)
			failed++
			continue
		}

		for _, stmt := range statements {
			statementIDs = append(statementIDs, stmt.ID)
			fmt.Fprintf(out, "📁 %s: statement %d (%s %s)\n",
				filepath.Base(path), stmt.ID, stmt.Bank, stmt.AccountNumber)
		}
	}

	if failed > 0 {
		fmt.Fprintf(out, "⚠️  %d of %d files failed to import\n", failed, len(files))
	}
	if len(statementIDs) == 0 {
		return fmt.Errorf("no statements imported")
	}

	if classify {
		return classifyStatements(cmd, a, statementIDs, classifyOptions{pools: model.Pools, concurrency: 1})
	}
	return nil
}
