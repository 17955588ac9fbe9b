// Package main contains the spice CLI commands.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/model"
)

type classifyOptions struct {
	pools       []model.RulePool
	force       bool
	concurrency int
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [statement-ids...]",
		Short: "Classify the transactions of statements",
		Long: `Run the statements' transactions through the category and account rules.

Only transactions without an assignment are matched unless --force is given,
which re-matches everything and takes an automatic snapshot first. A category
run is all-or-nothing per statement; an account run keeps partial progress.

Examples:
  spice classify 12              # Classify statement 12
  spice classify --all           # Classify every statement
  spice classify 12 --pool category --force`,
		RunE: runClassify,
	}

	cmd.Flags().Bool("all", false, "Classify every imported statement")
	cmd.Flags().String("pool", "all", "Rule pool to run (category, account, all)")
	cmd.Flags().Bool("force", false, "Re-match transactions that already have an assignment")
	cmd.Flags().Int("concurrency", 2, "Statements classified in parallel")

	return cmd
}

func parsePools(raw string) ([]model.RulePool, error) {
	if raw == "" || raw == "all" {
		return model.Pools, nil
	}
	pool := model.RulePool(raw)
	if !pool.Valid() {
		return nil, fmt.Errorf("unknown pool %q (use category, account or all)", raw)
	}
	return []model.RulePool{pool}, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	poolFlag, _ := cmd.Flags().GetString("pool")
	force, _ := cmd.Flags().GetBool("force")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	pools, err := parsePools(poolFlag)
	if err != nil {
		return err
	}
	if len(args) == 0 && !all {
		return fmt.Errorf("specify statement IDs or --all")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var statementIDs []int64
	if all {
		statements, err := a.store.ListStatements(ctx)
		if err != nil {
			return fmt.Errorf("failed to list statements: %w", err)
		}
		for _, stmt := range statements {
			statementIDs = append(statementIDs, stmt.ID)
		}
	} else {
		for _, arg := range args {
			id, err := parseID(arg, "statement ID")
			if err != nil {
				return err
			}
			statementIDs = append(statementIDs, id)
		}
	}
	if len(statementIDs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No statements to classify")
		return nil
	}

	if force {
		info, err := a.store.AutoSnapshot(ctx, "classify")
		if err != nil {
			return fmt.Errorf("failed to snapshot before forced classification: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📸 Snapshot %s taken before re-matching\n", info.Label)
	}

	return classifyStatements(cmd, a, statementIDs, classifyOptions{
		pools:       pools,
		force:       force,
		concurrency: concurrency,
	})
}

// classifyStatements runs every pool over every statement. Statements run
// concurrently; the pools of one statement run in order.
func classifyStatements(cmd *cobra.Command, a *app, statementIDs []int64, opts classifyOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	bar := newProgressBar(out, len(statementIDs)*len(opts.pools))

	var (
		mu        sync.Mutex
		summaries []*engine.Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}

	for _, id := range statementIDs {
		id := id
		g.Go(func() error {
			for _, pool := range opts.pools {
				summary, err := classifyPool(gctx, a, id, pool, opts.force)
				if summary != nil {
					mu.Lock()
					summaries = append(summaries, summary)
					mu.Unlock()
				}
				if err != nil {
					return fmt.Errorf("statement %d (%s): %w", id, pool, err)
				}
				_ = bar.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	_ = bar.Finish()

	printSummaries(out, summaries)
	return err
}

func classifyPool(ctx context.Context, a *app, statementID int64, pool model.RulePool, force bool) (*engine.Summary, error) {
	opts := engine.Options{Force: force}
	if pool == model.PoolAccount {
		return a.engine.ClassifyAccounts(ctx, statementID, opts)
	}
	return a.engine.ClassifyBatch(ctx, statementID, opts)
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Classifying statements...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func printSummaries(w io.Writer, summaries []*engine.Summary) {
	for _, s := range summaries {
		fmt.Fprintf(w, "Statement %d [%s]: %d total, %d matched (%d high, %d low confidence), %d unmatched",
			s.StatementID, s.Pool, s.Total, s.Matched, s.HighConfidence, s.LowConfidence, s.Unmatched)
		if s.Errors > 0 {
			fmt.Fprintf(w, ", %d errors", s.Errors)
		}
		if s.AuditFailures > 0 {
			fmt.Fprintf(w, ", %d audit log failures", s.AuditFailures)
		}
		fmt.Fprintln(w)
	}
}
