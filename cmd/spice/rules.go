package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Manage classification rules",
		Long: `Manage the keyword rules that assign sub-categories and ledger accounts.

A rule has a pattern, a match kind (exact, contains, starts_with, ends_with,
regex), a priority from 1 to 10 and a target in either the category or the
account pool.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCreateCmd())
	cmd.AddCommand(rulesSetActiveCmd("activate", true))
	cmd.AddCommand(rulesSetActiveCmd("deactivate", false))
	cmd.AddCommand(rulesPriorityCmd())
	cmd.AddCommand(rulesRetireCmd())
	cmd.AddCommand(rulesTestCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			poolFlag, _ := cmd.Flags().GetString("pool")
			all, _ := cmd.Flags().GetBool("all")

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.manager.List(ctx, model.RulePool(poolFlag), all)
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATTERN\tKIND\tPRIORITY\tTARGET\tMATCHES\tSTATUS")
			for _, r := range rules {
				status := "active"
				if !r.IsActive {
					status = "inactive"
				}
				if r.IsAutoCreated {
					status += ",auto"
				}
				pattern := r.Pattern
				if r.CaseSensitive {
					pattern += " (Aa)"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, truncateString(pattern, 40), r.Kind, r.Priority, r.Target.ID(), r.MatchCount, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("pool", string(model.PoolCategory), "Rule pool (category, account)")
	cmd.Flags().Bool("all", false, "Include inactive rules")
	return cmd
}

func rulesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <pattern> <target-id>",
		Short: "Create a rule",
		Long: `Create a rule pointing at a sub-category (category pool) or an account
(account pool).

Examples:
  spice rules create INDOMARET 14 --priority 8
  spice rules create "^TRSF E-BANKING" 3 --kind regex --pool account`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			poolFlag, _ := cmd.Flags().GetString("pool")
			kind, _ := cmd.Flags().GetString("kind")
			priority, _ := cmd.Flags().GetInt("priority")
			caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")

			targetID, err := parseID(args[1], "target ID")
			if err != nil {
				return err
			}
			target, err := model.NewTarget(model.RulePool(poolFlag), targetID)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rule := &model.Rule{
				Target:        target,
				Pattern:       args[0],
				Kind:          model.MatchKind(kind),
				Priority:      priority,
				CaseSensitive: caseSensitive,
				IsActive:      true,
			}
			if err := a.manager.Create(ctx, rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created rule %d\n", rule.ID)
			return nil
		},
	}

	cmd.Flags().String("pool", string(model.PoolCategory), "Rule pool (category, account)")
	cmd.Flags().String("kind", string(model.MatchContains), "Match kind (exact, contains, starts_with, ends_with, regex)")
	cmd.Flags().Int("priority", 5, "Priority from 1 (lowest) to 10 (highest)")
	cmd.Flags().Bool("case-sensitive", false, "Match case exactly")
	return cmd
}

func rulesSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "rule ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.SetActive(ctx, id, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %d %sd\n", id, use)
			return nil
		},
	}
}

func rulesPriorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority <rule-id> <priority>",
		Short: "Set a rule's priority (1-10)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "rule ID")
			if err != nil {
				return err
			}
			priority, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid priority %q", args[1])
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.SetPriority(ctx, id, priority); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %d priority set to %d\n", id, priority)
			return nil
		},
	}
}

func rulesRetireCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "retire <rule-id>",
		Aliases: []string{"delete"},
		Short:   "Retire a rule, keeping its matching history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "rule ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.Retire(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %d retired\n", id)
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <description>",
		Short: "Show how the active rules score a description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			poolFlag, _ := cmd.Flags().GetString("pool")
			pool := model.RulePool(poolFlag)
			if !pool.Valid() {
				return fmt.Errorf("unknown pool %q", poolFlag)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, err := a.rules.Snapshot(ctx, pool)
			if err != nil {
				return err
			}
			result := snapshot.Matcher.Evaluate(args[0])

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tPATTERN\tSCORE\tREASON")
			for _, e := range result.Evaluations {
				if !e.Matched {
					continue
				}
				marker := ""
				if result.Best != nil && result.Best.Rule.ID == e.Rule.ID {
					marker = " ✓"
				}
				fmt.Fprintf(w, "%d%s\t%s\t%d\t%s\n", e.Rule.ID, marker, e.Rule.Pattern, e.Score, e.Reason)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !result.Matched() {
				fmt.Fprintf(out, "No rule matched (%d active rules).\n", snapshot.Matcher.Len())
			}
			if keywords := a.extractor.Keywords(args[0]); len(keywords) > 0 {
				fmt.Fprintf(out, "Keywords: %s\n", strings.Join(keywords, ", "))
			}
			return nil
		},
	}

	cmd.Flags().String("pool", string(model.PoolCategory), "Rule pool (category, account)")
	return cmd
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
