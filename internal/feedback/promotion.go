package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/rules"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// PromotionResult summarizes one promotion sweep.
type PromotionResult struct {
	Promoted []model.Rule `json:"promoted"`
	// Linked counts suggestions whose rule already existed; they are marked
	// promoted without creating a duplicate.
	Linked  int `json:"linked"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Eligible reports whether a pending suggestion has crossed both thresholds.
func (s *Service) Eligible(sr model.SuggestedRule) bool {
	return sr.Status == model.SuggestionPending &&
		sr.Confidence >= s.config.MinConfidence &&
		sr.Occurrences >= s.config.MinOccurrences
}

// PromoteSuggestions turns every eligible pending suggestion into an active
// contains rule flagged as auto-created. Each suggestion is promoted in its
// own transaction; a failure is logged and the sweep continues.
func (s *Service) PromoteSuggestions(ctx context.Context) (*PromotionResult, error) {
	pending, err := s.storage.ListSuggestedRules(ctx, model.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggested rules: %w", err)
	}

	result := &PromotionResult{}
	touched := make(map[model.RulePool]bool)

	for _, sr := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !s.Eligible(sr) {
			result.Pending++
			continue
		}

		rule, created, err := s.promote(ctx, sr)
		if err != nil {
			result.Failed++
			slog.Warn("Failed to promote suggested rule",
				"suggestion_id", sr.ID,
				"pattern", sr.Pattern,
				"error", err)
			continue
		}
		if created {
			result.Promoted = append(result.Promoted, *rule)
			touched[rule.Pool()] = true
		} else {
			result.Linked++
		}
	}

	for pool := range touched {
		s.invalidate(pool)
	}

	slog.Info("Promotion sweep complete",
		"promoted", len(result.Promoted),
		"linked", result.Linked,
		"pending", result.Pending,
		"failed", result.Failed)
	return result, nil
}

func (s *Service) promote(ctx context.Context, sr model.SuggestedRule) (*model.Rule, bool, error) {
	var (
		rule    *model.Rule
		created bool
	)
	err := s.inTx(ctx, func(tx service.Transaction) error {
		existing, err := tx.FindRuleByPattern(ctx, sr.Pattern, sr.Target)
		if err == nil {
			rule = existing
			return tx.MarkSuggestionPromoted(ctx, sr.ID, existing.ID)
		}
		if !isNotFound(err) {
			return err
		}

		rule = &model.Rule{
			Target:        sr.Target,
			Pattern:       sr.Pattern,
			Kind:          model.MatchContains,
			Priority:      s.config.DefaultPriority,
			IsActive:      true,
			IsAutoCreated: true,
		}
		if err := rules.Validate(rule); err != nil {
			return err
		}
		if err := tx.CreateRule(ctx, rule); err != nil {
			return err
		}
		created = true
		return tx.MarkSuggestionPromoted(ctx, sr.ID, rule.ID)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		slog.Info("Promoted suggested rule",
			"suggestion_id", sr.ID,
			"rule_id", rule.ID,
			"pattern", rule.Pattern,
			"occurrences", sr.Occurrences,
			"confidence", sr.Confidence)
	}
	return rule, created, nil
}

// DismissSuggestion retires a pending suggestion so it is never promoted and
// stops accruing observations. Only pending suggestions can be dismissed.
func (s *Service) DismissSuggestion(ctx context.Context, id int64) error {
	if err := s.storage.MarkSuggestionDismissed(ctx, id); err != nil {
		return fmt.Errorf("failed to dismiss suggested rule %d: %w", id, err)
	}
	slog.Info("Dismissed suggested rule", "suggestion_id", id)
	return nil
}
