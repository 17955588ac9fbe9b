package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// ReviewResult describes a completed review.
type ReviewResult struct {
	Transaction *model.Transaction
	// Outcome is nil when the transaction had no matched rule to adjust.
	Outcome *OutcomeResult
}

// Review records a reviewer's verdict on a transaction's automatic category.
// Approval verifies the transaction and rewards the matched rule. Rejection
// clears the automatic assignment and penalizes the rule.
func (s *Service) Review(ctx context.Context, txnID int64, reviewer string, approved bool) (*ReviewResult, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", common.ErrInvalidInput)
	}

	txn, err := s.storage.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", txnID, err)
	}
	if !approved && txn.Category.IsManual {
		return nil, fmt.Errorf("%w: transaction %d has a manual category; correct it instead", common.ErrInvalidInput, txnID)
	}

	result := &ReviewResult{Transaction: txn}
	err = s.inTx(ctx, func(tx service.Transaction) error {
		if approved {
			if err := tx.MarkVerified(ctx, txnID, reviewer, s.now().UTC()); err != nil {
				return err
			}
		} else if txn.Category.Assigned() || txn.Category.MatchedRuleID != nil {
			if err := tx.UpdateCategoryAssignment(ctx, txnID, model.CategoryAssignment{}); err != nil {
				return err
			}
		}

		if txn.Category.MatchedRuleID == nil {
			return nil
		}
		outcome := model.OutcomeApproved
		if !approved {
			outcome = model.OutcomeRejected
		}
		res, err := s.applyOutcome(ctx, tx, *txn.Category.MatchedRuleID, outcome)
		if isNotFound(err) {
			slog.Warn("Matched rule no longer exists; review recorded without feedback",
				"transaction_id", txnID,
				"rule_id", *txn.Category.MatchedRuleID)
			return nil
		}
		result.Outcome = res
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome != nil && result.Outcome.Changed {
		s.invalidate(model.PoolCategory)
	}
	s.invalidateStatistics()

	if result.Transaction, err = s.storage.GetTransaction(ctx, txnID); err != nil {
		return nil, err
	}
	slog.Info("Reviewed transaction",
		"transaction_id", txnID,
		"reviewer", reviewer,
		"approved", approved)
	return result, nil
}

// SelectionResult describes an alternative picked by a reviewer.
type SelectionResult struct {
	Transaction *model.Transaction
	Selected    *OutcomeResult
	// Replaced is the previously matched rule, if any.
	Replaced *OutcomeResult
}

// SelectAlternative assigns the target of the chosen rule to a transaction
// as a manual, verified category. The chosen rule is rewarded and the rule it
// replaces is penalized.
func (s *Service) SelectAlternative(ctx context.Context, txnID, ruleID int64, reviewer string) (*SelectionResult, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", common.ErrInvalidInput)
	}

	rule, err := s.storage.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", ruleID, err)
	}
	target, ok := rule.Target.(model.CategoryTarget)
	if !ok {
		return nil, fmt.Errorf("%w: rule %d does not target a sub-category", common.ErrInvalidInput, ruleID)
	}
	txn, err := s.storage.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", txnID, err)
	}

	result := &SelectionResult{}
	err = s.inTx(ctx, func(tx service.Transaction) error {
		path, err := tx.ResolveSubCategory(ctx, target.SubCategoryID)
		if err != nil {
			return fmt.Errorf("failed to resolve sub-category %d: %w", target.SubCategoryID, err)
		}
		if err := tx.UpdateCategoryAssignment(ctx, txnID, manualAssignment(path, &ruleID)); err != nil {
			return err
		}
		if err := tx.MarkVerified(ctx, txnID, reviewer, s.now().UTC()); err != nil {
			return err
		}

		if result.Selected, err = s.applyOutcome(ctx, tx, ruleID, model.OutcomeSelectedFromSuggestion); err != nil {
			return err
		}
		previous := txn.Category.MatchedRuleID
		if previous == nil || *previous == ruleID {
			return nil
		}
		result.Replaced, err = s.applyOutcome(ctx, tx, *previous, model.OutcomeReplacedBySuggestion)
		if isNotFound(err) {
			result.Replaced = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(model.PoolCategory)
	s.invalidateStatistics()

	if result.Transaction, err = s.storage.GetTransaction(ctx, txnID); err != nil {
		return nil, err
	}
	slog.Info("Selected alternative rule",
		"transaction_id", txnID,
		"rule_id", ruleID,
		"reviewer", reviewer)
	return result, nil
}

// CorrectionResult describes what a manual re-categorization taught the system.
type CorrectionResult struct {
	Transaction *model.Transaction
	// Rejected is the outcome applied to the rule whose match was overridden.
	Rejected    *OutcomeResult
	Keywords    []string
	BumpedRules []int64
	Suggestions []model.SuggestedRule
}

// CorrectCategory sets a manual category on a transaction and learns from it:
// each keyword of the description either bumps an existing rule for that
// category or is recorded as an observation of a suggested rule.
func (s *Service) CorrectCategory(ctx context.Context, txnID, subCategoryID int64, reviewer string) (*CorrectionResult, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", common.ErrInvalidInput)
	}

	txn, err := s.storage.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", txnID, err)
	}

	target := model.CategoryTarget{SubCategoryID: subCategoryID}
	found := s.extractor.Extract(txn.Description)
	result := &CorrectionResult{Keywords: make([]string, 0, len(found))}
	at := s.now().UTC()

	err = s.inTx(ctx, func(tx service.Transaction) error {
		path, err := tx.ResolveSubCategory(ctx, subCategoryID)
		if err != nil {
			return fmt.Errorf("failed to resolve sub-category %d: %w", subCategoryID, err)
		}
		if err := tx.UpdateCategoryAssignment(ctx, txnID, manualAssignment(path, nil)); err != nil {
			return err
		}
		if err := tx.MarkVerified(ctx, txnID, reviewer, at); err != nil {
			return err
		}

		if prev := txn.Category.MatchedRuleID; prev != nil && !sameSubCategory(txn.Category, subCategoryID) {
			result.Rejected, err = s.applyOutcome(ctx, tx, *prev, model.OutcomeRejected)
			if isNotFound(err) {
				result.Rejected, err = nil, nil
			}
			if err != nil {
				return err
			}
		}

		for _, kw := range found {
			result.Keywords = append(result.Keywords, kw.Text)

			existing, err := tx.FindRuleByPattern(ctx, kw.Text, target)
			switch {
			case err == nil:
				if err := tx.IncrementRuleMatchCount(ctx, existing.ID, at); err != nil {
					return err
				}
				result.BumpedRules = append(result.BumpedRules, existing.ID)
			case isNotFound(err):
				suggestion, err := tx.RecordSuggestionObservation(ctx, kw.Text, target, kw.Kind.Confidence(), txnID)
				if err != nil {
					return err
				}
				result.Suggestions = append(result.Suggestions, *suggestion)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(model.PoolCategory)
	s.invalidateStatistics()

	if result.Transaction, err = s.storage.GetTransaction(ctx, txnID); err != nil {
		return nil, err
	}
	slog.Info("Corrected transaction category",
		"transaction_id", txnID,
		"sub_category_id", subCategoryID,
		"keywords", len(result.Keywords),
		"bumped_rules", len(result.BumpedRules),
		"suggestions", len(result.Suggestions))
	return result, nil
}

func manualAssignment(path *model.CategoryPath, ruleID *int64) model.CategoryAssignment {
	return model.CategoryAssignment{
		MatchedRuleID: ruleID,
		TypeID:        &path.TypeID,
		CategoryID:    &path.CategoryID,
		SubCategoryID: &path.SubCategoryID,
		IsManual:      true,
	}
}

func sameSubCategory(a model.CategoryAssignment, subCategoryID int64) bool {
	return a.SubCategoryID != nil && *a.SubCategoryID == subCategoryID
}
