package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// errTargetGone marks a rule whose target disappeared after the rule
// snapshot was loaded. The rule is then treated as not matching.
var errTargetGone = errors.New("rule target no longer exists")

// assigner writes one pool's classification fields. Category and account
// fields are never written by the other pool's assigner.
type assigner interface {
	pool() model.RulePool
	// assigned reports whether the transaction already carries an automatic
	// or manual assignment in this pool.
	assigned(txn *model.Transaction) bool
	apply(ctx context.Context, repo service.Repositories, txn *model.Transaction, eval *pattern.Evaluation) error
	// clear drops a stale automatic assignment after a forced re-match
	// finds nothing. Manual assignments are kept. It reports whether
	// anything was written.
	clear(ctx context.Context, repo service.Repositories, txn *model.Transaction) (bool, error)
}

func assignerFor(pool model.RulePool) assigner {
	if pool == model.PoolAccount {
		return accountAssigner{}
	}
	return &categoryAssigner{paths: make(map[int64]*model.CategoryPath)}
}

type categoryAssigner struct {
	paths map[int64]*model.CategoryPath
}

func (*categoryAssigner) pool() model.RulePool { return model.PoolCategory }

func (*categoryAssigner) assigned(txn *model.Transaction) bool {
	c := txn.Category
	return c.IsManual || c.MatchedRuleID != nil || c.SubCategoryID != nil
}

func (a *categoryAssigner) apply(ctx context.Context, repo service.Repositories, txn *model.Transaction, eval *pattern.Evaluation) error {
	target, ok := eval.Rule.Target.(model.CategoryTarget)
	if !ok {
		return fmt.Errorf("%w: rule %d does not target a sub-category", common.ErrInvalidRule, eval.Rule.ID)
	}

	path, ok := a.paths[target.SubCategoryID]
	if !ok {
		var err error
		path, err = repo.ResolveSubCategory(ctx, target.SubCategoryID)
		if errors.Is(err, common.ErrNotFound) {
			return errTargetGone
		}
		if err != nil {
			return err
		}
		a.paths[target.SubCategoryID] = path
	}

	ruleID, confidence := eval.Rule.ID, eval.Score
	assignment := model.CategoryAssignment{
		MatchedRuleID: &ruleID,
		TypeID:        &path.TypeID,
		CategoryID:    &path.CategoryID,
		SubCategoryID: &path.SubCategoryID,
		Confidence:    &confidence,
	}
	if err := repo.UpdateCategoryAssignment(ctx, txn.ID, assignment); err != nil {
		return err
	}
	txn.Category = assignment
	return nil
}

func (*categoryAssigner) clear(ctx context.Context, repo service.Repositories, txn *model.Transaction) (bool, error) {
	if txn.Category.IsManual || !txn.Category.Assigned() {
		return false, nil
	}
	if err := repo.UpdateCategoryAssignment(ctx, txn.ID, model.CategoryAssignment{}); err != nil {
		return false, err
	}
	txn.Category = model.CategoryAssignment{}
	return true, nil
}

type accountAssigner struct{}

func (accountAssigner) pool() model.RulePool { return model.PoolAccount }

func (accountAssigner) assigned(txn *model.Transaction) bool {
	a := txn.Account
	return a.IsManual || a.MatchedRuleID != nil || a.AccountID != nil
}

func (accountAssigner) apply(ctx context.Context, repo service.Repositories, txn *model.Transaction, eval *pattern.Evaluation) error {
	target, ok := eval.Rule.Target.(model.AccountTarget)
	if !ok {
		return fmt.Errorf("%w: rule %d does not target an account", common.ErrInvalidRule, eval.Rule.ID)
	}

	account, err := repo.GetAccount(ctx, target.AccountID)
	if errors.Is(err, common.ErrNotFound) {
		return errTargetGone
	}
	if err != nil {
		return err
	}
	if !account.IsActive {
		return errTargetGone
	}

	ruleID, accountID, confidence := eval.Rule.ID, account.ID, eval.Score
	assignment := model.AccountAssignment{
		MatchedRuleID: &ruleID,
		AccountID:     &accountID,
		Confidence:    &confidence,
	}
	if err := repo.UpdateAccountAssignment(ctx, txn.ID, assignment); err != nil {
		return err
	}
	txn.Account = assignment
	return nil
}

func (accountAssigner) clear(ctx context.Context, repo service.Repositories, txn *model.Transaction) (bool, error) {
	if txn.Account.IsManual || !txn.Account.Assigned() {
		return false, nil
	}
	if err := repo.UpdateAccountAssignment(ctx, txn.ID, model.AccountAssignment{}); err != nil {
		return false, err
	}
	txn.Account = model.AccountAssignment{}
	return true, nil
}

// attemptLogs builds the audit rows for one matching attempt: one row per
// evaluated rule, with the persisted winner marked selected.
func attemptLogs(attemptID string, txnID int64, pool model.RulePool, result pattern.MatchResult, selectedRuleID int64) []model.MatchingLog {
	logs := make([]model.MatchingLog, 0, len(result.Evaluations))
	for _, eval := range result.Evaluations {
		logs = append(logs, model.MatchingLog{
			AttemptID:        attemptID,
			TransactionID:    txnID,
			RuleID:           eval.Rule.ID,
			Pool:             pool,
			MatchedText:      eval.MatchedText,
			Score:            eval.Score,
			Matched:          eval.Matched,
			Selected:         eval.Rule.ID == selectedRuleID,
			PrioritySnapshot: eval.Rule.Priority,
			Reason:           eval.Reason,
		})
	}
	return logs
}

// writeAuditLogs inserts one attempt's rows. Failures are reported to the
// operator but never undo the classification they describe.
func (e *ClassificationEngine) writeAuditLogs(ctx context.Context, logs []model.MatchingLog) bool {
	if len(logs) == 0 {
		return true
	}
	err := common.WithRetry(ctx, func() error {
		return e.storage.InsertMatchingLogs(ctx, logs)
	}, common.RetryOptions{})
	if err != nil {
		common.LogError(err, "failed to write matching audit log", common.Fields{
			"transaction_id": logs[0].TransactionID,
			"attempt_id":     logs[0].AttemptID,
			"rows":           len(logs),
		})
		return false
	}
	return true
}
