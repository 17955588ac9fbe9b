package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
)

type ruleView struct {
	model.Rule
	Pool     model.RulePool `json:"pool"`
	TargetID int64          `json:"target_id"`
}

func newRuleView(r *model.Rule) *ruleView {
	if r == nil {
		return nil
	}
	v := &ruleView{Rule: *r, Pool: r.Pool()}
	if r.Target != nil {
		v.TargetID = r.Target.ID()
	}
	return v
}

func newRuleViews(rules []model.Rule) []*ruleView {
	views := make([]*ruleView, 0, len(rules))
	for i := range rules {
		views = append(views, newRuleView(&rules[i]))
	}
	return views
}

// ruleRequest is the body of rule create and update calls.
type ruleRequest struct {
	IsActive      *bool           `json:"is_active"`
	Pool          model.RulePool  `json:"pool"`
	Pattern       string          `json:"pattern"`
	Kind          model.MatchKind `json:"match_kind"`
	TargetID      int64           `json:"target_id"`
	Priority      int             `json:"priority"`
	CaseSensitive bool            `json:"case_sensitive"`
}

func (r ruleRequest) apply(rule *model.Rule) error {
	pool := r.Pool
	if pool == "" {
		pool = model.PoolCategory
	}
	target, err := model.NewTarget(pool, r.TargetID)
	if err != nil {
		return err
	}
	rule.Target = target
	rule.Pattern = r.Pattern
	rule.Kind = r.Kind
	if rule.Kind == "" {
		rule.Kind = model.MatchContains
	}
	rule.Priority = r.Priority
	rule.CaseSensitive = r.CaseSensitive
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
	return nil
}

type categoryView struct {
	MatchedRuleID *int64 `json:"matched_rule_id"`
	TypeID        *int64 `json:"type_id"`
	CategoryID    *int64 `json:"category_id"`
	SubCategoryID *int64 `json:"sub_category_id"`
	Confidence    *int   `json:"confidence"`
	IsManual      bool   `json:"is_manual"`
}

type accountView struct {
	MatchedRuleID *int64 `json:"matched_rule_id"`
	AccountID     *int64 `json:"account_id"`
	Confidence    *int   `json:"confidence"`
	IsManual      bool   `json:"is_manual"`
}

type transactionView struct {
	Date        time.Time       `json:"date"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	VerifiedBy  string          `json:"verified_by,omitempty"`
	Category    categoryView    `json:"category"`
	Account     accountView     `json:"account"`
	ID          int64           `json:"id"`
	StatementID int64           `json:"statement_id"`
	IsVerified  bool            `json:"is_verified"`
}

func newTransactionView(t *model.Transaction) *transactionView {
	if t == nil {
		return nil
	}
	return &transactionView{
		Date:        t.Date,
		VerifiedAt:  t.VerifiedAt,
		Debit:       t.Debit,
		Credit:      t.Credit,
		Description: t.Description,
		VerifiedBy:  t.VerifiedBy,
		Category: categoryView{
			MatchedRuleID: t.Category.MatchedRuleID,
			TypeID:        t.Category.TypeID,
			CategoryID:    t.Category.CategoryID,
			SubCategoryID: t.Category.SubCategoryID,
			Confidence:    t.Category.Confidence,
			IsManual:      t.Category.IsManual,
		},
		Account: accountView{
			MatchedRuleID: t.Account.MatchedRuleID,
			AccountID:     t.Account.AccountID,
			Confidence:    t.Account.Confidence,
			IsManual:      t.Account.IsManual,
		},
		ID:          t.ID,
		StatementID: t.StatementID,
		IsVerified:  t.IsVerified,
	}
}

type alternativeView struct {
	Pool        model.RulePool `json:"pool"`
	MatchedText string         `json:"matched_text"`
	Reason      string         `json:"reason"`
	RuleID      int64          `json:"rule_id"`
	TargetID    int64          `json:"target_id"`
	Score       int            `json:"score"`
	Priority    int            `json:"priority"`
}

func newAlternativeViews(alts model.Alternatives) []alternativeView {
	views := make([]alternativeView, 0, len(alts))
	for _, a := range alts {
		v := alternativeView{
			MatchedText: a.MatchedText,
			Reason:      a.Reason,
			RuleID:      a.RuleID,
			Score:       a.Score,
			Priority:    a.Priority,
		}
		if a.Target != nil {
			v.Pool = a.Target.Pool()
			v.TargetID = a.Target.ID()
		}
		views = append(views, v)
	}
	return views
}

type evaluationView struct {
	MatchedText string `json:"matched_text"`
	Reason      string `json:"reason"`
	RuleID      int64  `json:"rule_id"`
	TargetID    int64  `json:"target_id"`
	Score       int    `json:"score"`
}

func newEvaluationView(e *pattern.Evaluation) *evaluationView {
	if e == nil {
		return nil
	}
	v := &evaluationView{
		MatchedText: e.MatchedText,
		Reason:      e.Reason,
		RuleID:      e.Rule.ID,
		Score:       e.Score,
	}
	if e.Rule.Target != nil {
		v.TargetID = e.Rule.Target.ID()
	}
	return v
}

type matchView struct {
	Transaction  *transactionView  `json:"transaction"`
	Best         *evaluationView   `json:"best"`
	Alternatives []alternativeView `json:"alternatives"`
	Skipped      bool              `json:"skipped"`
	AuditLogged  bool              `json:"audit_logged"`
}

func newMatchView(o *engine.MatchOutcome) matchView {
	return matchView{
		Transaction:  newTransactionView(o.Transaction),
		Best:         newEvaluationView(o.Best),
		Alternatives: newAlternativeViews(o.Alternatives),
		Skipped:      o.Skipped,
		AuditLogged:  o.AuditLogged,
	}
}

type outcomeView struct {
	Rule             *ruleView `json:"rule"`
	PreviousPriority int       `json:"previous_priority"`
	Changed          bool      `json:"changed"`
}

func newOutcomeView(o *feedback.OutcomeResult) *outcomeView {
	if o == nil {
		return nil
	}
	return &outcomeView{
		Rule:             newRuleView(o.Rule),
		PreviousPriority: o.PreviousPriority,
		Changed:          o.Changed,
	}
}

type statisticsView struct {
	*model.Statistics
	Pool     model.RulePool `json:"pool"`
	TargetID int64          `json:"target_id"`
}
