package model

import (
	"fmt"
	"time"
)

// Outcome is a verification result fed back into a rule.
type Outcome string

// Verification outcomes.
const (
	OutcomeApproved               Outcome = "approved"
	OutcomeRejected               Outcome = "rejected"
	OutcomeSelectedFromSuggestion Outcome = "selected_from_suggestion"
	OutcomeReplacedBySuggestion   Outcome = "replaced_by_suggestion"
)

// Adjustment describes how an outcome changes a rule.
type Adjustment struct {
	PriorityDelta int
	CountsAsMatch bool
}

// Adjustment returns the rule change implied by o.
func (o Outcome) Adjustment() (Adjustment, error) {
	switch o {
	case OutcomeApproved:
		return Adjustment{PriorityDelta: 1, CountsAsMatch: true}, nil
	case OutcomeRejected:
		return Adjustment{PriorityDelta: -1}, nil
	case OutcomeSelectedFromSuggestion:
		return Adjustment{PriorityDelta: 2, CountsAsMatch: true}, nil
	case OutcomeReplacedBySuggestion:
		return Adjustment{PriorityDelta: -2}, nil
	}
	return Adjustment{}, fmt.Errorf("unknown outcome %q", o)
}

// SuggestionStatus tracks a suggested rule through review.
type SuggestionStatus string

// Suggested rule statuses.
const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionPromoted  SuggestionStatus = "promoted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// SuggestedRule is a candidate rule learned from manual corrections, pending review.
type SuggestedRule struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Target         RuleTarget
	PromotedRuleID *int64
	Pattern        string
	Status         SuggestionStatus
	ID             int64
	Confidence     int
	Occurrences    int
}
