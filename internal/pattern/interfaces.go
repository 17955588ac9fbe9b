// Package pattern evaluates classification rules against transaction descriptions.
package pattern

import "github.com/Veraticus/spice-classifier/internal/model"

// Evaluator scores a description against a rule set. Both the category and
// the account pipelines consume it.
type Evaluator interface {
	Evaluate(text string) MatchResult
}

// Evaluation is the outcome of testing one rule against a description.
type Evaluation struct {
	Rule        model.Rule
	MatchedText string
	Reason      string
	Score       int
	Matched     bool
}

// MatchResult holds every rule evaluation in rule order and the winner, if any.
type MatchResult struct {
	Best        *Evaluation
	Evaluations []Evaluation
}

// Matched reports whether any rule matched.
func (r MatchResult) Matched() bool {
	return r.Best != nil
}
