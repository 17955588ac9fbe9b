package pattern

import (
	"fmt"

	"github.com/Veraticus/spice-classifier/internal/model"
)

// Alternatives converts the matched, non-winning evaluations of a result into
// ranked alternatives, keeping only the best rule per target.
func Alternatives(result MatchResult, n int) model.Alternatives {
	var best int64
	if result.Best != nil {
		best = result.Best.Rule.ID
	}

	alts := make(model.Alternatives, 0, len(result.Evaluations))
	for _, eval := range result.Evaluations {
		if !eval.Matched || eval.Rule.ID == best {
			continue
		}
		alts = append(alts, model.Alternative{
			Target:      eval.Rule.Target,
			RuleID:      eval.Rule.ID,
			Score:       eval.Score,
			Priority:    eval.Rule.Priority,
			MatchedText: eval.MatchedText,
			Reason:      generateReason(eval),
		})
	}
	alts.Sort()

	seen := make(map[model.RuleTarget]bool)
	if result.Best != nil {
		seen[result.Best.Rule.Target] = true
	}
	deduped := make(model.Alternatives, 0, len(alts))
	for _, alt := range alts {
		if seen[alt.Target] {
			continue
		}
		seen[alt.Target] = true
		deduped = append(deduped, alt)
	}
	return deduped.TopN(n)
}

// generateReason creates a human-readable explanation for an alternative.
func generateReason(eval Evaluation) string {
	reason := fmt.Sprintf("Descriptions containing %q", eval.MatchedText)
	switch eval.Rule.Kind {
	case model.MatchExact:
		reason = fmt.Sprintf("Descriptions equal to %q", eval.MatchedText)
	case model.MatchStartsWith:
		reason = fmt.Sprintf("Descriptions starting with %q", eval.MatchedText)
	case model.MatchEndsWith:
		reason = fmt.Sprintf("Descriptions ending with %q", eval.MatchedText)
	case model.MatchRegex:
		reason = fmt.Sprintf("Descriptions matching /%s/", eval.Rule.Pattern)
	}

	switch t := eval.Rule.Target.(type) {
	case model.CategoryTarget:
		reason += fmt.Sprintf(" are usually sub-category %d", t.SubCategoryID)
	case model.AccountTarget:
		reason += fmt.Sprintf(" are usually account %d", t.AccountID)
	}
	return reason
}
