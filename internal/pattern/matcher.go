package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

var _ Evaluator = (*Matcher)(nil)

type compiledRule struct {
	re      *regexp.Regexp
	rule    model.Rule
	invalid bool
}

// Matcher evaluates descriptions against an ordered rule list. It is
// immutable after construction and safe for concurrent use.
type Matcher struct {
	rules   []compiledRule
	scoring Scoring
}

// NewMatcher creates a matcher over rules, which must already be ordered by
// priority descending then creation order. Regex patterns are compiled once;
// a malformed pattern is logged and the rule never matches.
func NewMatcher(rules []model.Rule, scoring Scoring) *Matcher {
	m := &Matcher{
		rules:   make([]compiledRule, 0, len(rules)),
		scoring: scoring,
	}

	for _, rule := range rules {
		cr := compiledRule{rule: rule}
		if rule.Kind == model.MatchRegex {
			re, ok := common.CompileRegex(rule.Pattern, rule.CaseSensitive)
			if ok {
				cr.re = re
			} else {
				cr.invalid = true
				slog.Warn("skipping rule with invalid regex",
					"rule_id", rule.ID,
					"pattern", rule.Pattern)
			}
		}
		m.rules = append(m.rules, cr)
	}

	return m
}

// Len returns the number of rules the matcher evaluates.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Rules returns a copy of the rules in evaluation order.
func (m *Matcher) Rules() []model.Rule {
	out := make([]model.Rule, len(m.rules))
	for i, cr := range m.rules {
		out[i] = cr.rule
	}
	return out
}

// Evaluate tests every rule against text. A later rule replaces the current
// best only with a strictly greater score, so ties go to the earlier rule.
func (m *Matcher) Evaluate(text string) MatchResult {
	result := MatchResult{Evaluations: make([]Evaluation, len(m.rules))}
	best := -1

	for i := range m.rules {
		cr := &m.rules[i]
		eval := Evaluation{Rule: cr.rule}

		switch {
		case cr.invalid:
			eval.Reason = "invalid regex pattern, rule skipped"
		default:
			if matched, ok := cr.match(text); ok {
				eval.Matched = true
				eval.MatchedText = matched
				eval.Score = m.scoring.Score(&cr.rule, text, matched)
				eval.Reason = fmt.Sprintf("%s match on %q at priority %d", cr.rule.Kind, matched, cr.rule.Priority)
			} else {
				eval.Reason = fmt.Sprintf("no %s match for %q", cr.rule.Kind, cr.rule.Pattern)
			}
		}

		result.Evaluations[i] = eval
		if eval.Matched && (best < 0 || eval.Score > result.Evaluations[best].Score) {
			best = i
		}
	}

	if best >= 0 {
		result.Best = &result.Evaluations[best]
		slog.Debug("rule matched",
			"rule_id", result.Best.Rule.ID,
			"score", result.Best.Score,
			"evaluated", len(m.rules))
	}
	return result
}

// match applies the rule's match kind and returns the matched slice of text
// in its original case.
func (cr *compiledRule) match(text string) (string, bool) {
	rule := &cr.rule
	pattern := rule.Pattern

	switch rule.Kind {
	case model.MatchExact:
		trimmed := strings.TrimSpace(text)
		if equal(trimmed, strings.TrimSpace(pattern), rule.CaseSensitive) {
			return trimmed, true
		}
	case model.MatchContains:
		if start, end := index(text, pattern, rule.CaseSensitive); start >= 0 {
			return text[start:end], true
		}
	case model.MatchStartsWith:
		if end := runePrefix(text, utf8.RuneCountInString(pattern)); end >= 0 && equal(text[:end], pattern, rule.CaseSensitive) {
			return text[:end], true
		}
	case model.MatchEndsWith:
		if start := runeSuffix(text, utf8.RuneCountInString(pattern)); start >= 0 && equal(text[start:], pattern, rule.CaseSensitive) {
			return text[start:], true
		}
	case model.MatchRegex:
		if cr.re == nil {
			return "", false
		}
		if loc := cr.re.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], true
		}
	}
	return "", false
}

func equal(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// index is strings.Index with optional case folding. It returns the byte
// span of the match in s, or -1, -1. Folded runes may differ in UTF-8 width
// from the pattern's, so candidates are measured in runes.
func index(s, substr string, caseSensitive bool) (int, int) {
	if caseSensitive {
		i := strings.Index(s, substr)
		if i < 0 {
			return -1, -1
		}
		return i, i + len(substr)
	}
	if substr == "" {
		return 0, 0
	}

	n := utf8.RuneCountInString(substr)
	for i := 0; i < len(s); {
		end := runePrefix(s[i:], n)
		if end < 0 {
			break
		}
		if strings.EqualFold(s[i:i+end], substr) {
			return i, i + end
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, -1
}

// runePrefix returns the byte length of the first n runes of s, or -1 when
// s is shorter.
func runePrefix(s string, n int) int {
	i := 0
	for ; n > 0; n-- {
		if i >= len(s) {
			return -1
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

// runeSuffix returns the byte offset where the last n runes of s start, or
// -1 when s is shorter.
func runeSuffix(s string, n int) int {
	i := len(s)
	for ; n > 0; n-- {
		if i <= 0 {
			return -1
		}
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return i
}
