package pattern

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/spice-classifier/internal/model"
)

// MaxScore is the confidence of an exact whole-description match.
const MaxScore = 100

// Scoring holds the confidence formula constants. Its fields mirror
// config.Scoring so a loaded configuration converts directly.
type Scoring struct {
	Base               float64
	PriorityWeight     float64
	ExactBonus         float64
	RegexBonus         float64
	AffixBonus         float64
	ContainsBonus      float64
	CaseSensitiveBonus float64
	LengthDivisor      float64
	MaxLengthBonus     float64
	RegexPenalty       float64
}

// DefaultScoring returns the stock scoring constants.
func DefaultScoring() Scoring {
	return Scoring{
		Base:               50,
		PriorityWeight:     30,
		ExactBonus:         20,
		RegexBonus:         15,
		AffixBonus:         10,
		ContainsBonus:      5,
		CaseSensitiveBonus: 5,
		LengthDivisor:      5,
		MaxLengthBonus:     10,
		RegexPenalty:       5,
	}
}

func (s Scoring) kindBonus(kind model.MatchKind) float64 {
	switch kind {
	case model.MatchExact:
		return s.ExactBonus
	case model.MatchRegex:
		return s.RegexBonus
	case model.MatchStartsWith, model.MatchEndsWith:
		return s.AffixBonus
	case model.MatchContains:
		return s.ContainsBonus
	}
	return 0
}

// Score computes the confidence of a positive match, in [0, 100].
func (s Scoring) Score(rule *model.Rule, text, matched string) int {
	if strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(matched)) {
		return MaxScore
	}

	score := s.Base
	score += float64(rule.Priority) / 10 * s.PriorityWeight
	score += s.kindBonus(rule.Kind)
	if rule.CaseSensitive {
		score += s.CaseSensitiveBonus
	}
	if s.LengthDivisor > 0 {
		score += math.Min(float64(utf8.RuneCountInString(matched))/s.LengthDivisor, s.MaxLengthBonus)
	}
	if rule.Kind == model.MatchRegex {
		score -= s.RegexPenalty
	}

	// The epsilon absorbs float noise such as 0.8*30 = 24.000000000000004.
	return clampScore(int(math.Floor(score + 1e-9)))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
