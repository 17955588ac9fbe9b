// Package suggest mines candidate rules from groups of unmatched transactions.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/Veraticus/spice-classifier/internal/classification"
	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

// Frequency is a coarse bucket for how often a keyword recurs.
type Frequency string

// Frequency buckets, least to most frequent.
const (
	FrequencyRare         Frequency = "rare"
	FrequencyOccasional   Frequency = "occasional"
	FrequencyRegular      Frequency = "regular"
	FrequencyFrequent     Frequency = "frequent"
	FrequencyVeryFrequent Frequency = "very_frequent"
)

var frequencyRank = map[Frequency]int{
	FrequencyRare:         0,
	FrequencyOccasional:   1,
	FrequencyRegular:      2,
	FrequencyFrequent:     3,
	FrequencyVeryFrequent: 4,
}

// FrequencyOf buckets a group size.
func FrequencyOf(count int) Frequency {
	switch {
	case count >= 20:
		return FrequencyVeryFrequent
	case count >= 10:
		return FrequencyFrequent
	case count >= 5:
		return FrequencyRegular
	case count >= 2:
		return FrequencyOccasional
	}
	return FrequencyRare
}

// SortBy selects the order of mined suggestions.
type SortBy string

// Sort orders. Every order is descending.
const (
	SortByCount     SortBy = "count"
	SortByAmount    SortBy = "amount"
	SortByFrequency SortBy = "frequency"
)

// ParseSortBy validates a sort order name; empty means SortByCount.
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(s)) {
	case "", SortByCount:
		return SortByCount, nil
	case SortByAmount:
		return SortByAmount, nil
	case SortByFrequency:
		return SortByFrequency, nil
	}
	return "", fmt.Errorf("%w: unknown sort order %q", common.ErrInvalidInput, s)
}

// Filters narrows and orders one analysis run.
type Filters struct {
	SortBy SortBy
	// MinFrequency overrides the miner's minimum group size when positive.
	MinFrequency int
	// Limit caps the number of suggestions when positive.
	Limit int
}

// Suggestion is a keyword shared by a group of unmatched transactions.
type Suggestion struct {
	Keyword            string                     `json:"keyword"`
	Kind               classification.PatternKind `json:"kind"`
	Frequency          Frequency                  `json:"frequency"`
	TransactionIDs     []int64                    `json:"transaction_ids"`
	SampleDescriptions []string                   `json:"sample_descriptions"`
	TotalAmount        decimal.Decimal            `json:"total_amount"`
	AverageAmount      decimal.Decimal            `json:"average_amount"`
	Count              int                        `json:"count"`
}

// TransactionSource supplies the transactions no rule has matched.
type TransactionSource interface {
	GetUnmatchedTransactions(ctx context.Context, statementID int64) ([]model.Transaction, error)
}

// Config configures a Miner.
type Config struct {
	MinFrequency        int
	SimilarityThreshold float64
}

// DefaultConfig returns the default miner configuration.
func DefaultConfig() Config {
	return Config{MinFrequency: 2, SimilarityThreshold: 0.70}
}

// Miner groups unmatched transactions by shared keywords.
type Miner struct {
	source    TransactionSource
	extractor *classification.KeywordExtractor
	config    Config
}

const maxSamples = 3

// NewMiner creates a miner.
func NewMiner(source TransactionSource, extractor *classification.KeywordExtractor, config Config) *Miner {
	if config.MinFrequency < 1 {
		config.MinFrequency = DefaultConfig().MinFrequency
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	return &Miner{source: source, extractor: extractor, config: config}
}

// Analyze mines suggestions from the unmatched transactions of a statement,
// or of every statement when statementID is 0.
func (m *Miner) Analyze(ctx context.Context, statementID int64, filters Filters) ([]Suggestion, error) {
	txns, err := m.source.GetUnmatchedTransactions(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unmatched transactions: %w", err)
	}

	minFrequency := m.config.MinFrequency
	if filters.MinFrequency > 0 {
		minFrequency = filters.MinFrequency
	}

	suggestions := m.group(txns, minFrequency)
	Sort(suggestions, filters.SortBy)
	if filters.Limit > 0 && len(suggestions) > filters.Limit {
		suggestions = suggestions[:filters.Limit]
	}

	slog.Debug("Mined rule suggestions",
		"statement_id", statementID,
		"unmatched", len(txns),
		"suggestions", len(suggestions))
	return suggestions, nil
}

func (m *Miner) group(txns []model.Transaction, minFrequency int) []Suggestion {
	keywords := make([][]classification.Keyword, len(txns))
	for i := range txns {
		keywords[i] = m.extractor.Extract(txns[i].Description)
	}

	var (
		suggestions []Suggestion
		processed   []string
	)
	emitted := make(map[string]bool)

	for i := range txns {
		desc := strings.ToUpper(strings.TrimSpace(txns[i].Description))
		if m.similarToAny(desc, processed) {
			continue
		}
		processed = append(processed, desc)

		if len(keywords[i]) == 0 {
			continue
		}
		best := bestKeyword(keywords[i])
		if emitted[best.Text] {
			continue
		}

		members := make([]int, 0, 4)
		for j := range txns {
			if sharesKeyword(keywords[i], keywords[j]) {
				members = append(members, j)
			}
		}
		if len(members) < minFrequency {
			continue
		}

		emitted[best.Text] = true
		suggestions = append(suggestions, newSuggestion(best, txns, members))
	}
	return suggestions
}

// similarToAny reports whether desc is a near duplicate of a description
// already handled in this run.
func (m *Miner) similarToAny(desc string, processed []string) bool {
	a := []rune(desc)
	for _, p := range processed {
		if levenshtein.RatioForStrings(a, []rune(p), levenshtein.DefaultOptions) > m.config.SimilarityThreshold {
			return true
		}
	}
	return false
}

// bestKeyword prefers the candidate with the most words, then the longest.
func bestKeyword(candidates []classification.Keyword) classification.Keyword {
	best := candidates[0]
	for _, k := range candidates[1:] {
		words, bestWords := len(strings.Fields(k.Text)), len(strings.Fields(best.Text))
		if words > bestWords || (words == bestWords && len(k.Text) > len(best.Text)) {
			best = k
		}
	}
	return best
}

func sharesKeyword(a, b []classification.Keyword) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Text == y.Text {
				return true
			}
		}
	}
	return false
}

func newSuggestion(best classification.Keyword, txns []model.Transaction, members []int) Suggestion {
	s := Suggestion{
		Keyword:        best.Text,
		Kind:           best.Kind,
		Count:          len(members),
		Frequency:      FrequencyOf(len(members)),
		TransactionIDs: make([]int64, 0, len(members)),
		TotalAmount:    decimal.Zero,
	}
	for _, idx := range members {
		txn := &txns[idx]
		s.TransactionIDs = append(s.TransactionIDs, txn.ID)
		s.TotalAmount = s.TotalAmount.Add(txn.Amount())
		if len(s.SampleDescriptions) < maxSamples {
			s.SampleDescriptions = append(s.SampleDescriptions, txn.Description)
		}
	}
	s.AverageAmount = s.TotalAmount.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
	return s
}

// Sort orders suggestions in place, largest first. Ties fall back to count,
// then total amount, then keyword.
func Sort(suggestions []Suggestion, by SortBy) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		switch by {
		case SortByAmount:
			if c := a.TotalAmount.Cmp(b.TotalAmount); c != 0 {
				return c > 0
			}
		case SortByFrequency:
			if ra, rb := frequencyRank[a.Frequency], frequencyRank[b.Frequency]; ra != rb {
				return ra > rb
			}
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if c := a.TotalAmount.Cmp(b.TotalAmount); c != 0 {
			return c > 0
		}
		return a.Keyword < b.Keyword
	})
}
