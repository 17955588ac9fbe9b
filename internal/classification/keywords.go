// Package classification extracts candidate rule keywords from transaction
// descriptions.
package classification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// PatternKind groups keyword patterns by what they recognize.
type PatternKind string

// Pattern kinds, in the order the default library checks them.
const (
	KindRetail     PatternKind = "retail"
	KindPharmacy   PatternKind = "pharmacy"
	KindRestaurant PatternKind = "restaurant"
	KindTransport  PatternKind = "transport"
	KindUtility    PatternKind = "utility"
	KindEWallet    PatternKind = "ewallet"
	KindBank       PatternKind = "bank"
	KindTransfer   PatternKind = "transfer"
	KindGeneric    PatternKind = "generic"
)

// DefaultMaxKeywords caps the keywords extracted from one description.
const DefaultMaxKeywords = 5

// Pattern is one entry of the keyword library.
type Pattern struct {
	Name  string
	Kind  PatternKind
	Regex string
	// Priority orders the library; higher patterns are checked first.
	Priority int
	// CaseSensitive patterns are matched against the original description.
	CaseSensitive bool
	// Fallback patterns only run when no other pattern produced a keyword.
	Fallback bool
}

type compiledPattern struct {
	re *regexp.Regexp
	Pattern
}

// Keyword is a candidate rule pattern found in a description.
type Keyword struct {
	Text string
	Kind PatternKind
}

// KeywordExtractor finds candidate keywords using an ordered pattern library.
// It is immutable after construction and safe for concurrent use.
type KeywordExtractor struct {
	stopWords   map[string]bool
	patterns    []compiledPattern
	maxKeywords int
}

// NewKeywordExtractor compiles patterns. A non-positive maxKeywords uses
// DefaultMaxKeywords.
func NewKeywordExtractor(patterns []Pattern, maxKeywords int) (*KeywordExtractor, error) {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}

	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	stop := make(map[string]bool, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = true
	}

	return &KeywordExtractor{
		patterns:    compiled,
		stopWords:   stop,
		maxKeywords: maxKeywords,
	}, nil
}

// NewDefaultExtractor builds an extractor over DefaultPatterns.
func NewDefaultExtractor(maxKeywords int) *KeywordExtractor {
	x, err := NewKeywordExtractor(DefaultPatterns(), maxKeywords)
	if err != nil {
		panic(fmt.Sprintf("default keyword patterns must compile: %v", err))
	}
	return x
}

func compilePatterns(patterns []Pattern) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		expr := p.Regex
		if !p.CaseSensitive && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}
		compiled = append(compiled, compiledPattern{Pattern: p, re: re})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return compiled, nil
}

// Extract returns the distinct keywords of description, highest priority
// pattern first and in order of appearance within a pattern. Stop-words are
// dropped and at most maxKeywords are returned.
func (x *KeywordExtractor) Extract(description string) []Keyword {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil
	}

	var keywords []Keyword
	seen := make(map[string]bool)
	add := func(p compiledPattern) bool {
		for _, m := range p.re.FindAllString(description, -1) {
			text := x.normalize(m)
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			keywords = append(keywords, Keyword{Text: text, Kind: p.Kind})
			if len(keywords) == x.maxKeywords {
				return true
			}
		}
		return false
	}

	for _, p := range x.patterns {
		if p.Fallback {
			continue
		}
		if add(p) {
			return keywords
		}
	}
	if len(keywords) > 0 {
		return keywords
	}
	for _, p := range x.patterns {
		if p.Fallback && add(p) {
			break
		}
	}
	return keywords
}

// Keywords is Extract without the pattern kinds.
func (x *KeywordExtractor) Keywords(description string) []string {
	found := x.Extract(description)
	out := make([]string, len(found))
	for i, k := range found {
		out[i] = k.Text
	}
	return out
}

// normalize upper-cases a match, collapses whitespace and trims stop-words
// from both ends. An empty result means the match carried no signal.
func (x *KeywordExtractor) normalize(match string) string {
	words := strings.Fields(strings.ToUpper(match))
	for len(words) > 0 && x.isNoise(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && x.isNoise(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	text := strings.Join(words, " ")
	if len([]rune(text)) < 2 {
		return ""
	}
	return text
}

func (x *KeywordExtractor) isNoise(word string) bool {
	if x.stopWords[word] {
		return true
	}
	return strings.IndexFunc(word, func(r rune) bool { return !unicode.IsDigit(r) && !unicode.IsPunct(r) }) < 0
}

// Confidence is how strongly a keyword of this kind identifies a payee, on
// the 0..100 scale used by suggested rules.
func (k PatternKind) Confidence() int {
	switch k {
	case KindRetail, KindPharmacy, KindRestaurant, KindTransport, KindUtility, KindEWallet:
		return 95
	case KindBank:
		return 85
	case KindGeneric:
		return 75
	case KindTransfer:
		return 60
	}
	return 50
}
