package model

import (
	"sort"
	"time"
)

// MatchingLog is one append-only audit row for a rule evaluated during a matching attempt.
type MatchingLog struct {
	CreatedAt        time.Time
	AttemptID        string
	Pool             RulePool
	MatchedText      string
	Reason           string
	ID               int64
	TransactionID    int64
	RuleID           int64
	Score            int
	PrioritySnapshot int
	Matched          bool
	Selected         bool
}

// Alternative is a rule that matched a transaction but was not selected.
type Alternative struct {
	Target      RuleTarget
	MatchedText string
	Reason      string
	RuleID      int64
	Score       int
	Priority    int
}

// Alternatives is a slice of Alternative ordered best first.
type Alternatives []Alternative

// Len implements sort.Interface.
func (a Alternatives) Len() int { return len(a) }

// Less implements sort.Interface - higher scores first, then higher priority, then lower rule id.
func (a Alternatives) Less(i, j int) bool {
	if a[i].Score != a[j].Score {
		return a[i].Score > a[j].Score
	}
	if a[i].Priority != a[j].Priority {
		return a[i].Priority > a[j].Priority
	}
	return a[i].RuleID < a[j].RuleID
}

// Swap implements sort.Interface.
func (a Alternatives) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

// Sort orders the alternatives best first.
func (a Alternatives) Sort() { sort.Stable(a) }

// TopN returns at most n alternatives, best first.
func (a Alternatives) TopN(n int) Alternatives {
	if n <= 0 {
		return Alternatives{}
	}
	a.Sort()
	if n > len(a) {
		n = len(a)
	}
	out := make(Alternatives, n)
	copy(out, a[:n])
	return out
}
