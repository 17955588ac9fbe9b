// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"
)

// RulePool identifies which classification pipeline a rule belongs to.
type RulePool string

// Rule pools.
const (
	PoolCategory RulePool = "category"
	PoolAccount  RulePool = "account"
)

// Pools lists every rule pool in a stable order.
var Pools = []RulePool{PoolCategory, PoolAccount}

// Valid reports whether p is a known pool.
func (p RulePool) Valid() bool {
	return p == PoolCategory || p == PoolAccount
}

// MatchKind controls how a rule's pattern is compared against a description.
type MatchKind string

// Match kinds.
const (
	MatchExact      MatchKind = "exact"
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "starts_with"
	MatchEndsWith   MatchKind = "ends_with"
	MatchRegex      MatchKind = "regex"
)

// Valid reports whether k is a known match kind.
func (k MatchKind) Valid() bool {
	switch k {
	case MatchExact, MatchContains, MatchStartsWith, MatchEndsWith, MatchRegex:
		return true
	}
	return false
}

// Priority bounds.
const (
	MinPriority = 1
	MaxPriority = 10
)

// ClampPriority keeps p within [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// RuleTarget is what a matched rule assigns: either a sub-category or an account.
// The set of implementations is closed.
type RuleTarget interface {
	Pool() RulePool
	ID() int64
	isRuleTarget()
}

// CategoryTarget points a rule at a sub-category leaf.
type CategoryTarget struct {
	SubCategoryID int64
}

// Pool implements RuleTarget.
func (CategoryTarget) Pool() RulePool { return PoolCategory }

// ID implements RuleTarget.
func (t CategoryTarget) ID() int64 { return t.SubCategoryID }

func (CategoryTarget) isRuleTarget() {}

// AccountTarget points a rule at a ledger account.
type AccountTarget struct {
	AccountID int64
}

// Pool implements RuleTarget.
func (AccountTarget) Pool() RulePool { return PoolAccount }

// ID implements RuleTarget.
func (t AccountTarget) ID() int64 { return t.AccountID }

func (AccountTarget) isRuleTarget() {}

// NewTarget builds the target matching pool.
func NewTarget(pool RulePool, id int64) (RuleTarget, error) {
	switch pool {
	case PoolCategory:
		return CategoryTarget{SubCategoryID: id}, nil
	case PoolAccount:
		return AccountTarget{AccountID: id}, nil
	}
	return nil, fmt.Errorf("unknown rule pool %q", pool)
}

// Rule is a stored keyword pattern that maps descriptions to a target.
type Rule struct {
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	Target        RuleTarget `json:"-"`
	Pattern       string     `json:"pattern"`
	Kind          MatchKind  `json:"match_kind"`
	ID            int64      `json:"id"`
	Priority      int        `json:"priority"`
	MatchCount    int        `json:"match_count"`
	CaseSensitive bool       `json:"case_sensitive"`
	IsActive      bool       `json:"is_active"`
	IsDeleted     bool       `json:"is_deleted"`
	IsAutoCreated bool       `json:"is_auto_created"`
}

// Pool returns the pool of the rule's target.
func (r *Rule) Pool() RulePool {
	if r.Target == nil {
		return ""
	}
	return r.Target.Pool()
}

// Validate checks the structural invariants of a rule. Regex compilation is
// checked by the caller because an invalid pattern is recoverable at match time.
func (r *Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid match kind %q", r.Kind)
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d, got %d", MinPriority, MaxPriority, r.Priority)
	}
	if r.Target == nil {
		return fmt.Errorf("target is required")
	}
	if r.Target.ID() <= 0 {
		return fmt.Errorf("target id must be positive")
	}
	return nil
}
