package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

// Repository is the persistence a Manager needs.
type Repository interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	ListRules(ctx context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) error
	SetRulePriority(ctx context.Context, id int64, priority int) error
	RetireRule(ctx context.Context, id int64) error
}

// Manager performs rule CRUD and keeps the rule store coherent by
// invalidating the affected pool after every mutation.
type Manager struct {
	repo  Repository
	cache Invalidator
}

// NewManager creates a rule manager.
func NewManager(repo Repository, cache Invalidator) *Manager {
	return &Manager{repo: repo, cache: cache}
}

// Validate checks a rule before it is stored. Regex patterns must compile.
func Validate(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", common.ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRule, err)
	}
	if rule.Kind == model.MatchRegex {
		if _, ok := common.CompileRegex(rule.Pattern, rule.CaseSensitive); !ok {
			return fmt.Errorf("%w: pattern %q is not a valid regular expression", common.ErrInvalidRule, rule.Pattern)
		}
	}
	return nil
}

// Create stores a new rule.
func (m *Manager) Create(ctx context.Context, rule *model.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	if err := m.repo.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	m.cache.Invalidate(rule.Pool())

	slog.Info("created rule",
		"rule_id", rule.ID,
		"pool", rule.Pool(),
		"pattern", rule.Pattern,
		"priority", rule.Priority)
	return nil
}

// Update rewrites a rule's pattern, kind, target, priority and active flag.
func (m *Manager) Update(ctx context.Context, rule *model.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	existing, err := m.repo.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	if err := m.repo.UpdateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	m.cache.Invalidate(existing.Pool())
	if rule.Pool() != existing.Pool() {
		m.cache.Invalidate(rule.Pool())
	}

	slog.Info("updated rule", "rule_id", rule.ID, "pool", rule.Pool())
	return nil
}

// SetActive activates or deactivates a rule.
func (m *Manager) SetActive(ctx context.Context, id int64, active bool) error {
	return m.mutate(ctx, id, "set rule active", func() error {
		return m.repo.SetRuleActive(ctx, id, active)
	})
}

// SetPriority sets a rule's priority, which must be within 1..10.
func (m *Manager) SetPriority(ctx context.Context, id int64, priority int) error {
	if priority < model.MinPriority || priority > model.MaxPriority {
		return fmt.Errorf("%w: %d is outside %d..%d", common.ErrInvalidPriority, priority, model.MinPriority, model.MaxPriority)
	}
	return m.mutate(ctx, id, "set rule priority", func() error {
		return m.repo.SetRulePriority(ctx, id, priority)
	})
}

// Retire soft-deletes a rule. Its matching history is kept.
func (m *Manager) Retire(ctx context.Context, id int64) error {
	return m.mutate(ctx, id, "retire rule", func() error {
		return m.repo.RetireRule(ctx, id)
	})
}

// Get returns a rule by ID.
func (m *Manager) Get(ctx context.Context, id int64) (*model.Rule, error) {
	return m.repo.GetRule(ctx, id)
}

// List returns the non-retired rules of a pool.
func (m *Manager) List(ctx context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error) {
	if !pool.Valid() {
		return nil, fmt.Errorf("%w: unknown pool %q", common.ErrInvalidInput, pool)
	}
	return m.repo.ListRules(ctx, pool, includeInactive)
}

func (m *Manager) mutate(ctx context.Context, id int64, action string, fn func() error) error {
	rule, err := m.repo.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	m.cache.Invalidate(rule.Pool())

	slog.Info(action, "rule_id", id, "pool", rule.Pool())
	return nil
}
