// Package feedback turns verification outcomes and manual corrections into
// rule priority changes and suggested rules.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-classifier/internal/classification"
	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/rules"
	"github.com/Veraticus/spice-classifier/internal/service"
)

// Config holds the promotion thresholds.
type Config struct {
	MinConfidence   int
	MinOccurrences  int
	DefaultPriority int
}

// DefaultConfig returns the default promotion thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   90,
		MinOccurrences:  5,
		DefaultPriority: 5,
	}
}

// Service is the learning loop. It is the only writer of rule priority
// besides explicit rule edits.
type Service struct {
	storage   service.Storage
	cache     rules.Invalidator
	stats     engine.StatisticsInvalidator
	extractor *classification.KeywordExtractor
	now       func() time.Time
	config    Config
}

// New creates a feedback service. stats may be nil.
func New(storage service.Storage, cache rules.Invalidator, stats engine.StatisticsInvalidator, extractor *classification.KeywordExtractor, config Config) *Service {
	def := DefaultConfig()
	if config.MinConfidence <= 0 {
		config.MinConfidence = def.MinConfidence
	}
	if config.MinOccurrences <= 0 {
		config.MinOccurrences = def.MinOccurrences
	}
	if config.DefaultPriority < model.MinPriority || config.DefaultPriority > model.MaxPriority {
		config.DefaultPriority = def.DefaultPriority
	}
	return &Service{
		storage:   storage,
		cache:     cache,
		stats:     stats,
		extractor: extractor,
		now:       time.Now,
		config:    config,
	}
}

// OutcomeResult describes what an outcome did to a rule.
type OutcomeResult struct {
	Rule             *model.Rule
	PreviousPriority int
	// Changed is false when clamping left the rule untouched and nothing
	// was written.
	Changed bool
}

// ApplyOutcome adjusts a rule according to a verification outcome. Priority
// stays within 1..10; an adjustment the clamp swallows entirely is a no-op.
func (s *Service) ApplyOutcome(ctx context.Context, ruleID int64, outcome model.Outcome) (*OutcomeResult, error) {
	var result *OutcomeResult
	err := s.inTx(ctx, func(tx service.Transaction) error {
		var err error
		result, err = s.applyOutcome(ctx, tx, ruleID, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		s.invalidate(result.Rule.Pool())
	}
	return result, nil
}

func (s *Service) applyOutcome(ctx context.Context, repo service.Repositories, ruleID int64, outcome model.Outcome) (*OutcomeResult, error) {
	adj, err := outcome.Adjustment()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidOutcome, err)
	}

	rule, err := repo.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", ruleID, err)
	}
	if rule.IsDeleted {
		return nil, fmt.Errorf("rule %d is retired: %w", ruleID, common.ErrNotFound)
	}

	result := &OutcomeResult{Rule: rule, PreviousPriority: rule.Priority}
	priority := model.ClampPriority(rule.Priority + adj.PriorityDelta)
	if priority == rule.Priority && !adj.CountsAsMatch {
		return result, nil
	}

	at := s.now().UTC()
	if err := repo.ApplyRuleFeedback(ctx, ruleID, priority, adj.CountsAsMatch, at); err != nil {
		return nil, fmt.Errorf("failed to apply %s to rule %d: %w", outcome, ruleID, err)
	}

	rule.Priority = priority
	if adj.CountsAsMatch {
		rule.MatchCount++
		rule.LastMatchedAt = &at
	}
	result.Changed = true

	slog.Info("Applied rule feedback",
		"rule_id", ruleID,
		"outcome", outcome,
		"previous_priority", result.PreviousPriority,
		"priority", priority,
		"match_count", rule.MatchCount)
	return result, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("Failed to roll back feedback", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback: %w", err)
	}
	return nil
}

func (s *Service) invalidate(pools ...model.RulePool) {
	for _, pool := range pools {
		s.cache.Invalidate(pool)
	}
}

func (s *Service) invalidateStatistics() {
	if s.stats != nil {
		s.stats.InvalidateStatistics()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
