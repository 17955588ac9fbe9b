// Package engine implements the core classification engine for categorizing transactions.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/service"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
)

// ClassificationEngine matches transactions against the cached rule sets and
// persists the results with their audit trail.
type ClassificationEngine struct {
	storage        service.Storage
	rules          RuleSource
	stats          *ristretto.Cache[string, *model.Statistics]
	statsMu        sync.Mutex
	statsGen       uint64
	now            func() time.Time
	newAttemptID   func() string
	statsTTL       time.Duration
	highConfidence int
}

var _ StatisticsInvalidator = (*ClassificationEngine)(nil)

// Config holds configuration options for the classification engine.
type Config struct {
	HighConfidence int
	StatsTTL       time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HighConfidence: 80,
		StatsTTL:       5 * time.Minute,
	}
}

// New creates a new classification engine.
func New(storage service.Storage, rules RuleSource, config Config) (*ClassificationEngine, error) {
	if config.HighConfidence <= 0 {
		config.HighConfidence = DefaultConfig().HighConfidence
	}
	if config.StatsTTL <= 0 {
		config.StatsTTL = DefaultConfig().StatsTTL
	}

	stats, err := ristretto.NewCache(&ristretto.Config[string, *model.Statistics]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create statistics cache: %w", err)
	}

	return &ClassificationEngine{
		storage:        storage,
		rules:          rules,
		stats:          stats,
		now:            time.Now,
		newAttemptID:   uuid.NewString,
		statsTTL:       config.StatsTTL,
		highConfidence: config.HighConfidence,
	}, nil
}

// Close releases the statistics cache.
func (e *ClassificationEngine) Close() {
	e.stats.Close()
}

// Options configures a classification run.
type Options struct {
	// OnProgress, if set, is called after each transaction is processed.
	OnProgress func(done, total int)
	// Force re-matches transactions that already carry an automatic or
	// manual assignment.
	Force bool
}

func (o Options) progress(done, total int) {
	if o.OnProgress != nil {
		o.OnProgress(done, total)
	}
}

// Summary contains statistics about a classification run.
type Summary struct {
	Pool           model.RulePool `json:"pool"`
	StatementID    int64          `json:"statement_id"`
	Total          int            `json:"total"`
	Matched        int            `json:"matched"`
	Unmatched      int            `json:"unmatched"`
	HighConfidence int            `json:"high_confidence"`
	LowConfidence  int            `json:"low_confidence"`
	Errors         int            `json:"errors"`
	AuditFailures  int            `json:"audit_failures"`
	Duration       time.Duration  `json:"-"`
}

func (s *Summary) record(score int, highConfidence int) {
	s.Matched++
	if score >= highConfidence {
		s.HighConfidence++
	} else {
		s.LowConfidence++
	}
}
