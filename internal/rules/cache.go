// Package rules provides the rule store cache and rule management.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a loaded rule snapshot is served before refetching.
const DefaultTTL = time.Hour

// DefaultLoadTimeout bounds one shared rule load.
const DefaultLoadTimeout = 30 * time.Second

// Loader fetches the active rules of a pool in evaluation order.
type Loader interface {
	GetActiveRules(ctx context.Context, pool model.RulePool) ([]model.Rule, error)
}

// Invalidator is the hook every rule-mutating path must call.
type Invalidator interface {
	Invalidate(pool model.RulePool)
}

// Snapshot is an immutable view of a pool's active rules together with a
// matcher compiled from them.
type Snapshot struct {
	LoadedAt time.Time
	Matcher  *pattern.Matcher
	Pool     model.RulePool
}

// Rules returns a copy of the snapshot's rules in evaluation order.
func (s *Snapshot) Rules() []model.Rule {
	return s.Matcher.Rules()
}

type poolState struct {
	snapshot   *Snapshot
	generation uint64
}

// Store is a read-through cache of active rules, one snapshot per pool.
// Readers share snapshots; a refresh or invalidation replaces the whole
// snapshot, never patches it.
type Store struct {
	loader  Loader
	now     func() time.Time
	pools   map[model.RulePool]*poolState
	group   singleflight.Group
	scoring pattern.Scoring
	ttl     time.Duration
	// loadTimeout bounds a shared refresh.
	loadTimeout time.Duration
	mu          sync.RWMutex
}

var _ Invalidator = (*Store)(nil)

// NewStore creates a rule store. A zero ttl uses DefaultTTL.
func NewStore(loader Loader, scoring pattern.Scoring, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	pools := make(map[model.RulePool]*poolState, len(model.Pools))
	for _, pool := range model.Pools {
		pools[pool] = &poolState{}
	}

	return &Store{
		loader:  loader,
		scoring: scoring,
		ttl:     ttl,
		now:     time.Now,
		pools:   pools,

		loadTimeout: DefaultLoadTimeout,
	}
}

// Snapshot returns the current snapshot for pool, loading it when it is
// missing, expired or invalidated. Concurrent loads of the same generation
// are collapsed into one query.
func (s *Store) Snapshot(ctx context.Context, pool model.RulePool) (*Snapshot, error) {
	if !pool.Valid() {
		return nil, fmt.Errorf("unknown rule pool %q", pool)
	}

	s.mu.RLock()
	state := s.pools[pool]
	snap, generation := state.snapshot, state.generation
	s.mu.RUnlock()

	if snap != nil && s.now().Sub(snap.LoadedAt) < s.ttl {
		return snap, nil
	}

	// The load is shared by every caller of this generation, so it runs
	// detached from any one caller's cancellation; each caller still stops
	// waiting when its own ctx ends.
	key := fmt.Sprintf("%s/%d", pool, generation)
	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.refresh(loadCtx, pool, generation)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadActive returns the active rules of a pool, ordered by priority
// descending then creation order.
func (s *Store) LoadActive(ctx context.Context, pool model.RulePool) ([]model.Rule, error) {
	snap, err := s.Snapshot(ctx, pool)
	if err != nil {
		return nil, err
	}
	return snap.Rules(), nil
}

func (s *Store) refresh(ctx context.Context, pool model.RulePool, generation uint64) (*Snapshot, error) {
	rules, err := s.loader.GetActiveRules(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", pool, err)
	}

	snap := &Snapshot{
		Pool:     pool,
		Matcher:  pattern.NewMatcher(rules, s.scoring),
		LoadedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An invalidation during the load makes this result stale for later
	// readers; it is still returned to the callers that asked before it.
	state := s.pools[pool]
	if state.generation == generation {
		state.snapshot = snap
	}

	slog.Debug("loaded rule snapshot",
		"pool", pool,
		"rules", len(rules),
		"generation", generation)
	return snap, nil
}

// Invalidate drops the cached snapshot for pool so the next read refetches.
func (s *Store) Invalidate(pool model.RulePool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[pool]
	if !ok {
		return
	}
	state.generation++
	state.snapshot = nil

	slog.Debug("invalidated rule cache", "pool", pool, "generation", state.generation)
}
