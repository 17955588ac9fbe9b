package rules

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	err     error
	block   chan struct{}
	started chan struct{}
	rules   map[model.RulePool][]model.Rule
	calls   atomic.Int32
	mu      sync.Mutex
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{rules: make(map[model.RulePool][]model.Rule)}
}

func (f *fakeLoader) set(pool model.RulePool, rules ...model.Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pool] = rules
}

func (f *fakeLoader) GetActiveRules(ctx context.Context, pool model.RulePool) ([]model.Rule, error) {
	f.calls.Add(1)
	f.mu.Lock()
	rules := append([]model.Rule(nil), f.rules[pool]...)
	block, started, err := f.block, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rules, err
}

func rule(id int64, pattern string) model.Rule {
	return model.Rule{
		ID:       id,
		Target:   model.CategoryTarget{SubCategoryID: 1},
		Pattern:  pattern,
		Kind:     model.MatchContains,
		Priority: 5,
		IsActive: true,
	}
}

func TestStore_CachesWithinTTL(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := store.LoadActive(ctx, model.PoolCategory)
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	}
	assert.Equal(t, int32(1), loader.calls.Load())

	_, err := store.LoadActive(ctx, model.PoolAccount)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load(), "pools are cached independently")
}

func TestStore_RefetchesAfterTTL(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	store := NewStore(loader, pattern.DefaultScoring(), time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())

	now = now.Add(2 * time.Second)
	_, err = store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestStore_Invalidate(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)
	ctx := context.Background()

	_, err := store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)

	loader.set(model.PoolCategory, rule(1, "INDOMARET"), rule(2, "ALFAMART"))
	stale, err := store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)
	assert.Len(t, stale, 1, "cached until invalidated")

	store.Invalidate(model.PoolCategory)
	fresh, err := store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestStore_InvalidateDuringLoad(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "OLD"))
	block := make(chan struct{})
	loader.block = block
	loader.started = make(chan struct{}, 1)
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)
	ctx := context.Background()

	done := make(chan []model.Rule)
	go func() {
		rules, err := store.LoadActive(ctx, model.PoolCategory)
		assert.NoError(t, err)
		done <- rules
	}()

	<-loader.started
	// The in-flight read already fetched "OLD"; the rule changes and the
	// cache is invalidated before that read completes.
	loader.mu.Lock()
	loader.rules[model.PoolCategory] = []model.Rule{rule(1, "NEW")}
	loader.block = nil
	loader.started = nil
	loader.mu.Unlock()
	store.Invalidate(model.PoolCategory)
	close(block)

	inflight := <-done
	require.Len(t, inflight, 1)
	assert.Equal(t, "OLD", inflight[0].Pattern)

	next, err := store.LoadActive(ctx, model.PoolCategory)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "NEW", next[0].Pattern, "no stale read survives an invalidation")
}

func TestStore_ConcurrentReadersShareOneLoad(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	loader.block = make(chan struct{})
	loader.started = make(chan struct{}, 16)
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rules, err := store.LoadActive(ctx, model.PoolCategory)
			assert.NoError(t, err)
			assert.Len(t, rules, 1)
		}()
	}

	<-loader.started
	time.Sleep(20 * time.Millisecond)
	close(loader.block)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestStore_CanceledReaderDoesNotFailOthers(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	loader.block = make(chan struct{})
	loader.started = make(chan struct{}, 1)
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := store.LoadActive(ctxA, model.PoolCategory)
		errA <- err
	}()
	<-loader.started

	type result struct {
		rules []model.Rule
		err   error
	}
	doneB := make(chan result, 1)
	go func() {
		rules, err := store.LoadActive(context.Background(), model.PoolCategory)
		doneB <- result{rules, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(loader.block)
	b := <-doneB
	require.NoError(t, b.err)
	require.Len(t, b.rules, 1)
	assert.Equal(t, "INDOMARET", b.rules[0].Pattern)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestStore_LoadError(t *testing.T) {
	loader := newFakeLoader()
	loader.err = errors.New("database is locked")
	store := NewStore(loader, pattern.DefaultScoring(), time.Hour)

	_, err := store.LoadActive(context.Background(), model.PoolCategory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	_, err = store.Snapshot(context.Background(), model.RulePool("vendor"))
	assert.Error(t, err)
}

func TestStore_SnapshotMatcher(t *testing.T) {
	loader := newFakeLoader()
	loader.set(model.PoolCategory, rule(1, "INDOMARET"))
	store := NewStore(loader, pattern.DefaultScoring(), 0)

	snap, err := store.Snapshot(context.Background(), model.PoolCategory)
	require.NoError(t, err)
	result := snap.Matcher.Evaluate("PEMBAYARAN INDOMARET JAKARTA")
	require.True(t, result.Matched())
	assert.Equal(t, int64(1), result.Best.Rule.ID)
}
