package rules

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	pools []model.RulePool
}

func (r *recordingInvalidator) Invalidate(pool model.RulePool) {
	r.pools = append(r.pools, pool)
}

type memoryRepo struct {
	rules  map[int64]*model.Rule
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rules: make(map[int64]*model.Rule)}
}

func (m *memoryRepo) CreateRule(_ context.Context, r *model.Rule) error {
	m.nextID++
	r.ID = m.nextID
	stored := *r
	m.rules[r.ID] = &stored
	return nil
}

func (m *memoryRepo) GetRule(_ context.Context, id int64) (*model.Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *memoryRepo) UpdateRule(_ context.Context, r *model.Rule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return common.ErrNotFound
	}
	stored := *r
	m.rules[r.ID] = &stored
	return nil
}

func (m *memoryRepo) ListRules(_ context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error) {
	var out []model.Rule
	for id := int64(1); id <= m.nextID; id++ {
		r, ok := m.rules[id]
		if !ok || r.IsDeleted || r.Pool() != pool || (!includeInactive && !r.IsActive) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *memoryRepo) SetRuleActive(_ context.Context, id int64, active bool) error {
	m.rules[id].IsActive = active
	return nil
}

func (m *memoryRepo) SetRulePriority(_ context.Context, id int64, priority int) error {
	m.rules[id].Priority = priority
	return nil
}

func (m *memoryRepo) RetireRule(_ context.Context, id int64) error {
	m.rules[id].IsDeleted = true
	m.rules[id].IsActive = false
	return nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		rule    *model.Rule
		name    string
		wantErr bool
	}{
		{name: "valid contains", rule: &model.Rule{Target: model.CategoryTarget{SubCategoryID: 1}, Pattern: "GRAB", Kind: model.MatchContains, Priority: 5}},
		{name: "valid regex", rule: &model.Rule{Target: model.AccountTarget{AccountID: 1}, Pattern: `^TRF\s`, Kind: model.MatchRegex, Priority: 5}},
		{name: "nil rule", rule: nil, wantErr: true},
		{name: "bad regex", rule: &model.Rule{Target: model.CategoryTarget{SubCategoryID: 1}, Pattern: `(unclosed`, Kind: model.MatchRegex, Priority: 5}, wantErr: true},
		{name: "unknown kind", rule: &model.Rule{Target: model.CategoryTarget{SubCategoryID: 1}, Pattern: "GRAB", Kind: "fuzzy", Priority: 5}, wantErr: true},
		{name: "priority zero", rule: &model.Rule{Target: model.CategoryTarget{SubCategoryID: 1}, Pattern: "GRAB", Kind: model.MatchContains}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidRule)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestManager_MutationsInvalidate(t *testing.T) {
	repo := newMemoryRepo()
	inv := &recordingInvalidator{}
	mgr := NewManager(repo, inv)
	ctx := context.Background()

	r := &model.Rule{Target: model.CategoryTarget{SubCategoryID: 3}, Pattern: "INDOMARET", Kind: model.MatchContains, Priority: 5, IsActive: true}
	require.NoError(t, mgr.Create(ctx, r))
	require.NoError(t, mgr.SetPriority(ctx, r.ID, 8))
	require.NoError(t, mgr.SetActive(ctx, r.ID, false))

	r.Target = model.AccountTarget{AccountID: 4}
	require.NoError(t, mgr.Update(ctx, r))
	require.NoError(t, mgr.Retire(ctx, r.ID))

	assert.Equal(t, []model.RulePool{
		model.PoolCategory, // create
		model.PoolCategory, // priority
		model.PoolCategory, // deactivate
		model.PoolCategory, // update, old pool
		model.PoolAccount,  // update, new pool
		model.PoolAccount,  // retire
	}, inv.pools)

	listed, err := mgr.List(ctx, model.PoolAccount, true)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestManager_RejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo()
	inv := &recordingInvalidator{}
	mgr := NewManager(repo, inv)
	ctx := context.Background()

	err := mgr.Create(ctx, &model.Rule{Target: model.CategoryTarget{SubCategoryID: 3}, Pattern: "[", Kind: model.MatchRegex, Priority: 5})
	assert.ErrorIs(t, err, common.ErrInvalidRule)

	r := &model.Rule{Target: model.CategoryTarget{SubCategoryID: 3}, Pattern: "OVO", Kind: model.MatchContains, Priority: 5, IsActive: true}
	require.NoError(t, mgr.Create(ctx, r))
	inv.pools = nil

	assert.ErrorIs(t, mgr.SetPriority(ctx, r.ID, 11), common.ErrInvalidPriority)
	assert.ErrorIs(t, mgr.SetActive(ctx, 99, true), common.ErrNotFound)
	_, err = mgr.List(ctx, "vendor", false)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, inv.pools, "failed mutations do not invalidate")

	got, err := mgr.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)
}
