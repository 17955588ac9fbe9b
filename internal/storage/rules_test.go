package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCategoryRule(subCategoryID int64, pattern string, priority int) *model.Rule {
	return &model.Rule{
		Target:   model.CategoryTarget{SubCategoryID: subCategoryID},
		Pattern:  pattern,
		Kind:     model.MatchContains,
		Priority: priority,
		IsActive: true,
	}
}

func TestSQLiteStorage_CreateRule(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	fx := createFixture(t, store)

	tests := []struct {
		rule    *model.Rule
		wantErr error
		name    string
	}{
		{
			name: "category rule",
			rule: newCategoryRule(fx.path.SubCategoryID, "INDOMARET", 8),
		},
		{
			name: "account rule",
			rule: &model.Rule{
				Target:   model.AccountTarget{AccountID: fx.account.ID},
				Pattern:  "^TRF",
				Kind:     model.MatchRegex,
				Priority: 5,
				IsActive: true,
			},
		},
		{
			name:    "priority out of range",
			rule:    newCategoryRule(fx.path.SubCategoryID, "ALFAMART", 11),
			wantErr: common.ErrInvalidRule,
		},
		{
			name:    "missing target",
			rule:    newCategoryRule(9999, "ALFAMART", 5),
			wantErr: common.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateRule(ctx, tt.rule)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, tt.rule.ID)

			got, err := store.GetRule(ctx, tt.rule.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.rule.Pattern, got.Pattern)
			assert.Equal(t, tt.rule.Kind, got.Kind)
			assert.Equal(t, tt.rule.Target, got.Target)
			assert.Equal(t, tt.rule.Priority, got.Priority)
			assert.True(t, got.IsActive)
			assert.Zero(t, got.MatchCount)
			assert.Nil(t, got.LastMatchedAt)
		})
	}
}

func TestSQLiteStorage_GetActiveRules(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	fx := createFixture(t, store)

	other, err := store.CreateSubCategory(ctx, fx.path.CategoryID, "Pharmacy")
	require.NoError(t, err)

	low := newCategoryRule(fx.path.SubCategoryID, "MART", 3)
	highFirst := newCategoryRule(fx.path.SubCategoryID, "INDOMARET", 8)
	highSecond := newCategoryRule(fx.path.SubCategoryID, "ALFAMART", 8)
	inactive := newCategoryRule(fx.path.SubCategoryID, "SUPERINDO", 9)
	inactive.IsActive = false
	orphaned := newCategoryRule(other.ID, "KIMIA FARMA", 10)
	retired := newCategoryRule(fx.path.SubCategoryID, "HERO", 10)

	for _, r := range []*model.Rule{low, highFirst, highSecond, inactive, orphaned, retired} {
		require.NoError(t, store.CreateRule(ctx, r))
	}
	require.NoError(t, store.DeleteSubCategory(ctx, other.ID))
	require.NoError(t, store.RetireRule(ctx, retired.ID))

	rules, err := store.GetActiveRules(ctx, model.PoolCategory)
	require.NoError(t, err)

	ids := make([]int64, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{highFirst.ID, highSecond.ID, low.ID}, ids)

	accountRules, err := store.GetActiveRules(ctx, model.PoolAccount)
	require.NoError(t, err)
	assert.Empty(t, accountRules)

	all, err := store.ListRules(ctx, model.PoolCategory, true)
	require.NoError(t, err)
	assert.Len(t, all, 5, "retired rules are never listed")
}

func TestSQLiteStorage_AccountDeactivationHidesRules(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	fx := createFixture(t, store)

	rule := &model.Rule{
		Target:   model.AccountTarget{AccountID: fx.account.ID},
		Pattern:  "PLN",
		Kind:     model.MatchContains,
		Priority: 5,
		IsActive: true,
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	rules, err := store.GetActiveRules(ctx, model.PoolAccount)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, store.SetAccountActive(ctx, fx.account.ID, false))
	rules, err = store.GetActiveRules(ctx, model.PoolAccount)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSQLiteStorage_ApplyRuleFeedback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	fx := createFixture(t, store)

	rule := newCategoryRule(fx.path.SubCategoryID, "INDOMARET", 5)
	require.NoError(t, store.CreateRule(ctx, rule))

	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.ApplyRuleFeedback(ctx, rule.ID, 6, true, at))

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Priority)
	assert.Equal(t, 1, got.MatchCount)
	require.NotNil(t, got.LastMatchedAt)
	assert.True(t, at.Equal(*got.LastMatchedAt))

	require.NoError(t, store.ApplyRuleFeedback(ctx, rule.ID, 5, false, at.Add(time.Hour)))
	got, err = store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)
	assert.Equal(t, 1, got.MatchCount, "rejections do not count as matches")

	assert.ErrorIs(t, store.ApplyRuleFeedback(ctx, rule.ID, 0, false, at), common.ErrInvalidPriority)
	assert.ErrorIs(t, store.ApplyRuleFeedback(ctx, 9999, 5, false, at), common.ErrNotFound)
}

func TestSQLiteStorage_RuleMutations(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	fx := createFixture(t, store)

	rule := newCategoryRule(fx.path.SubCategoryID, "indomaret", 5)
	require.NoError(t, store.CreateRule(ctx, rule))

	found, err := store.FindRuleByPattern(ctx, "INDOMARET", rule.Target)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, found.ID)

	require.NoError(t, store.SetRulePriority(ctx, rule.ID, 9))
	assert.ErrorIs(t, store.SetRulePriority(ctx, rule.ID, 12), common.ErrInvalidPriority)

	require.NoError(t, store.SetRuleActive(ctx, rule.ID, false))
	rules, err := store.GetActiveRules(ctx, model.PoolCategory)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rule.Pattern = "INDOMARET POINT"
	rule.Kind = model.MatchStartsWith
	rule.Priority = 7
	rule.IsActive = true
	require.NoError(t, store.UpdateRule(ctx, rule))

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "INDOMARET POINT", got.Pattern)
	assert.Equal(t, model.MatchStartsWith, got.Kind)
	assert.Equal(t, 7, got.Priority)

	require.NoError(t, store.IncrementRuleMatchCount(ctx, rule.ID, time.Now()))
	got, err = store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MatchCount)

	require.NoError(t, store.RetireRule(ctx, rule.ID))
	got, err = store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.False(t, got.IsActive)
	assert.ErrorIs(t, store.RetireRule(ctx, rule.ID), common.ErrNotFound)

	_, err = store.FindRuleByPattern(ctx, "INDOMARET POINT", rule.Target)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
