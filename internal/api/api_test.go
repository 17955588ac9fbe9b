package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-classifier/internal/classification"
	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/ofx"
	"github.com/Veraticus/spice-classifier/internal/pattern"
	"github.com/Veraticus/spice-classifier/internal/rules"
	"github.com/Veraticus/spice-classifier/internal/suggest"
	"github.com/Veraticus/spice-classifier/internal/testutil"
)

type fixture struct {
	db        *testutil.TestDB
	router    http.Handler
	groceries *model.CategoryPath
	transport *model.CategoryPath
	indomaret *model.Rule
	stmt      *model.Statement
	txns      []model.Transaction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)

	fx := &fixture{
		db:        db,
		groceries: db.SubCategory("Expense", "Shopping", "Groceries"),
		transport: db.SubCategory("Expense", "Travel", "Ride Hailing"),
		stmt:      db.Statement("BCA"),
	}
	fx.txns = db.Transactions(fx.stmt.ID,
		"PEMBAYARAN INDOMARET JAKARTA",
		"GRAB* JAKARTA",
		"INDOMARET CABANG 12",
		"GRAB* BANDUNG",
		"BIAYA ADMIN",
	)
	fx.indomaret = db.Rule(model.CategoryTarget{SubCategoryID: fx.groceries.SubCategoryID}, "INDOMARET", model.MatchContains, 8)

	store := rules.NewStore(db.Storage, pattern.DefaultScoring(), time.Hour)
	eng, err := engine.New(db.Storage, store, engine.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	extractor := classification.NewDefaultExtractor(classification.DefaultMaxKeywords)
	fx.router = NewRouter(Dependencies{
		Classifier: eng,
		Learner:    feedback.New(db.Storage, store, eng, extractor, feedback.DefaultConfig()),
		Miner:      suggest.NewMiner(db.Storage, extractor, suggest.DefaultConfig()),
		Rules:      rules.NewManager(db.Storage, store),
		Importer:   ofx.NewImporter(db.Storage),
		Statements: db.Storage,
	})
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestClassifyStatement(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/statements/%d/classify", fx.stmt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summaries := decode[[]engine.Summary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, model.PoolCategory, summaries[0].Pool)
	assert.Equal(t, 5, summaries[0].Total)
	assert.Equal(t, 2, summaries[0].Matched)
	assert.Equal(t, 3, summaries[0].Unmatched)

	txn := fx.db.Transaction(fx.txns[0].ID)
	require.NotNil(t, txn.Category.SubCategoryID)
	assert.Equal(t, fx.groceries.SubCategoryID, *txn.Category.SubCategoryID)
}

func TestClassifyStatement_AllPools(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/statements/%d/classify?pool=all", fx.stmt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summaries := decode[[]engine.Summary](t, rec)
	require.Len(t, summaries, 2)
	assert.Equal(t, model.PoolAccount, summaries[1].Pool)
	assert.Zero(t, summaries[1].Matched)
}

func TestClassifyStatement_Errors(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown statement", "/api/statements/999/classify", http.StatusNotFound},
		{"bad id", "/api/statements/abc/classify", http.StatusBadRequest},
		{"bad pool", fmt.Sprintf("/api/statements/%d/classify?pool=ledger", fx.stmt.ID), http.StatusBadRequest},
		{"bad force", fmt.Sprintf("/api/statements/%d/classify?force=maybe", fx.stmt.ID), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodPost, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestMatchTransaction(t *testing.T) {
	fx := newFixture(t)
	path := fmt.Sprintf("/api/transactions/%d/match", fx.txns[0].ID)

	rec := fx.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[matchView](t, rec)
	require.NotNil(t, first.Best)
	assert.Equal(t, fx.indomaret.ID, first.Best.RuleID)
	assert.Equal(t, "INDOMARET", first.Best.MatchedText)
	assert.False(t, first.Skipped)

	rec = fx.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[matchView](t, rec).Skipped)

	rec = fx.do(t, http.MethodPost, path+"?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[matchView](t, rec).Skipped)
}

func TestAlternatives(t *testing.T) {
	fx := newFixture(t)
	fx.db.Rule(model.CategoryTarget{SubCategoryID: fx.transport.SubCategoryID}, "JAKARTA", model.MatchContains, 3)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/match", fx.txns[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodGet, fmt.Sprintf("/api/transactions/%d/alternatives", fx.txns[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	alts := decode[[]alternativeView](t, rec)
	require.Len(t, alts, 1)
	assert.Equal(t, "JAKARTA", alts[0].MatchedText)
	assert.Equal(t, fx.transport.SubCategoryID, alts[0].TargetID)
	assert.Equal(t, model.PoolCategory, alts[0].Pool)
}

func TestRuleLifecycle(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/rules", map[string]any{
		"pattern":    "GRAB",
		"match_kind": "starts_with",
		"target_id":  fx.transport.SubCategoryID,
		"priority":   6,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ruleView](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.PoolCategory, created.Pool)
	assert.Equal(t, fx.transport.SubCategoryID, created.TargetID)
	assert.True(t, created.IsActive)

	base := fmt.Sprintf("/api/rules/%d", created.ID)

	rec = fx.do(t, http.MethodPut, base+"/priority", map[string]int{"priority": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9, decode[ruleView](t, rec).Priority)

	rec = fx.do(t, http.MethodPut, base+"/priority", map[string]int{"priority": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, base+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[ruleView](t, rec).IsActive)

	rec = fx.do(t, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ruleView](t, rec), 1)

	rec = fx.do(t, http.MethodGet, "/api/rules?include_inactive=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ruleView](t, rec), 2)

	rec = fx.do(t, http.MethodPut, base, map[string]any{
		"pattern":    "GRAB*",
		"match_kind": "starts_with",
		"target_id":  fx.transport.SubCategoryID,
		"priority":   7,
		"is_active":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[ruleView](t, rec)
	assert.Equal(t, "GRAB*", updated.Pattern)
	assert.True(t, updated.IsActive)

	rec = fx.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/rules?include_inactive=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ruleView](t, rec), 1)
}

func TestCreateRule_Invalid(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"invalid regex", map[string]any{"pattern": "(", "match_kind": "regex", "target_id": fx.groceries.SubCategoryID, "priority": 5}},
		{"priority out of range", map[string]any{"pattern": "X", "target_id": fx.groceries.SubCategoryID, "priority": 0}},
		{"unknown pool", map[string]any{"pattern": "X", "pool": "ledger", "target_id": 1, "priority": 5}},
		{"unknown field", map[string]any{"pattern": "X", "colour": "red"}},
		{"malformed json", `{"pattern":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodPost, "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestApplyOutcome(t *testing.T) {
	fx := newFixture(t)
	rule := fx.db.Rule(model.CategoryTarget{SubCategoryID: fx.groceries.SubCategoryID}, "ALFAMART", model.MatchContains, 9)
	path := fmt.Sprintf("/api/rules/%d/outcome", rule.ID)

	rec := fx.do(t, http.MethodPost, path, map[string]string{"outcome": "selected_from_suggestion"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[outcomeView](t, rec)
	assert.True(t, result.Changed)
	assert.Equal(t, 9, result.PreviousPriority)
	assert.Equal(t, model.MaxPriority, result.Rule.Priority)
	assert.Equal(t, 1, result.Rule.MatchCount)

	rec = fx.do(t, http.MethodPost, path, map[string]string{"outcome": "shrugged"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/rules/999/outcome", map[string]string{"outcome": "approved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewFlow(t *testing.T) {
	fx := newFixture(t)
	txnID := fx.txns[0].ID

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/match", txnID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/review", txnID), map[string]any{
		"reviewer": "siti",
		"approved": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	txn := fx.db.Transaction(txnID)
	assert.True(t, txn.IsVerified)
	assert.Equal(t, "siti", txn.VerifiedBy)

	rule, err := fx.db.Storage.GetRule(context.Background(), fx.indomaret.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, rule.Priority)

	rec = fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/review", txnID), map[string]any{"approved": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectAlternative(t *testing.T) {
	fx := newFixture(t)
	txnID := fx.txns[0].ID
	jakarta := fx.db.Rule(model.CategoryTarget{SubCategoryID: fx.transport.SubCategoryID}, "JAKARTA", model.MatchContains, 3)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/match", txnID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/select", txnID), map[string]any{
		"reviewer": "siti",
		"rule_id":  jakarta.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	txn := fx.db.Transaction(txnID)
	assert.True(t, txn.Category.IsManual)
	require.NotNil(t, txn.Category.SubCategoryID)
	assert.Equal(t, fx.transport.SubCategoryID, *txn.Category.SubCategoryID)
}

func TestCorrectCategory(t *testing.T) {
	fx := newFixture(t)
	txnID := fx.txns[1].ID

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/transactions/%d/correct", txnID), map[string]any{
		"reviewer":        "siti",
		"sub_category_id": fx.transport.SubCategoryID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Contains(t, body["keywords"], "GRAB")
	assert.NotEmpty(t, body["suggestions"])

	txn := fx.db.Transaction(txnID)
	assert.True(t, txn.Category.IsManual)
}

func TestPromoteSuggestions_Empty(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/suggestions/promote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Empty(t, body["promoted"])
	assert.EqualValues(t, 0, body["pending"])
}

func TestDismissSuggestion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	target := model.CategoryTarget{SubCategoryID: fx.transport.SubCategoryID}
	sr, err := fx.db.Storage.RecordSuggestionObservation(ctx, "GRAB", target, 95, fx.txns[1].ID)
	require.NoError(t, err)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/suggestions/%d/dismiss", sr.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dismissed", decode[map[string]any](t, rec)["status"])

	pending, err := fx.db.Storage.ListSuggestedRules(ctx, model.SuggestionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rec = fx.do(t, http.MethodPost, fmt.Sprintf("/api/suggestions/%d/dismiss", sr.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/suggestions/abc/dismiss", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeSuggestions(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, fmt.Sprintf("/api/statements/%d/suggestions", fx.stmt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	suggestions := decode[[]suggest.Suggestion](t, rec)
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		assert.GreaterOrEqual(t, s.Count, 2)
	}

	rec = fx.do(t, http.MethodGet, fmt.Sprintf("/api/statements/%d/suggestions?sort=alphabetical", fx.stmt.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatistics(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, fmt.Sprintf("/api/statements/%d/classify", fx.stmt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodGet, fmt.Sprintf("/api/statistics/category/%d", fx.groceries.SubCategoryID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, stats["transaction_count"])
	assert.EqualValues(t, 1, stats["rule_count"])
	assert.Equal(t, "category", stats["pool"])

	rec = fx.do(t, http.MethodGet, "/api/statistics/ledger/1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportStatement(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/statements/import?filename=broken.ofx", "not valid OFX")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/statements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statements := decode[[]model.Statement](t, rec)
	require.Len(t, statements, 1)
	assert.True(t, strings.HasPrefix(statements[0].SourceFile, "BCA"))
}
