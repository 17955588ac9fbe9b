package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/suggest"
)

// maxUploadBytes bounds OFX uploads.
const maxUploadBytes = 10 << 20

type handlers struct {
	deps Dependencies
}

// poolQuery reads ?pool=, defaulting to the category pool.
func poolQuery(r *http.Request) (model.RulePool, error) {
	pool := model.RulePool(r.URL.Query().Get("pool"))
	if pool == "" {
		return model.PoolCategory, nil
	}
	if !pool.Valid() {
		return "", fmt.Errorf("%w: unknown pool %q", common.ErrInvalidInput, pool)
	}
	return pool, nil
}

func (h *handlers) listStatements(w http.ResponseWriter, r *http.Request) {
	statements, err := h.deps.Statements.ListStatements(r.Context())
	if err != nil {
		writeError(w, r, err, "failed to list statements")
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

func (h *handlers) importStatement(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.ofx"
	}
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)

	statements, err := h.deps.Importer.Import(r.Context(), body, name)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			err = badRequest(err)
		}
		writeError(w, r, err, "failed to import statement")
		return
	}
	writeJSON(w, http.StatusCreated, statements)
}

// classifyStatement runs ?pool=category (default), account or all.
func (h *handlers) classifyStatement(w http.ResponseWriter, r *http.Request) {
	statementID, err := idParam(r, "statement_id")
	if err != nil {
		writeError(w, r, err, "invalid statement id")
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		writeError(w, r, err, "invalid force flag")
		return
	}

	var pools []model.RulePool
	if r.URL.Query().Get("pool") == "all" {
		pools = model.Pools
	} else {
		pool, err := poolQuery(r)
		if err != nil {
			writeError(w, r, err, "invalid pool")
			return
		}
		pools = []model.RulePool{pool}
	}

	opts := engine.Options{Force: force}
	summaries := make([]*engine.Summary, 0, len(pools))
	for _, pool := range pools {
		var summary *engine.Summary
		if pool == model.PoolAccount {
			summary, err = h.deps.Classifier.ClassifyAccounts(r.Context(), statementID, opts)
		} else {
			summary, err = h.deps.Classifier.ClassifyBatch(r.Context(), statementID, opts)
		}
		if err != nil {
			writeError(w, r, err, fmt.Sprintf("failed to classify statement %d", statementID))
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handlers) matchTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := idParam(r, "transaction_id")
	if err != nil {
		writeError(w, r, err, "invalid transaction id")
		return
	}
	pool, err := poolQuery(r)
	if err != nil {
		writeError(w, r, err, "invalid pool")
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		writeError(w, r, err, "invalid force flag")
		return
	}

	var outcome *engine.MatchOutcome
	if pool == model.PoolAccount {
		outcome, err = h.deps.Classifier.MatchOneAccount(r.Context(), txnID, force)
	} else {
		outcome, err = h.deps.Classifier.MatchOne(r.Context(), txnID, force)
	}
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to match transaction %d", txnID))
		return
	}
	writeJSON(w, http.StatusOK, newMatchView(outcome))
}

func (h *handlers) alternatives(w http.ResponseWriter, r *http.Request) {
	txnID, err := idParam(r, "transaction_id")
	if err != nil {
		writeError(w, r, err, "invalid transaction id")
		return
	}
	pool, err := poolQuery(r)
	if err != nil {
		writeError(w, r, err, "invalid pool")
		return
	}
	n, err := intQuery(r, "n")
	if err != nil {
		writeError(w, r, err, "invalid count")
		return
	}
	if n == 0 {
		n = engine.DefaultAlternatives
	}

	alts, err := h.deps.Classifier.Alternatives(r.Context(), txnID, pool, n)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to load alternatives for transaction %d", txnID))
		return
	}
	writeJSON(w, http.StatusOK, newAlternativeViews(alts))
}

func (h *handlers) analyzeSuggestions(w http.ResponseWriter, r *http.Request) {
	statementID, err := idParam(r, "statement_id")
	if err != nil {
		writeError(w, r, err, "invalid statement id")
		return
	}
	sortBy, err := suggest.ParseSortBy(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, r, err, "invalid sort order")
		return
	}
	minFrequency, err := intQuery(r, "min_frequency")
	if err != nil {
		writeError(w, r, err, "invalid minimum frequency")
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, r, err, "invalid limit")
		return
	}

	suggestions, err := h.deps.Miner.Analyze(r.Context(), statementID, suggest.Filters{
		SortBy:       sortBy,
		MinFrequency: minFrequency,
		Limit:        limit,
	})
	if err != nil {
		writeError(w, r, err, "failed to analyze suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []suggest.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *handlers) statistics(w http.ResponseWriter, r *http.Request) {
	pool := model.RulePool(chi.URLParam(r, "pool"))
	targetID, err := idParam(r, "target_id")
	if err != nil {
		writeError(w, r, err, "invalid target id")
		return
	}
	target, err := model.NewTarget(pool, targetID)
	if err != nil {
		writeError(w, r, badRequest(err), "invalid pool")
		return
	}

	stats, err := h.deps.Classifier.Statistics(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, statisticsView{Statistics: stats, Pool: pool, TargetID: targetID})
}
