package api

import (
	"fmt"
	"net/http"

	"github.com/Veraticus/spice-classifier/internal/model"
)

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Approved bool   `json:"approved"`
}

type selectRequest struct {
	Reviewer string `json:"reviewer"`
	RuleID   int64  `json:"rule_id"`
}

type correctRequest struct {
	Reviewer      string `json:"reviewer"`
	SubCategoryID int64  `json:"sub_category_id"`
}

type outcomeRequest struct {
	Outcome model.Outcome `json:"outcome"`
}

func (h *handlers) applyOutcome(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "rule_id")
	if err != nil {
		writeError(w, r, err, "invalid rule id")
		return
	}
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	result, err := h.deps.Learner.ApplyOutcome(r.Context(), ruleID, req.Outcome)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to apply outcome to rule %d", ruleID))
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeView(result))
}

func (h *handlers) review(w http.ResponseWriter, r *http.Request) {
	txnID, err := idParam(r, "transaction_id")
	if err != nil {
		writeError(w, r, err, "invalid transaction id")
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	result, err := h.deps.Learner.Review(r.Context(), txnID, req.Reviewer, req.Approved)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to review transaction %d", txnID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": newTransactionView(result.Transaction),
		"outcome":     newOutcomeView(result.Outcome),
	})
}

func (h *handlers) selectAlternative(w http.ResponseWriter, r *http.Request) {
	txnID, err := idParam(r, "transaction_id")
	if err != nil {
		writeError(w, r, err, "invalid transaction id")
		return
	}
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	result, err := h.deps.Learner.SelectAlternative(r.Context(), txnID, req.RuleID, req.Reviewer)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to select rule %d for transaction %d", req.RuleID, txnID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": newTransactionView(result.Transaction),
		"selected":    newOutcomeView(result.Selected),
		"replaced":    newOutcomeView(result.Replaced),
	})
}

func (h *handlers) correctCategory(w http.ResponseWriter, r *http.Request) {
	txnID, err := idParam(r, "transaction_id")
	if err != nil {
		writeError(w, r, err, "invalid transaction id")
		return
	}
	var req correctRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	result, err := h.deps.Learner.CorrectCategory(r.Context(), txnID, req.SubCategoryID, req.Reviewer)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to correct transaction %d", txnID))
		return
	}

	suggestions := make([]map[string]any, 0, len(result.Suggestions))
	for _, s := range result.Suggestions {
		suggestions = append(suggestions, map[string]any{
			"id":          s.ID,
			"pattern":     s.Pattern,
			"confidence":  s.Confidence,
			"occurrences": s.Occurrences,
			"status":      s.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction":  newTransactionView(result.Transaction),
		"rejected":     newOutcomeView(result.Rejected),
		"keywords":     result.Keywords,
		"bumped_rules": result.BumpedRules,
		"suggestions":  suggestions,
	})
}

func (h *handlers) promoteSuggestions(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Learner.PromoteSuggestions(r.Context())
	if err != nil {
		writeError(w, r, err, "failed to promote suggestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"promoted": newRuleViews(result.Promoted),
		"linked":   result.Linked,
		"pending":  result.Pending,
		"failed":   result.Failed,
	})
}

func (h *handlers) dismissSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "suggestion_id")
	if err != nil {
		writeError(w, r, err, "invalid suggestion id")
		return
	}
	if err := h.deps.Learner.DismissSuggestion(r.Context(), id); err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to dismiss suggestion %d", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.SuggestionDismissed})
}
