package api

import (
	"fmt"
	"net/http"

	"github.com/Veraticus/spice-classifier/internal/model"
)

type priorityRequest struct {
	Priority int `json:"priority"`
}

func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	pool, err := poolQuery(r)
	if err != nil {
		writeError(w, r, err, "invalid pool")
		return
	}
	includeInactive, err := boolQuery(r, "include_inactive")
	if err != nil {
		writeError(w, r, err, "invalid include_inactive flag")
		return
	}

	rules, err := h.deps.Rules.List(r.Context(), pool, includeInactive)
	if err != nil {
		writeError(w, r, err, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, newRuleViews(rules))
}

func (h *handlers) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "rule_id")
	if err != nil {
		writeError(w, r, err, "invalid rule id")
		return
	}
	rule, err := h.deps.Rules.Get(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to load rule %d", ruleID))
		return
	}
	writeJSON(w, http.StatusOK, newRuleView(rule))
}

func (h *handlers) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	rule := &model.Rule{IsActive: true}
	if err := req.apply(rule); err != nil {
		writeError(w, r, badRequest(err), "invalid rule")
		return
	}
	if err := h.deps.Rules.Create(r.Context(), rule); err != nil {
		writeError(w, r, err, "failed to create rule")
		return
	}
	writeJSON(w, http.StatusCreated, newRuleView(rule))
}

func (h *handlers) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "rule_id")
	if err != nil {
		writeError(w, r, err, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}

	rule, err := h.deps.Rules.Get(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to load rule %d", ruleID))
		return
	}
	if req.Pool == "" {
		req.Pool = rule.Pool()
	}
	if err := req.apply(rule); err != nil {
		writeError(w, r, badRequest(err), "invalid rule")
		return
	}
	if err := h.deps.Rules.Update(r.Context(), rule); err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to update rule %d", ruleID))
		return
	}
	writeJSON(w, http.StatusOK, newRuleView(rule))
}

func (h *handlers) setRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := idParam(r, "rule_id")
		if err != nil {
			writeError(w, r, err, "invalid rule id")
			return
		}
		if err := h.deps.Rules.SetActive(r.Context(), ruleID, active); err != nil {
			writeError(w, r, err, fmt.Sprintf("failed to change rule %d", ruleID))
			return
		}
		h.writeRule(w, r, ruleID)
	}
}

func (h *handlers) setRulePriority(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "rule_id")
	if err != nil {
		writeError(w, r, err, "invalid rule id")
		return
	}
	var req priorityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "invalid request")
		return
	}
	if err := h.deps.Rules.SetPriority(r.Context(), ruleID, req.Priority); err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to set priority of rule %d", ruleID))
		return
	}
	h.writeRule(w, r, ruleID)
}

func (h *handlers) retireRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "rule_id")
	if err != nil {
		writeError(w, r, err, "invalid rule id")
		return
	}
	if err := h.deps.Rules.Retire(r.Context(), ruleID); err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to retire rule %d", ruleID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) writeRule(w http.ResponseWriter, r *http.Request, ruleID int64) {
	rule, err := h.deps.Rules.Get(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("failed to load rule %d", ruleID))
		return
	}
	writeJSON(w, http.StatusOK, newRuleView(rule))
}
