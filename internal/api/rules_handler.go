package api

import (
	"net/http"

	"github.com/vdavid/bbs2ch/internal/filter"
	"github.com/vdavid/bbs2ch/internal/models"
)

// RulesHandler manages the NG rules applied to thread messages.
type RulesHandler struct {
	store Store
}

// NewRulesHandler creates a new RulesHandler instance.
func NewRulesHandler(store Store) *RulesHandler {
	return &RulesHandler{store: store}
}

// ListRules returns every stored rule, oldest first.
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListFilterRules(r.Context())
	if err != nil {
		writeServiceError(w, "RulesHandler", err)
		return
	}
	if rules == nil {
		rules = []models.FilterRule{}
	}

	WriteJSONResponse(w, rules)
}

// CreateRule validates and stores a new rule.
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.FilterRule
	if !decodeJSONBody(w, r, "RulesHandler", &rule) {
		return
	}

	if err := filter.ValidateRule(rule); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.SaveFilterRule(r.Context(), &rule); err != nil {
		writeServiceError(w, "RulesHandler", err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, &rule)
}

// DeleteRule removes a rule. Deleting an unknown rule succeeds.
func (h *RulesHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteFilterRule(r.Context(), r.PathValue("rule_id")); err != nil {
		writeServiceError(w, "RulesHandler", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
