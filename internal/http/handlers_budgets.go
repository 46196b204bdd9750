package http

import (
	"net/http"

	"ucontrol/internal/core"
)

type budgetRequest struct {
	Category  string     `json:"category"`
	PeriodKey string     `json:"periodKey"`
	Limit     core.Money `json:"limit"`
}

func (req budgetRequest) budget(id string) core.Budget {
	return core.Budget{
		ID:        id,
		Category:  sanitizeInput(req.Category),
		PeriodKey: sanitizeInput(req.PeriodKey),
		Limit:     req.Limit,
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	budgets, err := s.svc.Budgets.ListBudgets(ctx, sanitizeInput(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": nonNil(budgets)})
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	b, err := s.svc.Budgets.CreateBudget(ctx, req.budget(""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	b, err := s.svc.Budgets.UpdateBudget(ctx, req.budget(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.svc.Budgets.DeleteBudget(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	summary, err := s.svc.Summary.Summary(ctx, sanitizeInput(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
