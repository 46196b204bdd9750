package http

import (
	"net/http"
	"net/url"

	"ucontrol/internal/core"
	"ucontrol/internal/services"
)

type transactionRequest struct {
	AccountID   string     `json:"accountId"`
	Date        core.Date  `json:"date"`
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
}

// parseListFilter reads period, startDate/endDate, accountId and category
// from the query string.
func parseListFilter(q url.Values) (services.ListFilter, error) {
	f := services.ListFilter{
		PeriodKey: sanitizeInput(q.Get("period")),
		AccountID: sanitizeInput(q.Get("accountId")),
		Category:  sanitizeInput(q.Get("category")),
	}
	if v := q.Get("startDate"); v != "" {
		d, err := parseDateField("startDate", v)
		if err != nil {
			return f, err
		}
		f.From = d
	}
	if v := q.Get("endDate"); v != "" {
		d, err := parseDateField("endDate", v)
		if err != nil {
			return f, err
		}
		f.To = d
	}
	if f.PeriodKey != "" && (!f.From.IsZero() || !f.To.IsZero()) {
		return f, badRequest("use either period or startDate/endDate, not both")
	}
	return f, nil
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	incomes, err := s.svc.Ledger.ListIncomes(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incomes": nonNil(incomes)})
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	in, err := s.svc.Ledger.CreateIncome(ctx, core.Income{
		AccountID:   sanitizeInput(req.AccountID),
		Date:        req.Date,
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		Category:    sanitizeInput(req.Category),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.svc.Ledger.DeleteIncome(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	expenses, err := s.svc.Ledger.ListExpenses(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": nonNil(expenses)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	e, err := s.svc.Ledger.CreateExpense(ctx, core.Expense{
		AccountID:   sanitizeInput(req.AccountID),
		Date:        req.Date,
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		Category:    sanitizeInput(req.Category),
		Subcategory: sanitizeInput(req.Subcategory),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.svc.Ledger.DeleteExpense(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
