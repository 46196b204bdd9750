package http

import (
	"net/http"

	"ucontrol/internal/core"
)

type accountRequest struct {
	Name           string           `json:"name"`
	Type           core.AccountType `json:"type"`
	Currency       string           `json:"currency"`
	InitialBalance core.Money       `json:"initialBalance"`
	IsActive       *bool            `json:"isActive"`
}

// account builds the domain value; accounts are active unless told otherwise.
func (req accountRequest) account(id string) core.Account {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return core.Account{
		ID:             id,
		Name:           sanitizeInput(req.Name),
		Type:           core.AccountType(sanitizeInput(string(req.Type))),
		Currency:       sanitizeInput(req.Currency),
		InitialBalance: req.InitialBalance,
		IsActive:       active,
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	accounts, err := s.svc.Ledger.ListAccounts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": nonNil(accounts)})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	a, err := s.svc.Ledger.CreateAccount(ctx, req.account(""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	a, err := s.svc.Ledger.GetAccount(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	a, err := s.svc.Ledger.UpdateAccount(ctx, req.account(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.svc.Ledger.DeleteAccount(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
