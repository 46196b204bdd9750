// Package memory is an in-process implementation of ports.Repository, used
// for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ucontrol/internal/core"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
	incomes  map[string]core.Income
	expenses map[string]core.Expense
	budgets  map[string]core.Budget
	cutoff   *period.CutoffConfig
}

var _ ports.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: map[string]core.Account{},
		incomes:  map[string]core.Income{},
		expenses: map[string]core.Expense{},
		budgets:  map[string]core.Budget{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
}

// Accounts

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %s already exists", core.ErrConflict, a.ID)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return notFound("account", a.ID)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, notFound("account", id)
	}
	return a, nil
}

func (s *Store) ListAccounts(context.Context) ([]core.Account, error) {
	s.mu.RLock()
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteAccount refuses to drop an account that transactions still point to,
// mirroring the foreign keys of the SQL backends.
func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return notFound("account", id)
	}
	for _, in := range s.incomes {
		if in.AccountID == id {
			return fmt.Errorf("%w: account %s has incomes", core.ErrConflict, id)
		}
	}
	for _, e := range s.expenses {
		if e.AccountID == id {
			return fmt.Errorf("%w: account %s has expenses", core.ErrConflict, id)
		}
	}
	delete(s.accounts, id)
	return nil
}

// Incomes

func (s *Store) CreateIncome(_ context.Context, in core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[in.AccountID]; !ok {
		return fmt.Errorf("%w: unknown account %s", core.ErrConflict, in.AccountID)
	}
	if _, ok := s.incomes[in.ID]; ok {
		return fmt.Errorf("%w: income %s already exists", core.ErrConflict, in.ID)
	}
	s.incomes[in.ID] = in
	return nil
}

func (s *Store) GetIncome(_ context.Context, id string) (core.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incomes[id]
	if !ok {
		return core.Income{}, notFound("income", id)
	}
	return in, nil
}

func (s *Store) ListIncomes(_ context.Context, f ports.TransactionFilter) ([]core.Income, error) {
	s.mu.RLock()
	var out []core.Income
	for _, in := range s.incomes {
		if f.Matches(in.Date, in.AccountID, in.Category) {
			out = append(out, in)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return chronological(out[i].Date, out[i].CreatedAt, out[i].ID, out[j].Date, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *Store) DeleteIncome(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incomes[id]; !ok {
		return notFound("income", id)
	}
	delete(s.incomes, id)
	return nil
}

// Expenses

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[e.AccountID]; !ok {
		return fmt.Errorf("%w: unknown account %s", core.ErrConflict, e.AccountID)
	}
	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("%w: expense %s already exists", core.ErrConflict, e.ID)
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, notFound("expense", id)
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, f ports.TransactionFilter) ([]core.Expense, error) {
	s.mu.RLock()
	var out []core.Expense
	for _, e := range s.expenses {
		if f.Matches(e.Date, e.AccountID, e.Category) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return chronological(out[i].Date, out[i].CreatedAt, out[i].ID, out[j].Date, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return notFound("expense", id)
	}
	delete(s.expenses, id)
	return nil
}

func chronological(d1 core.Date, c1 time.Time, id1 string, d2 core.Date, c2 time.Time, id2 string) bool {
	if !d1.Equal(d2) {
		return d1.Before(d2)
	}
	if !c1.Equal(c2) {
		return c1.Before(c2)
	}
	return id1 < id2
}

// Budgets

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; ok {
		return fmt.Errorf("%w: budget %s already exists", core.ErrConflict, b.ID)
	}
	if s.hasBudgetLocked(b) {
		return fmt.Errorf("%w: budget for %s in %s already exists", core.ErrConflict, b.Category, b.PeriodKey)
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; !ok {
		return notFound("budget", b.ID)
	}
	if s.hasBudgetLocked(b) {
		return fmt.Errorf("%w: budget for %s in %s already exists", core.ErrConflict, b.Category, b.PeriodKey)
	}
	s.budgets[b.ID] = b
	return nil
}

// hasBudgetLocked reports whether another budget already covers b's
// category and period.
func (s *Store) hasBudgetLocked(b core.Budget) bool {
	for id, other := range s.budgets {
		if id != b.ID && other.Category == b.Category && other.PeriodKey == b.PeriodKey {
			return true
		}
	}
	return false
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, notFound("budget", id)
	}
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, periodKey string) ([]core.Budget, error) {
	s.mu.RLock()
	var out []core.Budget
	for _, b := range s.budgets {
		if periodKey == "" || b.PeriodKey == periodKey {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodKey != out[j].PeriodKey {
			return out[i].PeriodKey < out[j].PeriodKey
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return notFound("budget", id)
	}
	delete(s.budgets, id)
	return nil
}

// Cutoff configuration

func (s *Store) GetCutoffConfig(context.Context) (period.CutoffConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cutoff == nil {
		return period.CutoffConfig{}, fmt.Errorf("cutoff config: %w", core.ErrNotFound)
	}
	return *s.cutoff, nil
}

func (s *Store) SaveCutoffConfig(_ context.Context, cfg period.CutoffConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cutoff = &cfg
	s.mu.Unlock()
	return nil
}
