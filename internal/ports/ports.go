// Package ports declares the interfaces services depend on. Storage, messaging
// and export adapters implement them.
package ports

import (
	"context"
	"io"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/period"
)

// TransactionFilter narrows income and expense listings. Zero dates leave
// that side of the range open; bounds are inclusive.
type TransactionFilter struct {
	From      core.Date
	To        core.Date
	AccountID string
	Category  string
}

// Matches reports whether an entry with the given fields passes the filter.
func (f TransactionFilter) Matches(date core.Date, accountID, category string) bool {
	if !f.From.IsZero() && date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && date.After(f.To) {
		return false
	}
	if f.AccountID != "" && f.AccountID != accountID {
		return false
	}
	if f.Category != "" && f.Category != category {
		return false
	}
	return true
}

// ForPeriod restricts the filter to the dates of p.
func (f TransactionFilter) ForPeriod(p period.FinancialPeriod) TransactionFilter {
	f.From = p.PeriodStart
	f.To = p.PeriodEnd
	return f
}

// Ports for outbound adapters. Lookups of missing records return an error
// wrapping core.ErrNotFound.
type (
	AccountRepository interface {
		CreateAccount(ctx context.Context, a core.Account) error
		UpdateAccount(ctx context.Context, a core.Account) error
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context) ([]core.Account, error)
		DeleteAccount(ctx context.Context, id string) error
	}

	IncomeRepository interface {
		CreateIncome(ctx context.Context, in core.Income) error
		GetIncome(ctx context.Context, id string) (core.Income, error)
		// ListIncomes returns matches ordered by date, then creation time.
		ListIncomes(ctx context.Context, f TransactionFilter) ([]core.Income, error)
		DeleteIncome(ctx context.Context, id string) error
	}

	ExpenseRepository interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		// ListExpenses returns matches ordered by date, then creation time.
		ListExpenses(ctx context.Context, f TransactionFilter) ([]core.Expense, error)
		DeleteExpense(ctx context.Context, id string) error
	}

	// BudgetRepository stores budgets. Creating a second budget for the same
	// category and period fails with core.ErrConflict.
	BudgetRepository interface {
		CreateBudget(ctx context.Context, b core.Budget) error
		UpdateBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		ListBudgets(ctx context.Context, periodKey string) ([]core.Budget, error)
		DeleteBudget(ctx context.Context, id string) error
	}

	// CutoffConfigRepository persists the single cutoff configuration row.
	// GetCutoffConfig returns core.ErrNotFound until something is saved.
	CutoffConfigRepository interface {
		GetCutoffConfig(ctx context.Context) (period.CutoffConfig, error)
		SaveCutoffConfig(ctx context.Context, cfg period.CutoffConfig) error
	}

	// Repository is the full storage surface a backend provides.
	Repository interface {
		AccountRepository
		IncomeRepository
		ExpenseRepository
		BudgetRepository
		CutoffConfigRepository
		Ping(ctx context.Context) error
		io.Closer
	}

	// EventPublisher announces ledger changes and closed periods.
	EventPublisher interface {
		PublishTransaction(ctx context.Context, ev *amqp.TransactionEvent) error
		PublishPeriodClosed(ctx context.Context, ev *amqp.PeriodClosedEvent) error
	}

	// LedgerExporter appends entries to an external ledger.
	LedgerExporter interface {
		AppendEntry(ctx context.Context, ev *amqp.TransactionEvent) (rowRef string, err error)
		// EntryState reports which rows the ledger already holds for a
		// transaction id.
		EntryState(ctx context.Context, id string) (LedgerEntryState, error)
	}

	// StatementArchiver stores a rendered statement under key.
	StatementArchiver interface {
		Put(ctx context.Context, key string, body []byte, contentType string) error
	}
)

// LedgerEntryState tells whether a transaction has been booked or reversed
// in the external ledger.
type LedgerEntryState struct {
	Booked   bool
	Reversed bool
}
