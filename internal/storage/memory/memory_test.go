package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ucontrol/internal/core"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

func account(id string) core.Account {
	return core.Account{ID: id, Name: "Cuenta " + id, Type: core.AccountCash, Currency: "MXN", IsActive: true}
}

func TestStoreExpensesOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateAccount(ctx, account("a1")); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	add := func(id string, d core.Date, offset time.Duration) {
		t.Helper()
		err := s.CreateExpense(ctx, core.Expense{
			ID: id, AccountID: "a1", Date: d, Description: id,
			Amount: core.Money{Cents: 100}, Category: "Casa", CreatedAt: base.Add(offset),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	add("late", core.NewDate(2024, 1, 20), 0)
	add("second", core.NewDate(2024, 1, 5), 2*time.Second)
	add("first", core.NewDate(2024, 1, 5), time.Second)
	add("outside", core.NewDate(2024, 1, 23), 0)

	p, _ := period.PeriodForKey(23, "2024-01")
	got, _ := s.ListExpenses(ctx, ports.TransactionFilter{}.ForPeriod(p))
	want := []string{"first", "second", "late"}
	if len(got) != len(want) {
		t.Fatalf("got %d expenses, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestStoreReferentialChecks(t *testing.T) {
	ctx := context.Background()
	s := New()
	in := core.Income{ID: "i1", AccountID: "a1", Date: core.NewDate(2024, 1, 1), Description: "x", Amount: core.Money{Cents: 1}, Category: "c"}
	if err := s.CreateIncome(ctx, in); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for unknown account, got %v", err)
	}
	_ = s.CreateAccount(ctx, account("a1"))
	if err := s.CreateIncome(ctx, in); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAccount(ctx, "a1"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict deleting referenced account, got %v", err)
	}
	_ = s.DeleteIncome(ctx, "i1")
	if err := s.DeleteAccount(ctx, "a1"); err != nil {
		t.Fatalf("delete after clearing: %v", err)
	}
	if _, err := s.GetAccount(ctx, "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreBudgetUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	b1 := core.Budget{ID: "b1", Category: "Comida", PeriodKey: "2024-02", Limit: core.Money{Cents: 10}}
	b2 := core.Budget{ID: "b2", Category: "Comida", PeriodKey: "2024-03", Limit: core.Money{Cents: 10}}
	if err := s.CreateBudget(ctx, b1); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateBudget(ctx, b2); err != nil {
		t.Fatal(err)
	}
	dup := b1
	dup.ID = "b3"
	if err := s.CreateBudget(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	b2.PeriodKey = "2024-02"
	if err := s.UpdateBudget(ctx, b2); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("moving b2 onto b1's period should conflict, got %v", err)
	}
	list, _ := s.ListBudgets(ctx, "2024-02")
	if len(list) != 1 || list[0].ID != "b1" {
		t.Fatalf("unexpected budgets: %+v", list)
	}
}

func TestStoreCutoffConfig(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetCutoffConfig(ctx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SaveCutoffConfig(ctx, period.CutoffConfig{CutoffDay: 40}); !errors.Is(err, period.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := s.SaveCutoffConfig(ctx, period.CutoffConfig{CutoffDay: 10, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetCutoffConfig(ctx)
	if got.CutoffDay != 10 {
		t.Fatalf("cutoff = %d", got.CutoffDay)
	}
}

func TestStoreConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateAccount(ctx, account("a1"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.CreateExpense(ctx, core.Expense{
				ID: string(rune('A' + i)), AccountID: "a1", Date: core.NewDate(2024, 1, 1),
				Description: "x", Amount: core.Money{Cents: 1}, Category: "c",
			})
		}(i)
	}
	wg.Wait()
	got, _ := s.ListExpenses(ctx, ports.TransactionFilter{})
	if len(got) != 50 {
		t.Fatalf("expected 50 expenses, got %d", len(got))
	}
}
