package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/period"
	"ucontrol/internal/storage/memory"
)

func newLedger(t *testing.T) (*LedgerService, *memory.Store, *fakePublisher, *recordingInvalidator) {
	t.Helper()
	store := memory.New()
	pub := &fakePublisher{}
	inv := &recordingInvalidator{}
	svc := NewLedgerService(store, newSettings(23), nil,
		WithPublisher(pub),
		WithInvalidator(inv),
		WithClock(fixedClock(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))))
	return svc, store, pub, inv
}

func TestLedgerCreateAccount(t *testing.T) {
	svc, _, _, _ := newLedger(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, core.Account{Name: "Banco", Type: core.AccountSavings, Currency: " mxn "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(a.ID) != 26 || a.Currency != "MXN" || a.CreatedAt.IsZero() {
		t.Fatalf("unexpected account: %+v", a)
	}

	if _, err := svc.CreateAccount(ctx, core.Account{Name: "X", Type: "wallet", Currency: "MXN"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	a.Name = "Banco nuevo"
	a.CreatedAt = time.Time{}
	updated, err := svc.UpdateAccount(ctx, a)
	if err != nil || updated.Name != "Banco nuevo" || updated.CreatedAt.IsZero() {
		t.Fatalf("update = %+v, %v", updated, err)
	}
	if _, err := svc.UpdateAccount(ctx, core.Account{ID: "nope", Name: "x", Type: core.AccountCash, Currency: "MXN"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedgerCreateExpensePublishesEvent(t *testing.T) {
	svc, store, pub, inv := newLedger(t)
	ctx := context.Background()
	mustAccount(store, "acc")

	e, err := svc.CreateExpense(ctx, core.Expense{
		AccountID: "acc", Date: core.NewDate(2024, 1, 23), Description: "Súper",
		Amount: core.Money{Cents: 12345}, Category: "Comida",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected an id")
	}
	if len(pub.transactions) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.transactions))
	}
	ev := pub.transactions[0]
	if ev.Type != amqp.EventTransactionCreated || ev.Kind != core.KindExpense || ev.ID != e.ID || ev.PeriodKey != "2024-02" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(inv.dates) != 1 || !inv.dates[0].Equal(e.Date) {
		t.Fatalf("invalidator not called with the entry date: %v", inv.dates)
	}

	if err := svc.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	last := pub.transactions[len(pub.transactions)-1]
	if last.Type != amqp.EventTransactionDeleted || last.Amount.Cents != 12345 || last.Description != "Súper" {
		t.Fatalf("delete event should carry a snapshot: %+v", last)
	}
	if err := svc.DeleteExpense(ctx, e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestLedgerPublishFailureDoesNotFailRequest(t *testing.T) {
	svc, store, pub, _ := newLedger(t)
	pub.err = amqp.ErrCircuitOpen
	mustAccount(store, "acc")

	_, err := svc.CreateIncome(context.Background(), core.Income{
		AccountID: "acc", Date: core.NewDate(2024, 1, 15), Description: "Nómina",
		Amount: core.Money{Cents: 100}, Category: "Sueldo",
	})
	if err != nil {
		t.Fatalf("publish failure leaked into the request: %v", err)
	}
	list, _ := svc.ListIncomes(context.Background(), ListFilter{PeriodKey: "2024-01"})
	if len(list) != 1 {
		t.Fatalf("income not stored: %d", len(list))
	}
}

func TestLedgerCreateRequiresExistingAccount(t *testing.T) {
	svc, _, pub, _ := newLedger(t)
	_, err := svc.CreateExpense(context.Background(), core.Expense{
		AccountID: "ghost", Date: core.NewDate(2024, 1, 1), Description: "x", Amount: core.Money{Cents: 1}, Category: "c",
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(pub.transactions) != 0 {
		t.Fatal("no event expected for a rejected expense")
	}
}

func TestLedgerListExpensesFilters(t *testing.T) {
	svc, store, _, _ := newLedger(t)
	ctx := context.Background()
	mustAccount(store, "a1")
	mustAccount(store, "a2")
	for _, e := range []core.Expense{
		expense("before", "a1", core.NewDate(2023, 12, 22), 1, "Casa"),
		expense("start", "a1", core.NewDate(2023, 12, 23), 1, "Casa"),
		expense("other", "a2", core.NewDate(2024, 1, 5), 1, "Casa"),
		expense("end", "a1", core.NewDate(2024, 1, 22), 1, "Casa"),
		expense("after", "a1", core.NewDate(2024, 1, 23), 1, "Casa"),
	} {
		if err := store.CreateExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filter  ListFilter
		want    []string
		wantErr error
	}{
		{"period", ListFilter{PeriodKey: "2024-01"}, []string{"start", "other", "end"}, nil},
		{"current period by default", ListFilter{}, []string{"start", "other", "end"}, nil},
		{"period and account", ListFilter{PeriodKey: "2024-01", AccountID: "a2"}, []string{"other"}, nil},
		{"open ended range", ListFilter{From: core.NewDate(2024, 1, 22)}, []string{"end", "after"}, nil},
		{"explicit range", ListFilter{From: core.NewDate(2023, 12, 1), To: core.NewDate(2023, 12, 31)}, []string{"before", "start"}, nil},
		{"reversed range", ListFilter{From: core.NewDate(2024, 2, 1), To: core.NewDate(2024, 1, 1)}, nil, ErrInvalidRange},
		{"bad key", ListFilter{PeriodKey: "2024-13"}, nil, period.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListExpenses(ctx, tt.filter)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d expenses, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestLedgerDeleteAccountInUse(t *testing.T) {
	svc, store, _, _ := newLedger(t)
	mustAccount(store, "acc")
	_ = store.CreateExpense(context.Background(), expense("e", "acc", core.NewDate(2024, 1, 1), 1, "c"))
	if err := svc.DeleteAccount(context.Background(), "acc"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
