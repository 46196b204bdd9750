package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestNewDateNormalizes(t *testing.T) {
	d := NewDate(2024, 2, 31)
	if d.String() != "2024-03-02" {
		t.Fatalf("expected 2024-03-02, got %s", d)
	}
	d = NewDate(2024, 0, 15)
	if d.String() != "2023-12-15" {
		t.Fatalf("expected 2023-12-15, got %s", d)
	}
}

func TestDateOfUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 1, 22, 23, 30, 0, 0, loc)
	if got := DateOf(ts).String(); got != "2024-01-22" {
		t.Fatalf("DateOf = %s, want 2024-01-22", got)
	}
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-01-23"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.D.Equal(NewDate(2024, 1, 23)) {
		t.Fatalf("got %s", payload.D)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"d":"2024-01-23"}` {
		t.Fatalf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`{"d":"23/01/2024"}`), &payload); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestAccountValidate(t *testing.T) {
	good := Account{Name: "Nómina", Type: AccountChecking, Currency: "MXN"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Account{
		{Name: "", Type: AccountChecking, Currency: "MXN"},
		{Name: "x", Type: "wallet", Currency: "MXN"},
		{Name: "x", Type: AccountCash, Currency: "mxn"},
		{Name: "x", Type: AccountCash, Currency: "PESO"},
		{Name: strings.Repeat("a", 101), Type: AccountCash, Currency: "EUR"},
	}
	for i, a := range bads {
		err := a.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		AccountID:   "acc",
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      Money{Cents: 100},
		Category:    "Cat",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{AccountID: "acc", Date: Date{}, Description: "a", Amount: Money{Cents: 1}, Category: "c"},
		{AccountID: "acc", Date: NewDate(2025, 1, 1), Description: "", Amount: Money{Cents: 1}, Category: "c"},
		{AccountID: "acc", Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 0}, Category: "c"},
		{AccountID: "acc", Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Category: ""},
		{AccountID: "", Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Category: "c"},
		{AccountID: "acc", Date: NewDate(2025, 1, 1), Description: strings.Repeat("x", 201), Amount: Money{Cents: 1}, Category: "c"},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestIncomeValidate(t *testing.T) {
	good := Income{AccountID: "acc", Date: NewDate(2025, 1, 15), Description: "Salario", Amount: Money{Cents: 2500000}, Category: "Sueldo"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.Category = " "
	if err := bad.Validate(); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
}

func TestBudgetUsage(t *testing.T) {
	b := Budget{Category: "Comida", PeriodKey: "2024-02", Limit: Money{Cents: 10000}}
	u := NewBudgetUsage(b, Money{Cents: 12500})
	if !u.Exceeded || u.Remaining.Cents != -2500 {
		t.Fatalf("unexpected usage %+v", u)
	}
	u = NewBudgetUsage(b, Money{Cents: 10000})
	if u.Exceeded || u.Remaining.Cents != 0 {
		t.Fatalf("unexpected usage %+v", u)
	}
}
