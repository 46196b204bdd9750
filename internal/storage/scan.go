package storage

import (
	"fmt"
	"time"

	"ucontrol/internal/core"
)

type scanner interface {
	Scan(dest ...any) error
}

// dateColumn reads a calendar date stored as TEXT (SQLite) or DATE (Postgres).
type dateColumn struct {
	core.Date
}

func (d *dateColumn) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = core.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date column type %T", src)
	}
}

func (d *dateColumn) parse(s string) error {
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	parsed, err := core.ParseDate(s)
	if err != nil {
		return err
	}
	d.Date = parsed
	return nil
}

// timeColumn reads timestamps that drivers may hand back as text.
type timeColumn struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timeColumn) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case nil:
		t.Time = time.Time{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported timestamp column type %T", src)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func scanAccount(row scanner) (core.Account, error) {
	var (
		a       core.Account
		typ     string
		balance int64
		created timeColumn
	)
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.Currency, &balance, &a.IsActive, &created); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.InitialBalance = core.Money{Cents: balance}
	a.CreatedAt = created.Time
	return a, nil
}

func scanIncome(row scanner) (core.Income, error) {
	var (
		in      core.Income
		date    dateColumn
		cents   int64
		created timeColumn
	)
	if err := row.Scan(&in.ID, &in.AccountID, &date, &in.Description, &cents, &in.Category, &created); err != nil {
		return core.Income{}, err
	}
	in.Date = date.Date
	in.Amount = core.Money{Cents: cents}
	in.CreatedAt = created.Time
	return in, nil
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e       core.Expense
		date    dateColumn
		cents   int64
		created timeColumn
	)
	if err := row.Scan(&e.ID, &e.AccountID, &date, &e.Description, &cents, &e.Category, &e.Subcategory, &created); err != nil {
		return core.Expense{}, err
	}
	e.Date = date.Date
	e.Amount = core.Money{Cents: cents}
	e.CreatedAt = created.Time
	return e, nil
}

func scanBudget(row scanner) (core.Budget, error) {
	var (
		b       core.Budget
		cents   int64
		created timeColumn
	)
	if err := row.Scan(&b.ID, &b.Category, &b.PeriodKey, &cents, &created); err != nil {
		return core.Budget{}, err
	}
	b.Limit = core.Money{Cents: cents}
	b.CreatedAt = created.Time
	return b, nil
}
