package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
	"ucontrol/internal/storage/memory"
)

type fakePublisher struct {
	mu           sync.Mutex
	transactions []*amqp.TransactionEvent
	closed       []*amqp.PeriodClosedEvent
	err          error
}

func (f *fakePublisher) PublishTransaction(_ context.Context, ev *amqp.TransactionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.transactions = append(f.transactions, ev)
	return nil
}

func (f *fakePublisher) PublishPeriodClosed(_ context.Context, ev *amqp.PeriodClosedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.closed = append(f.closed, ev)
	return nil
}

type fakeArchiver struct {
	objects map[string][]byte
	err     error
}

func (f *fakeArchiver) Put(_ context.Context, key string, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = body
	return nil
}

type recordingInvalidator struct {
	dates   []core.Date
	periods []string
	all     int
}

func (r *recordingInvalidator) InvalidateDate(d core.Date)   { r.dates = append(r.dates, d) }
func (r *recordingInvalidator) InvalidatePeriod(key string) { r.periods = append(r.periods, key) }
func (r *recordingInvalidator) InvalidateAll()              { r.all++ }

// countingRepo counts list calls so cache hits can be observed.
type countingRepo struct {
	*memory.Store
	mu    sync.Mutex
	lists int
	fail  error
	// during runs inside each ListExpenses call, before the store is read.
	during func()
}

func (c *countingRepo) ListExpenses(ctx context.Context, f ports.TransactionFilter) ([]core.Expense, error) {
	c.mu.Lock()
	c.lists++
	fail, during := c.fail, c.during
	c.mu.Unlock()
	if during != nil {
		during()
	}
	if fail != nil {
		return nil, fail
	}
	return c.Store.ListExpenses(ctx, f)
}

type failingCutoffRepo struct{}

func (failingCutoffRepo) GetCutoffConfig(context.Context) (period.CutoffConfig, error) {
	return period.CutoffConfig{}, errors.New("db down")
}

func (failingCutoffRepo) SaveCutoffConfig(context.Context, period.CutoffConfig) error {
	return errors.New("db down")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newSettings(day int) *period.Settings {
	s, err := period.NewSettings(period.CutoffConfig{CutoffDay: day, IsActive: true})
	if err != nil {
		panic(err)
	}
	return s
}

func mustAccount(store *memory.Store, id string) {
	err := store.CreateAccount(context.Background(), core.Account{
		ID: id, Name: "Cuenta " + id, Type: core.AccountChecking, Currency: "MXN", IsActive: true,
	})
	if err != nil {
		panic(err)
	}
}

func expense(id, account string, d core.Date, cents int64, category string) core.Expense {
	return core.Expense{ID: id, AccountID: account, Date: d, Description: "gasto " + id, Amount: core.Money{Cents: cents}, Category: category}
}
