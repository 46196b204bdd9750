package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

// ErrInvalidRange is returned when a listing's start date is after its end.
var ErrInvalidRange = fmt.Errorf("%w: startDate must not be after endDate", period.ErrInvalidArgument)

// ListFilter selects transactions either by financial period or by an
// explicit date range. When neither is set the current period is used.
type ListFilter struct {
	PeriodKey string
	From      core.Date
	To        core.Date
	AccountID string
	Category  string
}

// Invalidator is notified when data behind cached summaries changes.
type Invalidator interface {
	InvalidateDate(d core.Date)
}

type ledgerRepository interface {
	ports.AccountRepository
	ports.IncomeRepository
	ports.ExpenseRepository
}

// LedgerService manages accounts and the incomes and expenses booked on them.
// The local write is the source of truth: event publishing failures are
// logged and never fail the request.
type LedgerService struct {
	repo        ledgerRepository
	settings    *period.Settings
	publisher   ports.EventPublisher
	invalidator Invalidator
	logger      *log.Logger
	now         func() time.Time
}

type LedgerOption func(*LedgerService)

func WithPublisher(p ports.EventPublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

func WithInvalidator(inv Invalidator) LedgerOption {
	return func(s *LedgerService) { s.invalidator = inv }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(repo ledgerRepository, settings *period.Settings, logger *log.Logger, opts ...LedgerOption) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &LedgerService{
		repo:     repo,
		settings: settings,
		logger:   logger.WithComponent(log.ComponentLedger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string {
	return ulid.Make().String()
}

// Accounts

func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.ID = newID()
	a.CreatedAt = s.now().UTC()
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldAccountID, a.ID, "type", string(a.Type))
	return a, nil
}

// UpdateAccount replaces the mutable fields of an existing account.
func (s *LedgerService) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	current, err := s.repo.GetAccount(ctx, a.ID)
	if err != nil {
		return core.Account{}, err
	}
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.CreatedAt = current.CreatedAt
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return s.repo.ListAccounts(ctx)
}

// DeleteAccount fails with core.ErrConflict while transactions reference it.
func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// requireAccount turns a missing account into a validation error so that a
// bad accountId in a request body reads as 422, not 404.
func (s *LedgerService) requireAccount(ctx context.Context, id string) error {
	if _, err := s.repo.GetAccount(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: account %s does not exist", core.ErrValidation, id)
		}
		return err
	}
	return nil
}

// Incomes

func (s *LedgerService) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := s.requireAccount(ctx, in.AccountID); err != nil {
		return core.Income{}, err
	}
	in.ID = newID()
	in.CreatedAt = s.now().UTC()
	if err := s.repo.CreateIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}

	key := s.settings.Calculator().PeriodForDate(in.Date).PeriodKey
	log.NewStructuredLogger(s.logger).LogTransactionCreated(ctx, string(core.KindIncome), in.ID, in.AccountID, in.Amount.Cents, in.Category, key)
	s.changed(in.Date)
	s.publish(ctx, amqp.NewIncomeEvent(amqp.EventTransactionCreated, in, key))
	return in, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id string) error {
	in, err := s.repo.GetIncome(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteIncome(ctx, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	key := s.settings.Calculator().PeriodForDate(in.Date).PeriodKey
	s.changed(in.Date)
	s.publish(ctx, amqp.NewIncomeEvent(amqp.EventTransactionDeleted, in, key))
	return nil
}

func (s *LedgerService) ListIncomes(ctx context.Context, f ListFilter) ([]core.Income, error) {
	tf, err := s.resolve(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListIncomes(ctx, tf)
}

// Expenses

func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.requireAccount(ctx, e.AccountID); err != nil {
		return core.Expense{}, err
	}
	e.ID = newID()
	e.CreatedAt = s.now().UTC()
	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	key := s.settings.Calculator().PeriodForDate(e.Date).PeriodKey
	log.NewStructuredLogger(s.logger).LogTransactionCreated(ctx, string(core.KindExpense), e.ID, e.AccountID, e.Amount.Cents, e.Category, key)
	s.changed(e.Date)
	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventTransactionCreated, e, key))
	return e, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	key := s.settings.Calculator().PeriodForDate(e.Date).PeriodKey
	s.changed(e.Date)
	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventTransactionDeleted, e, key))
	return nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, f ListFilter) ([]core.Expense, error) {
	tf, err := s.resolve(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, tf)
}

// resolve maps a ListFilter onto a concrete date range.
func (s *LedgerService) resolve(f ListFilter) (ports.TransactionFilter, error) {
	tf := ports.TransactionFilter{AccountID: f.AccountID, Category: f.Category}
	calc := s.settings.Calculator()

	switch {
	case f.PeriodKey != "":
		p, err := calc.PeriodForKey(f.PeriodKey)
		if err != nil {
			return tf, err
		}
		return tf.ForPeriod(p), nil
	case !f.From.IsZero() || !f.To.IsZero():
		if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
			return tf, ErrInvalidRange
		}
		tf.From, tf.To = f.From, f.To
		return tf, nil
	default:
		return tf.ForPeriod(calc.CurrentPeriod(s.now())), nil
	}
}

func (s *LedgerService) changed(d core.Date) {
	if s.invalidator != nil {
		s.invalidator.InvalidateDate(d)
	}
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.TransactionEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping event", log.FieldEventType, ev.Type)
		return
	}
	if err := s.publisher.PublishTransaction(ctx, ev); err != nil {
		s.logger.LogError(ctx, "Failed to publish transaction event", err, log.ErrorTypeNetwork,
			log.FieldEventType, ev.Type,
			log.FieldTransactionID, ev.ID)
	}
}
