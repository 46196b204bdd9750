// Package worker consumes ledger events and mirrors them into the external
// ledger.
package worker

import (
	"context"
	"errors"
	"fmt"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

type transactionReader interface {
	GetIncome(ctx context.Context, id string) (core.Income, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListIncomes(ctx context.Context, f ports.TransactionFilter) ([]core.Income, error)
	ListExpenses(ctx context.Context, f ports.TransactionFilter) ([]core.Expense, error)
}

// SyncWorker appends every booked or deleted transaction to the ledger
// exporter. Deletions become reversal rows; rows are never removed.
type SyncWorker struct {
	repo     transactionReader
	exporter ports.LedgerExporter
	logger   *log.Logger
}

func NewSyncWorker(repo transactionReader, exporter ports.LedgerExporter, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		repo:     repo,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleTransaction processes one event. A returned error requeues the
// message.
func (w *SyncWorker) HandleTransaction(ctx context.Context, ev *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing transaction event",
		log.FieldEventType, ev.Type,
		log.FieldKind, string(ev.Kind),
		log.FieldTransactionID, ev.ID)

	if ev.Kind != core.KindIncome && ev.Kind != core.KindExpense {
		w.logger.WarnContext(ctx, "Ignoring event with unknown transaction kind",
			log.FieldEventType, ev.Type,
			log.FieldKind, string(ev.Kind),
			log.FieldTransactionID, ev.ID)
		return nil
	}

	switch ev.Type {
	case amqp.EventTransactionCreated:
		return w.handleCreated(ctx, ev)
	case amqp.EventTransactionDeleted:
		return w.handleDeleted(ctx, ev)
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type", log.FieldEventType, ev.Type)
		return nil
	}
}

// handleCreated reloads the entry so the ledger reflects what was stored.
// An entry already deleted is booked from the event snapshot so its
// reversal, which follows, cancels it.
func (w *SyncWorker) handleCreated(ctx context.Context, ev *amqp.TransactionEvent) error {
	state, err := w.exporter.EntryState(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("read ledger state of %s: %w", ev.ID, err)
	}
	if state.Booked {
		w.logger.InfoContext(ctx, "Transaction already booked, skipping", log.FieldTransactionID, ev.ID)
		return nil
	}

	fresh := ev
	switch ev.Kind {
	case core.KindIncome:
		var in core.Income
		if in, err = w.repo.GetIncome(ctx, ev.ID); err == nil {
			fresh = amqp.NewIncomeEvent(ev.Type, in, ev.PeriodKey)
		}
	case core.KindExpense:
		var e core.Expense
		if e, err = w.repo.GetExpense(ctx, ev.ID); err == nil {
			fresh = amqp.NewExpenseEvent(ev.Type, e, ev.PeriodKey)
		}
	}
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Transaction no longer exists, booking event snapshot", log.FieldTransactionID, ev.ID)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", ev.Kind, ev.ID, err)
	}
	return w.export(ctx, fresh)
}

// handleDeleted appends a reversal only for entries the ledger booked, once.
func (w *SyncWorker) handleDeleted(ctx context.Context, ev *amqp.TransactionEvent) error {
	state, err := w.exporter.EntryState(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("read ledger state of %s: %w", ev.ID, err)
	}
	switch {
	case state.Reversed:
		w.logger.InfoContext(ctx, "Transaction already reversed, skipping", log.FieldTransactionID, ev.ID)
		return nil
	case !state.Booked:
		w.logger.WarnContext(ctx, "Transaction was never booked, skipping reversal", log.FieldTransactionID, ev.ID)
		return nil
	}
	return w.export(ctx, ev)
}

func (w *SyncWorker) export(ctx context.Context, ev *amqp.TransactionEvent) error {
	ref, err := w.exporter.AppendEntry(ctx, ev)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}
	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldEventType, ev.Type,
		log.FieldTransactionID, ev.ID,
		log.FieldPeriodKey, ev.PeriodKey,
		log.FieldAmountCents, ev.Amount.Cents,
		"ledger_ref", ref)
	return nil
}

// ExportPeriod appends every entry of p the ledger has not booked yet,
// incomes first. It is used to seed a fresh ledger and returns the number of
// rows written.
func (w *SyncWorker) ExportPeriod(ctx context.Context, p period.FinancialPeriod) (int, error) {
	filter := ports.TransactionFilter{}.ForPeriod(p)
	incomes, err := w.repo.ListIncomes(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list incomes: %w", err)
	}
	expenses, err := w.repo.ListExpenses(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}

	events := make([]*amqp.TransactionEvent, 0, len(incomes)+len(expenses))
	for _, in := range incomes {
		events = append(events, amqp.NewIncomeEvent(amqp.EventTransactionCreated, in, p.PeriodKey))
	}
	for _, e := range expenses {
		events = append(events, amqp.NewExpenseEvent(amqp.EventTransactionCreated, e, p.PeriodKey))
	}

	written := 0
	for _, ev := range events {
		state, err := w.exporter.EntryState(ctx, ev.ID)
		if err != nil {
			return written, fmt.Errorf("read ledger state of %s: %w", ev.ID, err)
		}
		if state.Booked {
			continue
		}
		if err := w.export(ctx, ev); err != nil {
			return written, err
		}
		written++
	}
	w.logger.InfoContext(ctx, "Period exported", log.FieldPeriodKey, p.PeriodKey, "rows", written)
	return written, nil
}
