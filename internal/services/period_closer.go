package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ucontrol/internal/amqp"
	"ucontrol/internal/archive"
	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

// PeriodCloser finalizes a financial period the day after it ends: it
// archives a statement and announces the closed period.
type PeriodCloser struct {
	settings  *period.Settings
	summaries *SummaryService
	publisher ports.EventPublisher
	archiver  ports.StatementArchiver
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed map[string]bool
}

// NewPeriodCloser builds a closer. publisher and archiver are optional.
func NewPeriodCloser(settings *period.Settings, summaries *SummaryService, publisher ports.EventPublisher, archiver ports.StatementArchiver, logger *log.Logger) *PeriodCloser {
	if logger == nil {
		logger = log.Discard()
	}
	return &PeriodCloser{
		settings:  settings,
		summaries: summaries,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger.WithComponent(log.ComponentCloser),
		now:       time.Now,
		closed:    map[string]bool{},
	}
}

// Run is the scheduled entry point.
func (c *PeriodCloser) Run(ctx context.Context) error {
	_, err := c.CloseIfDue(ctx, c.now())
	return err
}

// CloseIfDue closes the previous period when now falls anywhere on the first
// day of a period and the cutoff config is active. Later days never close. It reports whether a period was
// closed; a period is closed at most once per process.
func (c *PeriodCloser) CloseIfDue(ctx context.Context, now time.Time) (bool, error) {
	cfg := c.settings.Current()
	if !cfg.IsActive {
		c.logger.DebugContext(ctx, "Cutoff config inactive, skipping period close")
		return false, nil
	}
	calc := c.settings.Calculator()
	today := core.DateOf(now)
	current := calc.PeriodForDate(today)
	if !today.Equal(current.PeriodStart) {
		return false, nil
	}
	return c.Close(ctx, calc, calc.Previous(current))
}

// ClosePeriod closes the named period under the current cutoff regardless of
// the date. Used for manual backfills.
func (c *PeriodCloser) ClosePeriod(ctx context.Context, periodKey string) (bool, error) {
	calc := c.settings.Calculator()
	p, err := calc.PeriodForKey(periodKey)
	if err != nil {
		return false, err
	}
	return c.Close(ctx, calc, p)
}

// Close archives and announces p. Archive failures abort the close so the
// next run retries; publish failures are only logged.
func (c *PeriodCloser) Close(ctx context.Context, calc period.Calculator, p period.FinancialPeriod) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	marker := cacheKey(calc.CutoffDay(), p.PeriodKey)
	if c.closed[marker] {
		return false, nil
	}

	summary, err := c.summaries.SummaryFor(ctx, calc, p)
	if err != nil {
		return false, fmt.Errorf("summarize %s: %w", p.PeriodKey, err)
	}

	var archiveKey string
	if c.archiver != nil {
		body, err := archive.RenderStatement(p, summary.Incomes, summary.Expenses)
		if err != nil {
			return false, fmt.Errorf("render statement %s: %w", p.PeriodKey, err)
		}
		archiveKey = archive.StatementKey(p, calc.CutoffDay())
		if err := c.archiver.Put(ctx, archiveKey, body, archive.ContentTypeCSV); err != nil {
			return false, fmt.Errorf("archive statement %s: %w", p.PeriodKey, err)
		}
	}

	if c.publisher != nil {
		ev := &amqp.PeriodClosedEvent{
			Type:         amqp.EventPeriodClosed,
			PeriodKey:    p.PeriodKey,
			CutoffDay:    calc.CutoffDay(),
			PeriodStart:  p.PeriodStart,
			PeriodEnd:    p.PeriodEnd,
			TotalIncome:  summary.TotalIncome,
			TotalExpense: summary.TotalExpense,
			Net:          summary.Net,
			ArchiveKey:   archiveKey,
			Timestamp:    c.now().UTC(),
		}
		if err := c.publisher.PublishPeriodClosed(ctx, ev); err != nil {
			c.logger.LogError(ctx, "Failed to publish period closed event", err, log.ErrorTypeNetwork,
				log.FieldPeriodKey, p.PeriodKey)
		}
	}

	c.closed[marker] = true
	c.logger.InfoContext(ctx, "Period closed",
		log.FieldPeriodKey, p.PeriodKey,
		log.FieldCutoffDay, calc.CutoffDay(),
		"net_cents", summary.Net.Cents,
		"archive_key", archiveKey)
	return true, nil
}
