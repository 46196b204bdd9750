package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ucontrol/internal/cache"
	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

const summaryCacheSize = 64

// PeriodSummary aggregates one financial period.
type PeriodSummary struct {
	Period             period.FinancialPeriod `json:"period"`
	CutoffDay          int                    `json:"cutoffDay"`
	TotalIncome        core.Money             `json:"totalIncome"`
	TotalExpense       core.Money             `json:"totalExpense"`
	Net                core.Money             `json:"net"`
	IncomeCount        int                    `json:"incomeCount"`
	ExpenseCount       int                    `json:"expenseCount"`
	IncomesByCategory  []core.CategoryAmount  `json:"incomesByCategory"`
	ExpensesByCategory []core.CategoryAmount  `json:"expensesByCategory"`
	Budgets            []core.BudgetUsage     `json:"budgets"`

	// Entries are kept for statement rendering and never serialized.
	Incomes  []core.Income  `json:"-"`
	Expenses []core.Expense `json:"-"`
}

type summaryRepository interface {
	ports.IncomeRepository
	ports.ExpenseRepository
	ports.BudgetRepository
}

// SummaryService computes period summaries and caches them per cutoff day
// and period key.
type SummaryService struct {
	repo     summaryRepository
	settings *period.Settings
	cache    *cache.LRUCache[PeriodSummary]
	logger   *log.Logger
	now      func() time.Time

	// generation is bumped by every invalidation; a load that raced one is
	// returned but not cached.
	generation atomic.Uint64
}

func NewSummaryService(repo summaryRepository, settings *period.Settings, ttl time.Duration, logger *log.Logger) *SummaryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryService{
		repo:     repo,
		settings: settings,
		cache:    cache.NewLRUCache[PeriodSummary](summaryCacheSize, ttl),
		logger:   logger.WithComponent(log.ComponentSummary),
		now:      time.Now,
	}
}

// Cache exposes the summary cache so it can be registered for sweeping.
func (s *SummaryService) Cache() *cache.LRUCache[PeriodSummary] {
	return s.cache
}

func cacheKey(cutoffDay int, periodKey string) string {
	return strconv.Itoa(cutoffDay) + ":" + periodKey
}

func splitCacheKey(key string) (int, string, bool) {
	day, periodKey, ok := strings.Cut(key, ":")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(day)
	if err != nil {
		return 0, "", false
	}
	return n, periodKey, true
}

// Summary returns the summary of periodKey under the current default cutoff.
// An empty key selects the current period.
func (s *SummaryService) Summary(ctx context.Context, periodKey string) (PeriodSummary, error) {
	calc := s.settings.Calculator()
	var p period.FinancialPeriod
	if periodKey == "" {
		p = calc.CurrentPeriod(s.now())
	} else {
		var err error
		if p, err = calc.PeriodForKey(periodKey); err != nil {
			return PeriodSummary{}, err
		}
	}
	return s.SummaryFor(ctx, calc, p)
}

// SummaryFor computes (or returns the cached) summary of p under calc.
func (s *SummaryService) SummaryFor(ctx context.Context, calc period.Calculator, p period.FinancialPeriod) (PeriodSummary, error) {
	key := cacheKey(calc.CutoffDay(), p.PeriodKey)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}
	gen := s.generation.Load()

	var (
		incomes  []core.Income
		expenses []core.Expense
		budgets  []core.Budget
	)
	filter := ports.TransactionFilter{}.ForPeriod(p)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = s.repo.ListIncomes(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		budgets, err = s.repo.ListBudgets(gctx, p.PeriodKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return PeriodSummary{}, fmt.Errorf("load period %s: %w", p.PeriodKey, err)
	}

	summary := Summarize(p, incomes, expenses, budgets)
	summary.CutoffDay = calc.CutoffDay()
	if s.generation.Load() == gen {
		s.cache.Set(key, summary)
	}

	s.logger.DebugContext(ctx, "Summary computed",
		log.FieldPeriodKey, p.PeriodKey,
		log.FieldCutoffDay, calc.CutoffDay(),
		"incomes", len(incomes),
		"expenses", len(expenses))
	return summary, nil
}

// Summarize aggregates entries that are already known to belong to p.
func Summarize(p period.FinancialPeriod, incomes []core.Income, expenses []core.Expense, budgets []core.Budget) PeriodSummary {
	sum := PeriodSummary{
		Period:       p,
		IncomeCount:  len(incomes),
		ExpenseCount: len(expenses),
		Incomes:      incomes,
		Expenses:     expenses,
	}

	incomeByCat := map[string]core.Money{}
	for _, in := range incomes {
		sum.TotalIncome = sum.TotalIncome.Add(in.Amount)
		incomeByCat[in.Category] = incomeByCat[in.Category].Add(in.Amount)
	}
	expenseByCat := map[string]core.Money{}
	for _, e := range expenses {
		sum.TotalExpense = sum.TotalExpense.Add(e.Amount)
		expenseByCat[e.Category] = expenseByCat[e.Category].Add(e.Amount)
	}
	sum.Net = sum.TotalIncome.Sub(sum.TotalExpense)
	sum.IncomesByCategory = byAmount(incomeByCat)
	sum.ExpensesByCategory = byAmount(expenseByCat)

	sum.Budgets = make([]core.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		sum.Budgets = append(sum.Budgets, core.NewBudgetUsage(b, expenseByCat[b.Category]))
	}
	return sum
}

// byAmount sorts categories by descending amount, then name.
func byAmount(m map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(m))
	for name, amount := range m {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// InvalidateDate drops every cached summary whose period contains d.
func (s *SummaryService) InvalidateDate(d core.Date) {
	s.generation.Add(1)
	s.cache.DeleteFunc(func(key string) bool {
		day, periodKey, ok := splitCacheKey(key)
		if !ok {
			return true
		}
		p, err := period.PeriodForDate(day, d)
		return err != nil || p.PeriodKey == periodKey
	})
}

// InvalidatePeriod drops cached summaries of periodKey for every cutoff day.
func (s *SummaryService) InvalidatePeriod(periodKey string) {
	s.generation.Add(1)
	s.cache.DeleteFunc(func(key string) bool {
		return strings.HasSuffix(key, ":"+periodKey)
	})
}

// InvalidateAll empties the cache, e.g. after the cutoff day changes.
func (s *SummaryService) InvalidateAll() {
	s.generation.Add(1)
	s.cache.Purge()
}
