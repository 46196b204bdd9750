package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

// PeriodInvalidator drops cached data for a financial period.
type PeriodInvalidator interface {
	InvalidatePeriod(periodKey string)
}

// BudgetService manages per-category spending limits for financial periods.
type BudgetService struct {
	repo        ports.BudgetRepository
	invalidator PeriodInvalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewBudgetService(repo ports.BudgetRepository, invalidator PeriodInvalidator, logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.Discard()
	}
	return &BudgetService{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentBudget),
		now:         time.Now,
	}
}

func validateBudget(b core.Budget) (core.Budget, error) {
	b.Category = strings.TrimSpace(b.Category)
	b.PeriodKey = strings.TrimSpace(b.PeriodKey)
	if err := b.Validate(); err != nil {
		return b, err
	}
	if _, _, err := period.ParseKey(b.PeriodKey); err != nil {
		return b, err
	}
	return b, nil
}

// CreateBudget fails with core.ErrConflict when the category already has a
// budget in that period.
func (s *BudgetService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b, err := validateBudget(b)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = newID()
	b.CreatedAt = s.now().UTC()
	if err := s.repo.CreateBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.invalidate(b.PeriodKey)
	s.logger.InfoContext(ctx, "Budget created",
		log.FieldCategory, b.Category,
		log.FieldPeriodKey, b.PeriodKey,
		log.FieldAmountCents, b.Limit.Cents)
	return b, nil
}

func (s *BudgetService) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	current, err := s.repo.GetBudget(ctx, b.ID)
	if err != nil {
		return core.Budget{}, err
	}
	b, err = validateBudget(b)
	if err != nil {
		return core.Budget{}, err
	}
	b.CreatedAt = current.CreatedAt
	if err := s.repo.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	s.invalidate(current.PeriodKey)
	s.invalidate(b.PeriodKey)
	return b, nil
}

func (s *BudgetService) DeleteBudget(ctx context.Context, id string) error {
	b, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.invalidate(b.PeriodKey)
	return nil
}

// ListBudgets returns the budgets of one period, or all budgets when
// periodKey is empty.
func (s *BudgetService) ListBudgets(ctx context.Context, periodKey string) ([]core.Budget, error) {
	if periodKey != "" {
		if _, _, err := period.ParseKey(periodKey); err != nil {
			return nil, err
		}
	}
	return s.repo.ListBudgets(ctx, periodKey)
}

func (s *BudgetService) invalidate(periodKey string) {
	if s.invalidator != nil {
		s.invalidator.InvalidatePeriod(periodKey)
	}
}
