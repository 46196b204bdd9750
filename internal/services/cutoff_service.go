package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
	"ucontrol/internal/ports"
)

// CutoffView is the cutoff configuration together with the period it
// currently puts today in.
type CutoffView struct {
	Config        period.CutoffConfig    `json:"config"`
	CurrentPeriod period.FinancialPeriod `json:"currentPeriod"`
}

// CacheInvalidator drops every cached derived value.
type CacheInvalidator interface {
	InvalidateAll()
}

// CutoffService reads and changes the process-wide default cutoff day.
type CutoffService struct {
	repo        ports.CutoffConfigRepository
	settings    *period.Settings
	invalidator CacheInvalidator
	logger      *log.Logger
	now         func() time.Time

	// mu serializes writers so storage and the in-memory snapshot agree.
	mu sync.Mutex
}

func NewCutoffService(repo ports.CutoffConfigRepository, settings *period.Settings, invalidator CacheInvalidator, logger *log.Logger) *CutoffService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CutoffService{
		repo:        repo,
		settings:    settings,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentCutoff),
		now:         time.Now,
	}
}

// Load replaces the in-memory settings with the persisted configuration. If
// nothing is stored yet, the current settings are saved as the initial row.
func (s *CutoffService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.repo.GetCutoffConfig(ctx)
	switch {
	case errors.Is(err, core.ErrNotFound):
		seed := s.settings.Current()
		if seed.UpdatedAt.IsZero() {
			seed.UpdatedAt = s.now().UTC()
		}
		if err := s.repo.SaveCutoffConfig(ctx, seed); err != nil {
			return fmt.Errorf("seed cutoff config: %w", err)
		}
		s.logger.InfoContext(ctx, "Cutoff config seeded", log.FieldCutoffDay, seed.CutoffDay)
		return s.settings.Replace(seed)
	case err != nil:
		return fmt.Errorf("load cutoff config: %w", err)
	}

	if err := s.settings.Replace(cfg); err != nil {
		return fmt.Errorf("stored cutoff config: %w", err)
	}
	s.logger.InfoContext(ctx, "Cutoff config loaded", log.FieldCutoffDay, cfg.CutoffDay, "is_active", cfg.IsActive)
	return nil
}

// Refresh is the read-only Load used by processes that must not write
// storage. It keeps the current settings when nothing is stored yet and
// reports whether a stored configuration was applied.
func (s *CutoffService) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.repo.GetCutoffConfig(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load cutoff config: %w", err)
	}
	if err := s.settings.Replace(cfg); err != nil {
		return false, fmt.Errorf("stored cutoff config: %w", err)
	}
	return true, nil
}

func (s *CutoffService) Get() CutoffView {
	cfg := s.settings.Current()
	return CutoffView{
		Config:        cfg,
		CurrentPeriod: s.settings.Calculator().CurrentPeriod(s.now()),
	}
}

// Update validates u, persists the result and then swaps the in-memory
// snapshot. An out-of-range cutoff day fails with period.ErrInvalidCutoffDay.
func (s *CutoffService) Update(ctx context.Context, u period.CutoffUpdate) (CutoffView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.settings.Current()
	next := current.Apply(u)
	if err := next.Validate(); err != nil {
		return CutoffView{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.SaveCutoffConfig(ctx, next); err != nil {
		return CutoffView{}, fmt.Errorf("save cutoff config: %w", err)
	}
	if err := s.settings.Replace(next); err != nil {
		return CutoffView{}, err
	}
	if next.CutoffDay != current.CutoffDay && s.invalidator != nil {
		s.invalidator.InvalidateAll()
	}

	s.logger.InfoContext(ctx, "Cutoff config updated",
		log.FieldCutoffDay, next.CutoffDay,
		"previous_cutoff_day", current.CutoffDay,
		"is_active", next.IsActive)
	return s.Get(), nil
}

// Periods lists the periods between start and end under the current
// default cutoff. A reversed range yields no periods.
func (s *CutoffService) Periods(start, end core.Date) []period.FinancialPeriod {
	periods := s.settings.Calculator().PeriodsBetween(start, end)
	if periods == nil {
		return []period.FinancialPeriod{}
	}
	return periods
}

// CheckDate reports whether d falls inside the period named periodKey.
func (s *CutoffService) CheckDate(d core.Date, periodKey string) (bool, error) {
	p, err := s.settings.Calculator().PeriodForKey(periodKey)
	if err != nil {
		return false, err
	}
	return period.IsDateInPeriod(d, p), nil
}
