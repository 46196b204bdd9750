package period

import (
	"sync/atomic"
	"time"
)

// CutoffConfig is the process-wide cutoff configuration.
type CutoffConfig struct {
	CutoffDay int       `json:"cutoffDay"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CutoffUpdate carries a partial update; nil fields are left unchanged.
type CutoffUpdate struct {
	CutoffDay *int  `json:"cutoffDay,omitempty"`
	IsActive  *bool `json:"isActive,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is persisted.
func DefaultConfig() CutoffConfig {
	return CutoffConfig{CutoffDay: DefaultCutoffDay, IsActive: true}
}

func (c CutoffConfig) Validate() error {
	return ValidateCutoffDay(c.CutoffDay)
}

// Calculator returns a calculator for the configured cutoff day.
func (c CutoffConfig) Calculator() (Calculator, error) {
	return New(c.CutoffDay)
}

// Apply returns a copy of c with the update applied. The result is not
// validated.
func (c CutoffConfig) Apply(u CutoffUpdate) CutoffConfig {
	if u.CutoffDay != nil {
		c.CutoffDay = *u.CutoffDay
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	return c
}

// Settings holds the current default CutoffConfig as an immutable snapshot.
// Reads never block; writers replace the whole snapshot.
type Settings struct {
	current atomic.Pointer[CutoffConfig]
}

// NewSettings returns Settings holding cfg, which must be valid.
func NewSettings(cfg CutoffConfig) (*Settings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Settings{}
	s.current.Store(&cfg)
	return s, nil
}

// Current returns the current configuration snapshot.
func (s *Settings) Current() CutoffConfig {
	return *s.current.Load()
}

// Calculator returns a calculator for the current default cutoff day.
func (s *Settings) Calculator() Calculator {
	return Calculator{cutoffDay: s.Current().CutoffDay}
}

// SetCutoffDay replaces the default cutoff day. Out-of-range values fail with
// ErrInvalidCutoffDay and leave the settings untouched.
func (s *Settings) SetCutoffDay(day int) error {
	_, err := s.Update(CutoffUpdate{CutoffDay: &day})
	return err
}

// Update applies u and stores the result as the new snapshot.
func (s *Settings) Update(u CutoffUpdate) (CutoffConfig, error) {
	for {
		old := s.current.Load()
		next := old.Apply(u)
		if err := next.Validate(); err != nil {
			return *old, err
		}
		next.UpdatedAt = time.Now().UTC()
		if s.current.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}

// Replace stores cfg as the new snapshot, e.g. after loading it from storage.
func (s *Settings) Replace(cfg CutoffConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(&cfg)
	return nil
}
