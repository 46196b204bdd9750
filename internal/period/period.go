// Package period computes financial periods anchored on a cutoff day.
//
// A financial period is named after the month in which it closes: with a
// cutoff day of 23, period "2024-02" runs from 2024-01-23 to 2024-02-22. A date
// on or after the cutoff day of its month already belongs to the next month's
// period. Every function here is pure; the cutoff day is always passed in
// explicitly, and the process-wide default lives in Settings.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ucontrol/internal/core"
)

const (
	DefaultCutoffDay = 23
	MinCutoffDay     = 1
	MaxCutoffDay     = 31

	// KeyLayout is the time layout of a period key ("YYYY-MM").
	KeyLayout = "2006-01"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidCutoffDay = fmt.Errorf("%w: cutoff day must be between %d and %d", ErrInvalidArgument, MinCutoffDay, MaxCutoffDay)
	ErrInvalidPeriodKey = fmt.Errorf("%w: period key must have the form YYYY-MM", ErrInvalidArgument)
)

// FinancialPeriod is one named span of calendar dates. Bounds are inclusive.
type FinancialPeriod struct {
	FinancialMonth int       `json:"financialMonth"`
	FinancialYear  int       `json:"financialYear"`
	PeriodStart    core.Date `json:"periodStart"`
	PeriodEnd      core.Date `json:"periodEnd"`
	PeriodKey      string    `json:"periodKey"`
}

// Contains reports whether d falls inside the period, both ends included.
func (p FinancialPeriod) Contains(d core.Date) bool {
	return !d.Before(p.PeriodStart) && !d.After(p.PeriodEnd)
}

// Days returns the number of calendar days in the period.
func (p FinancialPeriod) Days() int {
	return int(p.PeriodEnd.Sub(p.PeriodStart.Time).Hours()/24) + 1
}

func (p FinancialPeriod) String() string {
	return fmt.Sprintf("%s [%s, %s]", p.PeriodKey, p.PeriodStart, p.PeriodEnd)
}

// ValidateCutoffDay returns ErrInvalidCutoffDay unless 1 <= day <= 31.
func ValidateCutoffDay(day int) error {
	if day < MinCutoffDay || day > MaxCutoffDay {
		return ErrInvalidCutoffDay
	}
	return nil
}

// Calculator maps dates to financial periods for one validated cutoff day.
// The zero value is not usable; build one with New.
type Calculator struct {
	cutoffDay int
}

// New returns a Calculator for the given cutoff day.
func New(cutoffDay int) (Calculator, error) {
	if err := ValidateCutoffDay(cutoffDay); err != nil {
		return Calculator{}, err
	}
	return Calculator{cutoffDay: cutoffDay}, nil
}

// CutoffDay returns the configured cutoff day.
func (c Calculator) CutoffDay() int {
	return c.cutoffDay
}

// CurrentPeriod returns the period containing the calendar date of now.
func (c Calculator) CurrentPeriod(now time.Time) FinancialPeriod {
	return c.PeriodForDate(core.DateOf(now))
}

// PeriodForDate returns the period containing d. Dates on or after the cutoff
// day of their month belong to the following month's period.
func (c Calculator) PeriodForDate(d core.Date) FinancialPeriod {
	year, month := d.Year(), time.Month(d.Month())
	if d.Day() >= c.cutoffIn(year, month) {
		year, month = addMonths(year, month, 1)
	}
	return c.build(year, month)
}

// PeriodForKey rebuilds the period named by a "YYYY-MM" key.
func (c Calculator) PeriodForKey(key string) (FinancialPeriod, error) {
	year, month, err := ParseKey(key)
	if err != nil {
		return FinancialPeriod{}, err
	}
	return c.build(year, month), nil
}

// Next returns the period immediately after p.
func (c Calculator) Next(p FinancialPeriod) FinancialPeriod {
	year, month := addMonths(p.FinancialYear, time.Month(p.FinancialMonth), 1)
	return c.build(year, month)
}

// Previous returns the period immediately before p.
func (c Calculator) Previous(p FinancialPeriod) FinancialPeriod {
	year, month := addMonths(p.FinancialYear, time.Month(p.FinancialMonth), -1)
	return c.build(year, month)
}

// PeriodsBetween lists the periods met while stepping one calendar month at a
// time from start to end, in chronological order and without duplicates.
// Every period between the first and the last one met is included, so short
// months never leave a gap. An end before start yields no periods.
func (c Calculator) PeriodsBetween(start, end core.Date) []FinancialPeriod {
	if end.Before(start) {
		return nil
	}
	first := c.PeriodForDate(start)
	last := c.PeriodForDate(lastMonthlyStep(start, end))

	periods := []FinancialPeriod{first}
	for p := first; p.PeriodStart.Before(last.PeriodStart); {
		p = c.Next(p)
		periods = append(periods, p)
	}
	return periods
}

// build assembles the period closing in the given financial month. It starts
// on the cutoff of the preceding month and ends the day before this month's
// cutoff.
func (c Calculator) build(year int, month time.Month) FinancialPeriod {
	prevYear, prevMonth := addMonths(year, month, -1)
	start := core.NewDate(prevYear, int(prevMonth), c.cutoffIn(prevYear, prevMonth))
	end := core.NewDate(year, int(month), c.cutoffIn(year, month)).AddDays(-1)
	return FinancialPeriod{
		FinancialMonth: int(month),
		FinancialYear:  year,
		PeriodStart:    start,
		PeriodEnd:      end,
		PeriodKey:      FormatKey(year, month),
	}
}

// cutoffIn returns the effective cutoff day of a month, clamped to its length.
func (c Calculator) cutoffIn(year int, month time.Month) int {
	return min(c.cutoffDay, daysIn(year, month))
}

// CurrentPeriod returns the period containing referenceDate's calendar date.
func CurrentPeriod(cutoffDay int, referenceDate time.Time) (FinancialPeriod, error) {
	c, err := New(cutoffDay)
	if err != nil {
		return FinancialPeriod{}, err
	}
	return c.CurrentPeriod(referenceDate), nil
}

// PeriodForDate returns the period containing d under the given cutoff day.
func PeriodForDate(cutoffDay int, d core.Date) (FinancialPeriod, error) {
	c, err := New(cutoffDay)
	if err != nil {
		return FinancialPeriod{}, err
	}
	return c.PeriodForDate(d), nil
}

// PeriodForKey returns the period named key under the given cutoff day.
func PeriodForKey(cutoffDay int, key string) (FinancialPeriod, error) {
	c, err := New(cutoffDay)
	if err != nil {
		return FinancialPeriod{}, err
	}
	return c.PeriodForKey(key)
}

// PeriodsBetween lists the periods from start to end under the given cutoff day.
func PeriodsBetween(start, end core.Date, cutoffDay int) ([]FinancialPeriod, error) {
	c, err := New(cutoffDay)
	if err != nil {
		return nil, err
	}
	return c.PeriodsBetween(start, end), nil
}

// IsDateInPeriod reports whether d lies within p, both ends included.
func IsDateInPeriod(d core.Date, p FinancialPeriod) bool {
	return p.Contains(d)
}

// FormatKey renders a financial year and month as "YYYY-MM".
func FormatKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// ParseKey splits a "YYYY-MM" key into year and month.
func ParseKey(key string) (int, time.Month, error) {
	t, err := time.Parse(KeyLayout, strings.TrimSpace(key))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
	return t.Year(), t.Month(), nil
}

// lastMonthlyStep returns the last date reached by stepping whole calendar
// months from start without passing end. The day of month is kept, clamped to
// the length of each month.
func lastMonthlyStep(start, end core.Date) core.Date {
	months := (end.Year()-start.Year())*12 + end.Month() - start.Month()
	for ; months > 0; months-- {
		year, month := addMonths(start.Year(), time.Month(start.Month()), months)
		step := core.NewDate(year, int(month), min(start.Day(), daysIn(year, month)))
		if !step.After(end) {
			return step
		}
	}
	return start
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
