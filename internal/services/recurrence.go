package services

import (
	"fmt"
	"sync"
	"time"

	"finanzas/internal/core"
)

// Recurrence finds the next due date of a reminder. Each frequency has its
// own implementation.
type Recurrence interface {
	// Next returns the first due date on or after from. The anchor is the
	// reminder's original due date.
	Next(anchor core.Date, from time.Time) time.Time
}

type OnceRecurrence struct{}

// Next always returns the anchor, even when it lies before from.
func (OnceRecurrence) Next(anchor core.Date, _ time.Time) time.Time {
	return anchor.Time
}

type DailyRecurrence struct{}

func (DailyRecurrence) Next(anchor core.Date, from time.Time) time.Time {
	start := day(anchor.Time)
	from = day(from)
	if !start.Before(from) {
		return start
	}
	return from
}

type WeeklyRecurrence struct{}

func (WeeklyRecurrence) Next(anchor core.Date, from time.Time) time.Time {
	start := day(anchor.Time)
	from = day(from)
	if !start.Before(from) {
		return start
	}
	weeks := int(from.Sub(start).Hours()/24+6) / 7
	return start.AddDate(0, 0, weeks*7)
}

type MonthlyRecurrence struct{}

// Next keeps the anchor's day of month, clamped to the last day of shorter
// months.
func (MonthlyRecurrence) Next(anchor core.Date, from time.Time) time.Time {
	start := day(anchor.Time)
	from = day(from)
	if !start.Before(from) {
		return start
	}
	candidate := clampDay(from.Year(), from.Month(), start.Day())
	if candidate.Before(from) {
		next := time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		candidate = clampDay(next.Year(), next.Month(), start.Day())
	}
	return candidate
}

type YearlyRecurrence struct{}

func (YearlyRecurrence) Next(anchor core.Date, from time.Time) time.Time {
	start := day(anchor.Time)
	from = day(from)
	if !start.Before(from) {
		return start
	}
	candidate := clampDay(from.Year(), start.Month(), start.Day())
	if candidate.Before(from) {
		candidate = clampDay(from.Year()+1, start.Month(), start.Day())
	}
	return candidate
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func clampDay(year int, month time.Month, d int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d > last {
		d = last
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

var recurrencesMu sync.RWMutex

var recurrences = map[core.Frequency]Recurrence{
	core.Once:    OnceRecurrence{},
	"":           OnceRecurrence{},
	core.Daily:   DailyRecurrence{},
	core.Weekly:  WeeklyRecurrence{},
	core.Monthly: MonthlyRecurrence{},
	core.Yearly:  YearlyRecurrence{},
}

// GetRecurrence returns the recurrence for a frequency.
func GetRecurrence(frequency core.Frequency) (Recurrence, error) {
	recurrencesMu.RLock()
	r, ok := recurrences[frequency]
	recurrencesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return r, nil
}

// RegisterRecurrence adds or replaces the recurrence for a frequency.
func RegisterRecurrence(frequency core.Frequency, r Recurrence) {
	recurrencesMu.Lock()
	defer recurrencesMu.Unlock()
	recurrences[frequency] = r
}
