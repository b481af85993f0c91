package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/finance"
	applog "finanzas/internal/log"
)

const DefaultReminderHorizon = 7 * 24 * time.Hour

// Reminders lists upcoming payment reminders in the display currency.
type Reminders struct {
	lister    finance.ReminderLister
	converter CurrencyConverter
	logger    *applog.Logger
}

func NewReminders(lister finance.ReminderLister, converter CurrencyConverter, logger *applog.Logger) *Reminders {
	if logger == nil {
		logger = applog.Default(applog.ComponentReminders)
	}
	return &Reminders{lister: lister, converter: converter, logger: logger.WithComponent(applog.ComponentReminders)}
}

// Upcoming returns unpaid reminders whose next due date is within horizon of
// now, overdue one-off reminders included, soonest first. Amounts whose
// conversion fails are kept in their own currency.
func (r *Reminders) Upcoming(ctx context.Context, now time.Time, horizon time.Duration, display string) ([]core.ReminderOccurrence, error) {
	if horizon <= 0 {
		horizon = DefaultReminderHorizon
	}
	if display == "" {
		display = core.BaseCurrency
	}
	list, err := r.lister.ListReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	today := day(now)
	limit := today.Add(horizon)
	var out []core.ReminderOccurrence
	for _, rem := range list {
		if rem.Paid || rem.DueDate.IsZero() {
			continue
		}
		rec, err := GetRecurrence(rem.Frequency)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping reminder", "reminder_id", rem.ID, applog.FieldError, err)
			continue
		}
		y, m, d := rem.DueDate.CalendarIn(now.Location())
		due := rec.Next(core.NewDate(y, int(m), d), today)
		if due.After(limit) {
			continue
		}

		from := rem.Currency
		if from == "" {
			from = core.BaseCurrency
		}
		occ := core.ReminderOccurrence{
			Reminder: rem,
			DueDate:  core.NewDate(due.Year(), int(due.Month()), due.Day()),
			Amount:   rem.Amount,
			Currency: from,
			DaysLeft: int(due.Sub(today).Hours() / 24),
			Overdue:  due.Before(today),
		}
		if conv, err := r.converter.Convert(ctx, rem.Amount, from, display); err != nil {
			r.logger.WarnContext(ctx, "Reminder amount left unconverted",
				applog.FieldFrom, from, applog.FieldTo, display, applog.FieldError, err)
		} else {
			occ.Amount = conv.Amount
			occ.Currency = display
		}
		out = append(out, occ)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}
