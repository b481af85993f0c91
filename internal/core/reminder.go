package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Once    Frequency = "once"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type (
	Frequency string

	// Reminder is a payment the user wants to be reminded of.
	Reminder struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		DueDate   Date            `json:"dueDate"`
		Frequency Frequency       `json:"frequency"`
		WalletID  string          `json:"walletId,omitempty"`
		Paid      bool            `json:"paid"`
	}
)

var ErrInvalidFrequency = errors.New("invalid frequency")

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if r.Currency != "" && !ValidCurrency(r.Currency) {
		return ErrInvalidCurrency
	}
	if err := r.DueDate.Validate(); err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}
	switch r.Frequency {
	case Once, Daily, Weekly, Monthly, Yearly, "":
	default:
		return ErrInvalidFrequency
	}
	return nil
}

// ReminderOccurrence is one upcoming due date of a reminder.
type ReminderOccurrence struct {
	Reminder Reminder        `json:"reminder"`
	DueDate  Date            `json:"dueDate"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	DaysLeft int             `json:"daysLeft"`
	Overdue  bool            `json:"overdue"`
}
