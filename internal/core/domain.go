package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every rate table is quoted against and the
// currency goal amounts are stored in.
const BaseCurrency = "COP"

const (
	Income     TransactionKind = "INCOME"
	Expense    TransactionKind = "EXPENSE"
	Settlement TransactionKind = "SETTLEMENT"
)

const (
	PersonalWallet WalletKind = "PERSONAL"
	GroupWallet    WalletKind = "GROUP"
)

const (
	GoalActive    GoalStatus = "ACTIVE"
	GoalPaused    GoalStatus = "PAUSED"
	GoalAchieved  GoalStatus = "ACHIEVED"
	GoalCancelled GoalStatus = "CANCELLED"
)

type (
	TransactionKind string
	WalletKind      string
	GoalStatus      string

	Wallet struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		Kind      WalletKind `json:"type"`
		Currency  string     `json:"currency"`
		IsDefault bool       `json:"isDefault"`
	}

	Transaction struct {
		ID         string          `json:"id"`
		WalletID   string          `json:"walletId"`
		Wallet     *Wallet         `json:"wallet,omitempty"` // present when the backend embeds the owning wallet
		CategoryID string          `json:"categoryId,omitempty"`
		Kind       TransactionKind `json:"type"`
		Amount     decimal.Decimal `json:"amount"`
		Date       Date            `json:"date"`
		// Description is free text typed by the user.
		Description string `json:"description,omitempty"`
	}

	Category struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Kind TransactionKind `json:"type"`
	}

	Goal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		Deadline      *Date           `json:"deadline,omitempty"`
		Status        GoalStatus      `json:"status"`
		// MonthlySavings marks the goal used as the month's savings target.
		MonthlySavings bool `json:"isMonthlySavings,omitempty"`
	}
)

var (
	ErrEmptyID         = errors.New("empty id")
	ErrEmptyWallet     = errors.New("empty wallet reference")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidStatus   = errors.New("invalid goal status")
	ErrEmptyName       = errors.New("empty name")
)

func (k TransactionKind) Valid() bool {
	switch k {
	case Income, Expense, Settlement:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.WalletID) == "" && t.Wallet == nil {
		return ErrEmptyWallet
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// InMonth reports whether the transaction happened in the calendar month of
// now, reading timestamped dates in now's zone.
func (t Transaction) InMonth(now time.Time) bool {
	year, month, _ := t.Date.CalendarIn(now.Location())
	return year == now.Year() && month == now.Month()
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return ErrEmptyID
	}
	if !ValidCurrency(w.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.TargetAmount.IsNegative() || g.CurrentAmount.IsNegative() {
		return ErrNegativeAmount
	}
	switch g.Status {
	case GoalActive, GoalPaused, GoalAchieved, GoalCancelled, "":
	default:
		return ErrInvalidStatus
	}
	return nil
}

// monthlyGoalMarkers are matched against goal names when no goal carries the
// explicit MonthlySavings flag.
var monthlyGoalMarkers = []string{"mensual", "ahorro"}

// SelectMonthlyGoal returns the goal acting as the month's savings target.
// An explicit MonthlySavings flag wins; otherwise the first goal whose name
// contains one of the markers (case-insensitive) is used.
func SelectMonthlyGoal(goals []Goal) (Goal, bool) {
	for _, g := range goals {
		if g.MonthlySavings {
			return g, true
		}
	}
	for _, g := range goals {
		name := strings.ToLower(g.Name)
		for _, marker := range monthlyGoalMarkers {
			if strings.Contains(name, marker) {
				return g, true
			}
		}
	}
	return Goal{}, false
}

// ValidCurrency reports whether code looks like an ISO 4217 code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeCurrency upper-cases and trims a user supplied currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
