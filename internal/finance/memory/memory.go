// Package memory is an in-process finance backend seeded from JSON files.
// It backs local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/finance"
)

type Store struct {
	mu           sync.RWMutex
	transactions []core.Transaction
	wallets      []core.Wallet
	goals        []core.Goal
	categories   []core.Category
	reminders    []core.Reminder
}

var _ finance.Backend = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewFromFiles loads transactions.json, wallets.json, goals.json,
// categories.json and reminders.json from base. Missing files fall back to a
// small demo data set dated in the current month.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	loaded := 0
	for name, into := range map[string]any{
		"transactions.json": &s.transactions,
		"wallets.json":      &s.wallets,
		"goals.json":        &s.goals,
		"categories.json":   &s.categories,
		"reminders.json":    &s.reminders,
	} {
		ok, err := readJSON(filepath.Join(base, name), into)
		if err != nil {
			return nil, err
		}
		if ok {
			loaded++
		}
	}
	if loaded == 0 {
		s.seedDemo(time.Now())
	}
	return s, nil
}

func readJSON(path string, into any) (bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) seedDemo(now time.Time) {
	y, m := now.Year(), int(now.Month())
	s.wallets = []core.Wallet{
		{ID: "w-cop", Name: "Personal", Kind: core.PersonalWallet, Currency: "COP", IsDefault: true},
		{ID: "w-usd", Name: "Viajes", Kind: core.GroupWallet, Currency: "USD"},
	}
	s.categories = []core.Category{
		{ID: "c-food", Name: "Comida", Kind: core.Expense},
		{ID: "c-home", Name: "Hogar", Kind: core.Expense},
		{ID: "c-salary", Name: "Salario", Kind: core.Income},
	}
	s.transactions = []core.Transaction{
		{ID: "t1", WalletID: "w-cop", CategoryID: "c-salary", Kind: core.Income, Amount: decimal.NewFromInt(4500000), Date: core.NewDate(y, m, 1), Description: "Salario"},
		{ID: "t2", WalletID: "w-cop", CategoryID: "c-home", Kind: core.Expense, Amount: decimal.NewFromInt(1800000), Date: core.NewDate(y, m, 2), Description: "Arriendo"},
		{ID: "t3", WalletID: "w-usd", CategoryID: "c-food", Kind: core.Expense, Amount: decimal.NewFromInt(45), Date: core.NewDate(y, m, 3), Description: "Cena"},
		{ID: "t4", WalletID: "w-usd", Kind: core.Settlement, Amount: decimal.NewFromInt(20), Date: core.NewDate(y, m, 3), Description: "Ajuste de cuentas"},
	}
	s.goals = []core.Goal{
		{ID: "g1", Name: "Ahorro mensual", TargetAmount: decimal.NewFromInt(1000000), Status: core.GoalActive, MonthlySavings: true},
	}
	s.reminders = []core.Reminder{
		{ID: "r1", Name: "Internet", Amount: decimal.NewFromInt(95000), Currency: "COP", DueDate: core.NewDate(y, m, 15), Frequency: core.Monthly, WalletID: "w-cop"},
	}
}

// ListTransactions returns up to limit transactions, newest first.
func (s *Store) ListTransactions(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]core.Transaction(nil), s.transactions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListWallets(context.Context) ([]core.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Wallet(nil), s.wallets...), nil
}

func (s *Store) ListGoals(context.Context) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Goal(nil), s.goals...), nil
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Category(nil), s.categories...), nil
}

func (s *Store) ListReminders(context.Context) ([]core.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Reminder(nil), s.reminders...), nil
}

// AddTransaction validates and appends a transaction.
func (s *Store) AddTransaction(t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
	return nil
}

func (s *Store) AddWallet(w core.Wallet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = append(s.wallets, w)
	return nil
}

func (s *Store) AddGoal(g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append(s.goals, g)
	return nil
}

func (s *Store) AddCategory(c core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

func (s *Store) AddReminder(r core.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = append(s.reminders, r)
	return nil
}
