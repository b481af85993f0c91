// Package finance declares the ports through which the dashboard reads the
// remote finance backend.
package finance

import (
	"context"

	"finanzas/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionLister returns the most recent transactions, newest first.
	// Callers must not rely on the order.
	TransactionLister interface {
		ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	}

	WalletLister interface {
		ListWallets(ctx context.Context) ([]core.Wallet, error)
	}

	GoalLister interface {
		ListGoals(ctx context.Context) ([]core.Goal, error)
	}

	CategoryLister interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	ReminderLister interface {
		ListReminders(ctx context.Context) ([]core.Reminder, error)
	}

	// Backend is everything the dashboard needs from the remote service.
	Backend interface {
		TransactionLister
		WalletLister
		GoalLister
		CategoryLister
		ReminderLister
	}
)
