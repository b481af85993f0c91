// Package worker turns input.changed events into dashboard recomputes.
package worker

import (
	"context"
	"fmt"

	"finanzas/internal/amqp"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

// Dashboard is the part of services.Dashboard the worker drives.
type Dashboard interface {
	Recompute(ctx context.Context, reason string) (services.State, error)
	SetDisplayCurrency(ctx context.Context, code string) (services.State, error)
}

// ListInvalidator drops cached backend lists, e.g. api.Client.
type ListInvalidator interface {
	InvalidateLists()
}

type RecomputeWorker struct {
	dashboard   Dashboard
	invalidator ListInvalidator
	logger      *applog.Logger
}

func NewRecomputeWorker(dashboard Dashboard, invalidator ListInvalidator) *RecomputeWorker {
	return &RecomputeWorker{
		dashboard:   dashboard,
		invalidator: invalidator,
		logger:      applog.Default(applog.ComponentWorker),
	}
}

// HandleInputChanged processes a single input.changed message. A returned
// error makes the consumer requeue the message.
func (w *RecomputeWorker) HandleInputChanged(ctx context.Context, msg *amqp.InputChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing input change",
		applog.FieldReason, msg.Kind,
		"timestamp", msg.Timestamp)

	var (
		st  services.State
		err error
	)
	switch msg.Kind {
	case amqp.KindCurrencyChanged:
		st, err = w.dashboard.SetDisplayCurrency(ctx, msg.Currency)
	case amqp.KindHistoryLoaded, amqp.KindWalletsLoaded:
		if w.invalidator != nil {
			w.invalidator.InvalidateLists()
		}
		st, err = w.dashboard.Recompute(ctx, msg.Kind)
	case amqp.KindMonthChanged:
		st, err = w.dashboard.Recompute(ctx, services.ReasonMonthChanged)
	default:
		return fmt.Errorf("unknown input change kind %q", msg.Kind)
	}
	if err != nil {
		return fmt.Errorf("recompute after %s: %w", msg.Kind, err)
	}

	w.logger.InfoContext(ctx, "Dashboard recomputed",
		applog.FieldReason, msg.Kind,
		applog.FieldSequence, st.Seq,
		applog.FieldCurrency, st.Summary.Currency)
	return nil
}
