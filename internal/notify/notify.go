// Package notify delivers ledger events to the household once they are
// committed. Delivery is best effort.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Veraticus/billflow/internal/model"
)

// Notifier delivers one ledger event.
type Notifier interface {
	Notify(ctx context.Context, event model.LedgerEvent) error
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier logs to logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event model.LedgerEvent) error {
	attrs := []any{
		"action", event.Action,
		"vendor", event.Instance.Vendor,
		"period", event.Instance.BillingPeriod,
		"status", event.Instance.Status,
		"message_id", event.MessageID,
	}
	if event.Instance.Amount != nil {
		attrs = append(attrs, "amount", event.Instance.Amount.StringFixed(2))
	}
	n.logger.InfoContext(ctx, "bill ledger updated", attrs...)
	return nil
}

// Multi fans an event out to every notifier, joining their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event model.LedgerEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
