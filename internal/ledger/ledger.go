// Package ledger applies bill classifications to the bill instance ledger.
//
// An instance moves through exactly two states, PENDING and PAID, and never
// leaves PAID. Every transition runs against a service.Ledger, which the
// reconciliation engine backs with a storage transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/pattern"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is one classified message to record in the ledger.
type Entry struct {
	Classification *model.BillClassification
	Obligation     *model.RecurringObligation
	Message        model.Message
	Period         string
}

// Result names the transition an entry caused.
type Result struct {
	Instance *model.BillInstance
	Action   model.Action
}

// Ledger performs bill instance transitions.
type Ledger struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for paid dates and due dates.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides bill instance and allocation id generation.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New creates a Ledger.
func New(logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record applies a classified message to the ledger.
//
// A payment confirmation marks the vendor's PENDING instance paid, or creates
// a PAID instance when none is open. A bill notification backfills the amount
// of an existing PENDING instance, or creates a PENDING one. PAID instances
// are never modified. When a create loses a race on (vendor, period) the
// entry is re-resolved once against the winner.
func (l *Ledger) Record(ctx context.Context, store service.Ledger, e Entry) (*Result, error) {
	if e.Classification == nil {
		return nil, fmt.Errorf("ledger entry for message %s has no classification", e.Message.ID)
	}

	result, err := l.record(ctx, store, e)
	if !errors.Is(err, common.ErrDuplicateEntry) {
		return result, err
	}

	existing, findErr := findExact(ctx, store, e.Classification.Vendor, e.Period)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}

	l.logger.Debug("bill instance already exists, re-resolving",
		"vendor", existing.Vendor,
		"period", existing.BillingPeriod,
		"instance_id", existing.ID)

	if e.Classification.IsPaymentConfirmation {
		return l.markPaid(ctx, store, existing, e.Classification.PaymentMethod)
	}
	return l.backfill(ctx, store, existing, e.Classification.Amount)
}

func (l *Ledger) record(ctx context.Context, store service.Ledger, e Entry) (*Result, error) {
	c := e.Classification

	if c.IsPaymentConfirmation {
		open, err := pattern.FindOpenInstance(ctx, store, c.Vendor, e.Period, "", true)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return l.markPaid(ctx, store, open, c.PaymentMethod)
		}
		return l.createPaid(ctx, store, e)
	}

	existing, err := pattern.FindOpenInstance(ctx, store, c.Vendor, e.Period, e.Message.ID, false)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return l.backfill(ctx, store, existing, c.Amount)
	}
	return l.createPending(ctx, store, e)
}

// createPending opens a new PENDING instance and allocates it.
func (l *Ledger) createPending(ctx context.Context, store service.Ledger, e Entry) (*Result, error) {
	now := l.now()
	inst := l.newInstance(e, now)
	inst.Status = model.BillPending

	if err := l.create(ctx, store, inst); err != nil {
		return nil, err
	}

	l.logger.Info("created pending bill",
		"instance_id", inst.ID,
		"vendor", inst.Vendor,
		"period", inst.BillingPeriod,
		"amount", amountAttr(inst.Amount),
		"due", inst.DueDate.Format(time.DateOnly))

	return &Result{Action: model.ActionCreatedNew, Instance: inst}, nil
}

// createPaid records an orphaned payment directly as a PAID instance.
func (l *Ledger) createPaid(ctx context.Context, store service.Ledger, e Entry) (*Result, error) {
	now := l.now()
	inst := l.newInstance(e, now)
	paidAt := now.UTC()
	inst.Status = model.BillPaid
	inst.PaidDate = &paidAt
	inst.PaidVia = e.Classification.PaymentMethod

	if err := l.create(ctx, store, inst); err != nil {
		return nil, err
	}

	l.logger.Info("created paid bill from orphaned payment",
		"instance_id", inst.ID,
		"vendor", inst.Vendor,
		"period", inst.BillingPeriod,
		"paid_via", inst.PaidVia)

	return &Result{Action: model.ActionCreatedPaid, Instance: inst}, nil
}

func (l *Ledger) create(ctx context.Context, store service.Ledger, inst *model.BillInstance) error {
	if err := store.CreateBillInstance(ctx, inst); err != nil {
		return err
	}
	return l.allocate(ctx, store, inst)
}

func (l *Ledger) newInstance(e Entry, now time.Time) *model.BillInstance {
	c := e.Classification

	inst := &model.BillInstance{
		ID:              l.newID(),
		Vendor:          c.Vendor,
		BillingPeriod:   e.Period,
		VendorCategory:  c.VendorCategory,
		Amount:          ResolveAmount(c, e.Obligation),
		DueDate:         ResolveDueDate(c.DueDate, e.Obligation, now),
		SourceMessageID: e.Message.ID,
		SourceSummary:   e.Message.Summary(),
	}
	if e.Obligation != nil {
		id := e.Obligation.ID
		inst.RecurringObligationID = &id
	}
	return inst
}

// backfill supplies an amount the existing PENDING instance lacked. PAID
// instances and instances that already have an amount are left untouched.
func (l *Ledger) backfill(ctx context.Context, store service.Ledger, inst *model.BillInstance, amount *decimal.Decimal) (*Result, error) {
	result := &Result{Action: model.ActionUpdatedExisting, Instance: inst}
	if inst.IsPaid() || inst.Amount != nil || amount == nil {
		return result, nil
	}

	a := *amount
	inst.Amount = &a
	if err := store.UpdateBillInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to backfill amount for %s: %w", inst.ID, err)
	}
	if err := l.allocate(ctx, store, inst); err != nil {
		return nil, err
	}

	l.logger.Info("backfilled bill amount",
		"instance_id", inst.ID,
		"vendor", inst.Vendor,
		"amount", a.StringFixed(2))

	return result, nil
}

// markPaid flips a PENDING instance and its allocations to PAID. On an
// instance that is already PAID it changes nothing, keeping the original
// paid date, and reports updated_existing.
func (l *Ledger) markPaid(ctx context.Context, store service.Ledger, inst *model.BillInstance, paidVia string) (*Result, error) {
	if inst.IsPaid() {
		return &Result{Action: model.ActionUpdatedExisting, Instance: inst}, nil
	}
	result := &Result{Action: model.ActionMarkedPaid, Instance: inst}

	paidAt := l.now().UTC()
	inst.Status = model.BillPaid
	inst.PaidDate = &paidAt
	if strings.TrimSpace(paidVia) != "" {
		inst.PaidVia = paidVia
	}
	if err := store.UpdateBillInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to mark %s paid: %w", inst.ID, err)
	}

	allocations, err := store.GetAllocations(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		// Nothing was allocated while the amount was unknown.
		if err := l.allocate(ctx, store, inst); err != nil {
			return nil, err
		}
	} else {
		for i := range allocations {
			allocations[i].Status = model.BillPaid
			allocations[i].PaidDate = &paidAt
		}
		if err := store.ReplaceAllocations(ctx, inst.ID, allocations); err != nil {
			return nil, fmt.Errorf("failed to mark allocations paid for %s: %w", inst.ID, err)
		}
		inst.Allocations = allocations
	}

	l.logger.Info("marked bill paid",
		"instance_id", inst.ID,
		"vendor", inst.Vendor,
		"paid_via", inst.PaidVia)

	return result, nil
}

// allocate replaces the instance's allocations with shares for the current
// party set. Instances without an amount get no allocations yet.
func (l *Ledger) allocate(ctx context.Context, store service.Ledger, inst *model.BillInstance) error {
	if inst.Amount == nil {
		return nil
	}

	parties, err := store.ListResponsibleParties(ctx)
	if err != nil {
		return fmt.Errorf("failed to list responsible parties: %w", err)
	}

	allocations := allocateWithIDs(inst, parties, l.newID)
	if err := store.ReplaceAllocations(ctx, inst.ID, allocations); err != nil {
		return fmt.Errorf("failed to allocate %s: %w", inst.ID, err)
	}
	inst.Allocations = allocations
	return nil
}

// findExact returns the instance stored under exactly vendor and period.
func findExact(ctx context.Context, store service.Ledger, vendor, period string) (*model.BillInstance, error) {
	instances, err := store.ListBillInstancesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	for i := range instances {
		if instances[i].Vendor == vendor {
			return &instances[i], nil
		}
	}
	return nil, nil
}

// ResolveAmount picks the classified amount, falling back to the
// obligation's fixed amount. Nil means the amount is not yet known.
func ResolveAmount(c *model.BillClassification, o *model.RecurringObligation) *decimal.Decimal {
	if c != nil && c.Amount != nil {
		a := *c.Amount
		return &a
	}
	if o != nil {
		return o.AmountPolicy.FixedAmount()
	}
	return nil
}

// ResolveDueDate picks the due date of a new instance: the classified date,
// else the obligation's due day in the current month (next month once that
// day has passed), else the last day of the current month. Days past the end
// of a month are clamped to its last day.
func ResolveDueDate(classified *time.Time, o *model.RecurringObligation, now time.Time) time.Time {
	if classified != nil {
		return dateOnly(*classified)
	}

	today := dateOnly(now)
	if o != nil && o.DueDayOfMonth > 0 {
		due := dayInMonth(today.Year(), today.Month(), o.DueDayOfMonth)
		if due.Before(today) {
			due = dayInMonth(today.Year(), today.Month()+1, o.DueDayOfMonth)
		}
		return due
	}

	return lastDayOfMonth(today.Year(), today.Month())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

func dayInMonth(year int, month time.Month, day int) time.Time {
	last := lastDayOfMonth(year, month)
	if day > last.Day() {
		day = last.Day()
	}
	return time.Date(last.Year(), last.Month(), day, 0, 0, 0, 0, time.UTC)
}

func amountAttr(a *decimal.Decimal) string {
	if a == nil {
		return "unknown"
	}
	return a.StringFixed(2)
}
