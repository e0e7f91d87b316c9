package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidPeriod       = errors.New("invalid billing period")
	ErrInvalidStatus       = errors.New("invalid bill status")
	ErrInvalidBillInstance = errors.New("invalid bill instance")
	ErrInvalidProcessed    = errors.New("invalid processed message record")
	ErrInvalidObligation   = errors.New("invalid recurring obligation")
	ErrInvalidAllocation   = errors.New("invalid allocated payment")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validatePeriod(period string) error {
	if _, err := time.Parse(model.BillingPeriodLayout, period); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return nil
}

func validateStatus(status model.BillStatus) error {
	switch status {
	case model.BillPending, model.BillPaid:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// validateBillInstance enforces the paid-date invariant before anything is written.
func validateBillInstance(bill *model.BillInstance) error {
	if bill == nil {
		return fmt.Errorf("%w: bill instance", ErrNilParameter)
	}
	if bill.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidBillInstance)
	}
	if strings.TrimSpace(bill.Vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidBillInstance)
	}
	if err := validatePeriod(bill.BillingPeriod); err != nil {
		return err
	}
	if err := validateStatus(bill.Status); err != nil {
		return err
	}
	if bill.DueDate.IsZero() {
		return fmt.Errorf("%w: missing due date", ErrInvalidBillInstance)
	}
	if bill.SourceMessageID == "" {
		return fmt.Errorf("%w: missing source message ID", ErrInvalidBillInstance)
	}
	if bill.Status == model.BillPaid && bill.PaidDate == nil {
		return fmt.Errorf("%w: paid bill without paid date", ErrInvalidBillInstance)
	}
	if bill.Status == model.BillPending && bill.PaidDate != nil {
		return fmt.Errorf("%w: pending bill with paid date", ErrInvalidBillInstance)
	}
	if bill.Amount != nil && bill.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidBillInstance)
	}
	return nil
}

func validateAllocation(a *model.AllocatedPayment) error {
	if a.ID == "" || a.PartyID == "" {
		return fmt.Errorf("%w: missing ID or party", ErrInvalidAllocation)
	}
	if err := validateStatus(a.Status); err != nil {
		return err
	}
	if (a.Status == model.BillPaid) != (a.PaidDate != nil) {
		return fmt.Errorf("%w: paid date does not match status", ErrInvalidAllocation)
	}
	return nil
}

func validateProcessed(record *model.ProcessedMessage) error {
	if record == nil {
		return fmt.Errorf("%w: processed message", ErrNilParameter)
	}
	if strings.TrimSpace(record.SourceMessageID) == "" {
		return fmt.Errorf("%w: missing source message ID", ErrInvalidProcessed)
	}
	if record.Action == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidProcessed)
	}
	return nil
}
