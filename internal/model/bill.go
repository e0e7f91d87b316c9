package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillStatus is the state of a bill instance.
type BillStatus string

// Bill status constants. PAID is terminal.
const (
	BillPending BillStatus = "PENDING"
	BillPaid    BillStatus = "PAID"
)

// BillingPeriodLayout formats a billing period.
const BillingPeriodLayout = "2006-01"

// BillingPeriod returns the YYYY-MM period containing t.
func BillingPeriod(t time.Time) string {
	return t.Format(BillingPeriodLayout)
}

// BillInstance is one obligation occurrence for a billing period.
type BillInstance struct {
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DueDate               time.Time
	Amount                *decimal.Decimal
	PaidDate              *time.Time
	RecurringObligationID *int64
	ID                    string
	Vendor                string
	BillingPeriod         string
	VendorCategory        VendorCategory
	Status                BillStatus
	PaidVia               string
	SourceMessageID       string
	SourceSummary         string
	Allocations           []AllocatedPayment
}

// IsPaid reports whether the instance reached its terminal state.
func (b *BillInstance) IsPaid() bool {
	return b.Status == BillPaid
}

// AllocatedPayment is one responsible party's share of a bill instance.
type AllocatedPayment struct {
	PaidDate       *time.Time
	ID             string
	BillInstanceID string
	PartyID        string
	Amount         decimal.Decimal
	Status         BillStatus
}

// Party is someone who shares responsibility for bills.
type Party struct {
	CreatedAt time.Time
	ID        string
	Name      string
	Active    bool
}
