// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillClassification is what the classifier believes a message is.
// It is produced per message and never persisted.
type BillClassification struct {
	Amount                *decimal.Decimal
	DueDate               *time.Time
	Vendor                string
	VendorCategory        VendorCategory
	PaymentMethod         string
	Confidence            int
	IsPaymentConfirmation bool
}
