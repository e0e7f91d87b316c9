package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// VendorCategory classifies the kind of biller behind an obligation.
type VendorCategory string

// Vendor category constants.
const (
	CategoryUtility      VendorCategory = "UTILITY"
	CategoryCreditCard   VendorCategory = "CREDIT_CARD"
	CategoryRent         VendorCategory = "RENT"
	CategorySubscription VendorCategory = "SUBSCRIPTION"
	CategoryTransfer     VendorCategory = "TRANSFER"
	CategoryOther        VendorCategory = "OTHER"
)

// ParseVendorCategory normalizes s into a known VendorCategory.
// Matching is case-insensitive and tolerates spaces or dashes for underscores.
func ParseVendorCategory(s string) (VendorCategory, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	switch cat := VendorCategory(normalized); cat {
	case CategoryUtility, CategoryCreditCard, CategoryRent,
		CategorySubscription, CategoryTransfer, CategoryOther:
		return cat, nil
	}
	return "", fmt.Errorf("unknown vendor category %q", s)
}

// AmountKind says whether an obligation bills the same amount every period.
type AmountKind string

// Amount policy kinds.
const (
	AmountFixed    AmountKind = "FIXED"
	AmountVariable AmountKind = "VARIABLE"
)

// AmountPolicy describes how much an obligation is expected to bill.
type AmountPolicy struct {
	Amount *decimal.Decimal
	Kind   AmountKind
}

// FixedAmount returns the fixed amount, or nil for variable policies.
func (p AmountPolicy) FixedAmount() *decimal.Decimal {
	if p.Kind != AmountFixed || p.Amount == nil {
		return nil
	}
	amount := *p.Amount
	return &amount
}

// RecurringObligation is a known biller in the catalog.
// The engine only ever reads obligations.
type RecurringObligation struct {
	AmountPolicy   AmountPolicy
	Vendor         string
	VendorCategory VendorCategory
	MatchPatterns  []string
	ID             int64
	DueDayOfMonth  int
	Active         bool
}

// Validate checks the obligation for internal consistency.
func (o *RecurringObligation) Validate() error {
	if strings.TrimSpace(o.Vendor) == "" {
		return fmt.Errorf("vendor is required")
	}
	if _, err := ParseVendorCategory(string(o.VendorCategory)); err != nil {
		return err
	}
	if o.DueDayOfMonth < 1 || o.DueDayOfMonth > 31 {
		return fmt.Errorf("due day of month must be between 1 and 31, got %d", o.DueDayOfMonth)
	}
	if len(o.MatchPatterns) == 0 {
		return fmt.Errorf("at least one match pattern is required")
	}
	for i, p := range o.MatchPatterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("match pattern %d is empty", i)
		}
	}
	switch o.AmountPolicy.Kind {
	case AmountFixed:
		if o.AmountPolicy.Amount == nil || !o.AmountPolicy.Amount.IsPositive() {
			return fmt.Errorf("fixed amount policy requires a positive amount")
		}
	case AmountVariable:
	default:
		return fmt.Errorf("unknown amount policy %q", o.AmountPolicy.Kind)
	}
	return nil
}
