package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVendorCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    VendorCategory
		wantErr bool
	}{
		{input: "UTILITY", want: CategoryUtility},
		{input: "credit card", want: CategoryCreditCard},
		{input: "Credit-Card", want: CategoryCreditCard},
		{input: " rent ", want: CategoryRent},
		{input: "subscription", want: CategorySubscription},
		{input: "transfer", want: CategoryTransfer},
		{input: "other", want: CategoryOther},
		{input: "groceries", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVendorCategory(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountPolicy_FixedAmount(t *testing.T) {
	amount := decimal.RequireFromString("1850.00")

	fixed := AmountPolicy{Kind: AmountFixed, Amount: &amount}
	got := fixed.FixedAmount()
	require.NotNil(t, got)
	assert.True(t, got.Equal(amount))
	assert.NotSame(t, &amount, got)

	assert.Nil(t, AmountPolicy{Kind: AmountVariable, Amount: &amount}.FixedAmount())
	assert.Nil(t, AmountPolicy{Kind: AmountFixed}.FixedAmount())
}

func validObligation() RecurringObligation {
	return RecurringObligation{
		Vendor:         "Duke Energy",
		VendorCategory: CategoryUtility,
		MatchPatterns:  []string{"duke-energy"},
		AmountPolicy:   AmountPolicy{Kind: AmountVariable},
		DueDayOfMonth:  15,
		Active:         true,
	}
}

func TestRecurringObligation_Validate(t *testing.T) {
	zero := decimal.Zero

	tests := []struct {
		mutate  func(*RecurringObligation)
		name    string
		wantErr string
	}{
		{name: "valid", mutate: func(*RecurringObligation) {}},
		{name: "blank vendor", mutate: func(o *RecurringObligation) { o.Vendor = "  " }, wantErr: "vendor"},
		{name: "bad category", mutate: func(o *RecurringObligation) { o.VendorCategory = "FOOD" }, wantErr: "vendor category"},
		{name: "due day zero", mutate: func(o *RecurringObligation) { o.DueDayOfMonth = 0 }, wantErr: "due day"},
		{name: "due day 32", mutate: func(o *RecurringObligation) { o.DueDayOfMonth = 32 }, wantErr: "due day"},
		{name: "no patterns", mutate: func(o *RecurringObligation) { o.MatchPatterns = nil }, wantErr: "pattern"},
		{name: "empty pattern", mutate: func(o *RecurringObligation) { o.MatchPatterns = []string{"ok", " "} }, wantErr: "pattern 1"},
		{
			name:    "fixed without amount",
			mutate:  func(o *RecurringObligation) { o.AmountPolicy = AmountPolicy{Kind: AmountFixed} },
			wantErr: "positive amount",
		},
		{
			name:    "fixed zero amount",
			mutate:  func(o *RecurringObligation) { o.AmountPolicy = AmountPolicy{Kind: AmountFixed, Amount: &zero} },
			wantErr: "positive amount",
		},
		{name: "unknown policy", mutate: func(o *RecurringObligation) { o.AmountPolicy.Kind = "SOMETIMES" }, wantErr: "amount policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validObligation()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
