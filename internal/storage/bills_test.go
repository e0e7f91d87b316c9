package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBillInstance(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	obligation := &model.RecurringObligation{
		Vendor:         "Duke Energy",
		VendorCategory: model.CategoryUtility,
		MatchPatterns:  []string{"duke"},
		AmountPolicy:   model.AmountPolicy{Kind: model.AmountVariable},
		DueDayOfMonth:  15,
		Active:         true,
	}
	require.NoError(t, store.SaveObligation(ctx, obligation))
	obligationID := obligation.ID

	bill := newTestBill("b1", "Duke Energy")
	bill.RecurringObligationID = &obligationID
	require.NoError(t, store.CreateBillInstance(ctx, bill))

	got, err := store.GetBillInstance(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", got.BillingPeriod)
	assert.Equal(t, model.BillPending, got.Status)
	assert.Nil(t, got.PaidDate)
	require.NotNil(t, got.RecurringObligationID)
	assert.Equal(t, obligationID, *got.RecurringObligationID)
	assert.Equal(t, "2024-03-15", got.DueDate.Format("2006-01-02"))
	assert.Equal(t, testNow, got.CreatedAt)
	assert.Equal(t, bill.SourceSummary, got.SourceSummary)
}

func TestCreateBillInstance_NullAmount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	bill := newTestBill("b1", "Spectrum")
	bill.Amount = nil
	require.NoError(t, store.CreateBillInstance(ctx, bill))

	got, err := store.GetBillInstance(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got.Amount)
}

func TestCreateBillInstance_DuplicateVendorPeriod(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateBillInstance(ctx, newTestBill("b1", "Duke Energy")))

	err := store.CreateBillInstance(ctx, newTestBill("b2", "Duke Energy"))
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	// A different period is a different identity.
	next := newTestBill("b3", "Duke Energy")
	next.BillingPeriod = "2024-04"
	require.NoError(t, store.CreateBillInstance(ctx, next))
}

func TestCreateBillInstance_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	paid := testNow

	tests := []struct {
		mutate func(*model.BillInstance)
		want   error
		name   string
	}{
		{name: "paid without paid date", mutate: func(b *model.BillInstance) { b.Status = model.BillPaid }, want: ErrInvalidBillInstance},
		{name: "pending with paid date", mutate: func(b *model.BillInstance) { b.PaidDate = &paid }, want: ErrInvalidBillInstance},
		{name: "bad period", mutate: func(b *model.BillInstance) { b.BillingPeriod = "March" }, want: ErrInvalidPeriod},
		{name: "unknown status", mutate: func(b *model.BillInstance) { b.Status = "VOID" }, want: ErrInvalidStatus},
		{name: "missing vendor", mutate: func(b *model.BillInstance) { b.Vendor = " " }, want: ErrInvalidBillInstance},
		{name: "negative amount", mutate: func(b *model.BillInstance) { b.Amount = dec("-1") }, want: ErrInvalidBillInstance},
		{name: "missing due date", mutate: func(b *model.BillInstance) { b.DueDate = time.Time{} }, want: ErrInvalidBillInstance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bill := newTestBill("bad", "Vendor")
			tt.mutate(bill)
			require.ErrorIs(t, store.CreateBillInstance(ctx, bill), tt.want)
		})
	}
}

func TestUpdateBillInstance(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	bill := newTestBill("b1", "Duke Energy")
	require.NoError(t, store.CreateBillInstance(ctx, bill))

	paidAt := testNow.Add(48 * time.Hour)
	bill.Status = model.BillPaid
	bill.PaidDate = &paidAt
	bill.PaidVia = "Autopay"
	require.NoError(t, store.UpdateBillInstance(ctx, bill))

	got, err := store.GetBillInstance(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BillPaid, got.Status)
	require.NotNil(t, got.PaidDate)
	assert.Equal(t, paidAt, *got.PaidDate)
	assert.Equal(t, "Autopay", got.PaidVia)

	t.Run("paid never returns to pending", func(t *testing.T) {
		back := *got
		back.Status = model.BillPending
		back.PaidDate = nil
		err := store.UpdateBillInstance(ctx, &back)
		require.ErrorIs(t, err, common.ErrInvalidTransition)

		still, err := store.GetBillInstance(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, model.BillPaid, still.Status)
	})

	t.Run("missing instance", func(t *testing.T) {
		ghost := newTestBill("ghost", "Nobody")
		require.ErrorIs(t, store.UpdateBillInstance(ctx, ghost), common.ErrNotFound)
	})
}

func TestListBillInstances(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := newTestBill("a", "Duke Energy")
	a.CreatedAt = testNow
	b := newTestBill("b", "Chase Sapphire")
	b.CreatedAt = testNow.Add(time.Minute)
	c := newTestBill("c", "Comcast")
	c.BillingPeriod = "2024-02"
	c.CreatedAt = testNow.Add(-time.Hour)
	for _, bill := range []*model.BillInstance{b, a, c} {
		require.NoError(t, store.CreateBillInstance(ctx, bill))
	}

	march, err := store.ListBillInstancesByPeriod(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "a", march[0].ID)
	assert.Equal(t, "b", march[1].ID)

	pending := model.BillPending
	all, err := store.ListBillInstances(ctx, service.BillFilter{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.ListBillInstances(ctx, service.BillFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)

	_, err = store.ListBillInstancesByPeriod(ctx, "2024-3")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestAllocations(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateBillInstance(ctx, newTestBill("b1", "Duke Energy")))

	first := []model.AllocatedPayment{
		{ID: "a1", BillInstanceID: "b1", PartyID: "p1", Amount: decimal.RequireFromString("71.25"), Status: model.BillPending},
		{ID: "a2", BillInstanceID: "b1", PartyID: "p2", Amount: decimal.RequireFromString("71.25"), Status: model.BillPending},
	}
	require.NoError(t, store.ReplaceAllocations(ctx, "b1", first))

	got, err := store.GetAllocations(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].PartyID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("71.25")))

	paidAt := testNow
	second := []model.AllocatedPayment{
		{ID: "a3", BillInstanceID: "b1", PartyID: "p1", Amount: decimal.RequireFromString("142.50"), Status: model.BillPaid, PaidDate: &paidAt},
	}
	require.NoError(t, store.ReplaceAllocations(ctx, "b1", second))

	bill, err := store.GetBillInstance(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, bill.Allocations, 1)
	assert.Equal(t, model.BillPaid, bill.Allocations[0].Status)
	assert.Equal(t, paidAt, *bill.Allocations[0].PaidDate)

	t.Run("status and paid date must agree", func(t *testing.T) {
		bad := []model.AllocatedPayment{{ID: "x", PartyID: "p1", Status: model.BillPaid}}
		require.ErrorIs(t, store.ReplaceAllocations(ctx, "b1", bad), ErrInvalidAllocation)
	})

	t.Run("unknown bill violates foreign key", func(t *testing.T) {
		orphan := []model.AllocatedPayment{{ID: "o1", PartyID: "p1", Status: model.BillPending}}
		require.Error(t, store.ReplaceAllocations(ctx, "missing", orphan))
	})
}
