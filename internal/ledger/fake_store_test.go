package ledger

import (
	"context"
	"fmt"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
)

// memStore is an in-memory service.Ledger with the same uniqueness and
// monotonic status rules as the SQLite store.
type memStore struct {
	createErr   error
	bills       []*model.BillInstance
	allocations map[string][]model.AllocatedPayment
	parties     []string
	updates     int
}

func newMemStore(parties ...string) *memStore {
	return &memStore{allocations: map[string][]model.AllocatedPayment{}, parties: parties}
}

func (m *memStore) CreateBillInstance(_ context.Context, bill *model.BillInstance) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, b := range m.bills {
		if b.Vendor == bill.Vendor && b.BillingPeriod == bill.BillingPeriod {
			return fmt.Errorf("bill instance: %w", common.ErrDuplicateEntry)
		}
	}
	stored := *bill
	stored.Allocations = nil
	m.bills = append(m.bills, &stored)
	return nil
}

func (m *memStore) UpdateBillInstance(_ context.Context, bill *model.BillInstance) error {
	for _, b := range m.bills {
		if b.ID != bill.ID {
			continue
		}
		if b.Status == model.BillPaid && bill.Status != model.BillPaid {
			return common.ErrInvalidTransition
		}
		m.updates++
		stored := *bill
		stored.Allocations = nil
		*b = stored
		return nil
	}
	return common.ErrNotFound
}

func (m *memStore) GetBillInstance(_ context.Context, id string) (*model.BillInstance, error) {
	for _, b := range m.bills {
		if b.ID == id {
			out := *b
			out.Allocations = append([]model.AllocatedPayment(nil), m.allocations[id]...)
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memStore) ListBillInstancesByPeriod(_ context.Context, period string) ([]model.BillInstance, error) {
	var out []model.BillInstance
	for _, b := range m.bills {
		if b.BillingPeriod == period {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceAllocations(_ context.Context, billID string, allocations []model.AllocatedPayment) error {
	m.allocations[billID] = append([]model.AllocatedPayment(nil), allocations...)
	return nil
}

func (m *memStore) GetAllocations(_ context.Context, billID string) ([]model.AllocatedPayment, error) {
	return append([]model.AllocatedPayment(nil), m.allocations[billID]...), nil
}

func (m *memStore) ListResponsibleParties(context.Context) ([]string, error) {
	return append([]string(nil), m.parties...), nil
}

func (m *memStore) only(t interface{ Fatalf(string, ...any) }) *model.BillInstance {
	if len(m.bills) != 1 {
		t.Fatalf("expected exactly one bill instance, got %d", len(m.bills))
	}
	return m.bills[0]
}
