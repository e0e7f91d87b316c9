// Package pattern matches incoming messages to catalog obligations and to
// bill instances already in the ledger.
package pattern

import (
	"context"

	"github.com/Veraticus/billflow/internal/model"
)

// InstanceLister lists the bill instances recorded for a billing period,
// oldest first.
type InstanceLister interface {
	ListBillInstancesByPeriod(ctx context.Context, period string) ([]model.BillInstance, error)
}
