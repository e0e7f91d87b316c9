package ledger

import (
	"github.com/Veraticus/billflow/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HouseholdParty receives the whole amount when no responsible parties exist.
const HouseholdParty = "household"

var cent = decimal.New(1, -2)

// Allocate splits the instance amount evenly across parties in cent-sized
// shares. Leftover cents go to the earliest parties so the shares always sum
// to the amount exactly. With no parties the full amount is allocated to
// HouseholdParty. An instance without an amount gets no allocations.
func Allocate(inst *model.BillInstance, parties []string) []model.AllocatedPayment {
	return allocateWithIDs(inst, parties, uuid.NewString)
}

func allocateWithIDs(inst *model.BillInstance, parties []string, newID func() string) []model.AllocatedPayment {
	if inst == nil || inst.Amount == nil {
		return nil
	}
	if len(parties) == 0 {
		parties = []string{HouseholdParty}
	}

	shares := splitEvenly(*inst.Amount, len(parties))

	allocations := make([]model.AllocatedPayment, len(parties))
	for i, party := range parties {
		allocations[i] = model.AllocatedPayment{
			ID:             newID(),
			BillInstanceID: inst.ID,
			PartyID:        party,
			Amount:         shares[i],
			Status:         inst.Status,
		}
		if inst.PaidDate != nil {
			paid := *inst.PaidDate
			allocations[i].PaidDate = &paid
		}
	}
	return allocations
}

// splitEvenly divides amount into n shares that sum to amount.
func splitEvenly(amount decimal.Decimal, n int) []decimal.Decimal {
	count := decimal.NewFromInt(int64(n))
	base := amount.Div(count).Truncate(2)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = base
	}

	remainder := amount.Sub(base.Mul(count))
	for i := 0; remainder.GreaterThanOrEqual(cent); i = (i + 1) % n {
		shares[i] = shares[i].Add(cent)
		remainder = remainder.Sub(cent)
	}
	// Sub-cent precision in the amount itself stays with the first party.
	shares[0] = shares[0].Add(remainder)

	return shares
}
