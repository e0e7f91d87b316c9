package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/billflow/internal/model"
	"github.com/shopspring/decimal"
)

// Common vendors used across tests.
const (
	VendorDukeEnergy = "Duke Energy"
	VendorLandlord   = "Landlord LLC"
	VendorNetflix    = "Netflix"
)

// Catalog is what a CatalogBuilder wrote.
type Catalog struct {
	Obligations map[string]model.RecurringObligation
	Parties     []model.Party
}

// Obligation returns the seeded obligation for vendor or fails the test.
func (c Catalog) Obligation(t *testing.T, vendor string) model.RecurringObligation {
	t.Helper()
	o, ok := c.Obligations[vendor]
	if !ok {
		t.Fatalf("obligation %q was not seeded", vendor)
	}
	return o
}

// PartyIDs returns the ids of seeded parties in insertion order.
func (c Catalog) PartyIDs() []string {
	ids := make([]string, len(c.Parties))
	for i, p := range c.Parties {
		ids[i] = p.ID
	}
	return ids
}

func (c Catalog) merge(other Catalog) Catalog {
	out := Catalog{
		Obligations: make(map[string]model.RecurringObligation, len(c.Obligations)+len(other.Obligations)),
		Parties:     append(append([]model.Party(nil), c.Parties...), other.Parties...),
	}
	for k, v := range c.Obligations {
		out.Obligations[k] = v
	}
	for k, v := range other.Obligations {
		out.Obligations[k] = v
	}
	return out
}

// CatalogWriter is the storage a CatalogBuilder seeds.
type CatalogWriter interface {
	SaveObligation(ctx context.Context, obligation *model.RecurringObligation) error
	AddParty(ctx context.Context, name string) (*model.Party, error)
}

// CatalogBuilder collects obligations and parties to seed.
//
//	catalog := testutil.NewCatalogBuilder(t).
//		WithDukeEnergy().
//		WithFixed(testutil.VendorLandlord, model.CategoryRent, "1850.00", 1, "landlord").
//		WithParties("alice", "bob")
type CatalogBuilder struct {
	t           *testing.T
	obligations []model.RecurringObligation
	parties     []string
}

// NewCatalogBuilder starts an empty catalog.
func NewCatalogBuilder(t *testing.T) *CatalogBuilder {
	return &CatalogBuilder{t: t}
}

// WithObligation adds an obligation as given.
func (b *CatalogBuilder) WithObligation(o model.RecurringObligation) *CatalogBuilder {
	b.obligations = append(b.obligations, o)
	return b
}

// WithVariable adds an active obligation billing a variable amount.
func (b *CatalogBuilder) WithVariable(vendor string, category model.VendorCategory, dueDay int, patterns ...string) *CatalogBuilder {
	return b.WithObligation(model.RecurringObligation{
		Vendor:         vendor,
		VendorCategory: category,
		MatchPatterns:  patterns,
		AmountPolicy:   model.AmountPolicy{Kind: model.AmountVariable},
		DueDayOfMonth:  dueDay,
		Active:         true,
	})
}

// WithFixed adds an active obligation billing amount every period.
func (b *CatalogBuilder) WithFixed(vendor string, category model.VendorCategory, amount string, dueDay int, patterns ...string) *CatalogBuilder {
	b.t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		b.t.Fatalf("invalid fixed amount %q: %v", amount, err)
	}
	return b.WithObligation(model.RecurringObligation{
		Vendor:         vendor,
		VendorCategory: category,
		MatchPatterns:  patterns,
		AmountPolicy:   model.AmountPolicy{Kind: model.AmountFixed, Amount: &d},
		DueDayOfMonth:  dueDay,
		Active:         true,
	})
}

// WithDukeEnergy adds the utility most tests use: variable amount, due on
// the 15th, matched by "duke-energy".
func (b *CatalogBuilder) WithDukeEnergy() *CatalogBuilder {
	return b.WithVariable(VendorDukeEnergy, model.CategoryUtility, 15, "duke-energy")
}

// WithParties adds responsible parties by name.
func (b *CatalogBuilder) WithParties(names ...string) *CatalogBuilder {
	b.parties = append(b.parties, names...)
	return b
}

// Build writes everything to w.
func (b *CatalogBuilder) Build(ctx context.Context, w CatalogWriter) (Catalog, error) {
	out := Catalog{Obligations: make(map[string]model.RecurringObligation, len(b.obligations))}

	for i := range b.obligations {
		o := b.obligations[i]
		if err := w.SaveObligation(ctx, &o); err != nil {
			return Catalog{}, fmt.Errorf("obligation %q: %w", o.Vendor, err)
		}
		out.Obligations[o.Vendor] = o
	}

	for _, name := range b.parties {
		p, err := w.AddParty(ctx, name)
		if err != nil {
			return Catalog{}, fmt.Errorf("party %q: %w", name, err)
		}
		out.Parties = append(out.Parties, *p)
	}

	return out, nil
}
