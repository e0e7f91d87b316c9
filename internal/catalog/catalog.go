// Package catalog loads recurring obligations and responsible parties from
// a YAML file into storage.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog layout:
//
//	parties: [alice, bob]
//	obligations:
//	  - vendor: City Power
//	    category: utility
//	    match: ["citypower", "city power"]
//	    due_day: 20
//	  - vendor: Landlord LLC
//	    category: rent
//	    match: ["landlord"]
//	    amount: 1850.00
//	    due_day: 1
type File struct {
	Parties     []string     `yaml:"parties"`
	Obligations []Obligation `yaml:"obligations"`
}

// Obligation is one catalog entry. An empty amount means the obligation
// bills a variable amount.
type Obligation struct {
	Active   *bool    `yaml:"active"`
	Amount   Amount   `yaml:"amount"`
	Vendor   string   `yaml:"vendor"`
	Category string   `yaml:"category"`
	Match    []string `yaml:"match"`
	DueDay   int      `yaml:"due_day"`
}

// Amount is a decimal read from the literal YAML scalar, so 1850.10 keeps
// its cents.
type Amount struct {
	Value *decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a number", node.Line)
	}
	if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
		a.Value = nil
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, node.Value)
	}
	a.Value = &d
	return nil
}

// Writer is the storage the importer writes to.
type Writer interface {
	ListObligations(ctx context.Context) ([]model.RecurringObligation, error)
	SaveObligation(ctx context.Context, obligation *model.RecurringObligation) error
	AddParty(ctx context.Context, name string) (*model.Party, error)
}

// ImportResult counts what an import changed. Obligations are keyed by
// vendor: Updated counts vendors whose stored definition was replaced, and
// Duplicates names vendors the file defines more than once, where the
// later entry wins.
type ImportResult struct {
	Duplicates     []string
	Obligations    int
	Updated        int
	PartiesAdded   int
	PartiesExisted int
}

// Parse decodes a catalog and converts every entry, reporting the first
// invalid one.
func Parse(r io.Reader) (*File, []model.RecurringObligation, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	obligations := make([]model.RecurringObligation, 0, len(f.Obligations))
	for i, entry := range f.Obligations {
		o, err := entry.toModel()
		if err != nil {
			return nil, nil, fmt.Errorf("obligation %d (%s): %w", i+1, entry.Vendor, err)
		}
		obligations = append(obligations, o)
	}
	return &f, obligations, nil
}

func (o Obligation) toModel() (model.RecurringObligation, error) {
	category, err := model.ParseVendorCategory(o.Category)
	if err != nil {
		return model.RecurringObligation{}, err
	}

	policy := model.AmountPolicy{Kind: model.AmountVariable}
	if o.Amount.Value != nil {
		policy = model.AmountPolicy{Kind: model.AmountFixed, Amount: o.Amount.Value}
	}

	active := true
	if o.Active != nil {
		active = *o.Active
	}

	out := model.RecurringObligation{
		Vendor:         strings.TrimSpace(o.Vendor),
		VendorCategory: category,
		MatchPatterns:  o.Match,
		AmountPolicy:   policy,
		DueDayOfMonth:  o.DueDay,
		Active:         active,
	}
	if err := out.Validate(); err != nil {
		return model.RecurringObligation{}, err
	}
	return out, nil
}

// ImportFile parses path and writes its contents with Import.
func ImportFile(ctx context.Context, w Writer, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Import(ctx, w, f)
}

// Import upserts every obligation by vendor and adds parties that do not
// exist yet. Nothing is written when any entry is invalid.
func Import(ctx context.Context, w Writer, r io.Reader) (ImportResult, error) {
	file, obligations, err := Parse(r)
	if err != nil {
		return ImportResult{}, err
	}

	existing, err := w.ListObligations(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to read current catalog: %w", err)
	}
	stored := make(map[string]bool, len(existing))
	for _, o := range existing {
		stored[o.Vendor] = true
	}

	var result ImportResult
	for _, name := range file.Parties {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		_, err := w.AddParty(ctx, name)
		switch {
		case errors.Is(err, common.ErrDuplicateEntry):
			result.PartiesExisted++
		case err != nil:
			return result, fmt.Errorf("failed to add party %q: %w", name, err)
		default:
			result.PartiesAdded++
		}
	}

	seen := make(map[string]bool, len(obligations))
	for i := range obligations {
		vendor := obligations[i].Vendor
		switch {
		case seen[vendor]:
			result.Duplicates = append(result.Duplicates, vendor)
			slog.Warn("catalog defines vendor more than once, later entry wins", "vendor", vendor)
		case stored[vendor]:
			result.Updated++
		}
		seen[vendor] = true

		if err := w.SaveObligation(ctx, &obligations[i]); err != nil {
			return result, fmt.Errorf("failed to save obligation %q: %w", vendor, err)
		}
		result.Obligations++
	}

	slog.Info("imported catalog",
		"obligations", result.Obligations,
		"updated", result.Updated,
		"duplicates", len(result.Duplicates),
		"parties_added", result.PartiesAdded,
		"parties_existing", result.PartiesExisted)
	return result, nil
}
