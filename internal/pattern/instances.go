package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/billflow/internal/model"
)

// VendorKey is the normalized key used to find a vendor's existing bill
// instances: the lowercased first whitespace-delimited token of the name.
// "Duke Energy" and "Duke Energy Corp" share the key "duke".
func VendorKey(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// VendorMatches reports whether an instance vendor belongs to key.
func VendorMatches(key, vendor string) bool {
	if key == "" {
		return false
	}
	return strings.Contains(strings.ToLower(vendor), key)
}

// FindOpenInstance returns the first instance in period whose vendor matches
// the key of vendor, skipping instances created from excludingMessageID.
// With pendingOnly set, PAID instances are skipped as well.
func FindOpenInstance(ctx context.Context, lister InstanceLister, vendor, period, excludingMessageID string, pendingOnly bool) (*model.BillInstance, error) {
	key := VendorKey(vendor)
	if key == "" {
		return nil, nil
	}

	instances, err := lister.ListBillInstancesByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list bill instances for %s: %w", period, err)
	}

	for i := range instances {
		inst := &instances[i]
		if excludingMessageID != "" && inst.SourceMessageID == excludingMessageID {
			continue
		}
		if pendingOnly && inst.Status != model.BillPending {
			continue
		}
		if VendorMatches(key, inst.Vendor) {
			return inst, nil
		}
	}
	return nil, nil
}
