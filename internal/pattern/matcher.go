package pattern

import (
	"strings"

	"github.com/Veraticus/billflow/internal/model"
)

// Matcher selects the catalog obligation a message belongs to.
type Matcher struct {
	obligations []model.RecurringObligation
	patterns    [][]string
}

// NewMatcher creates a matcher over obligations in catalog order.
// Inactive obligations and obligations without patterns never match.
func NewMatcher(obligations []model.RecurringObligation) *Matcher {
	m := &Matcher{}
	for _, o := range obligations {
		if !o.Active || len(o.MatchPatterns) == 0 {
			continue
		}
		lowered := make([]string, 0, len(o.MatchPatterns))
		for _, p := range o.MatchPatterns {
			lowered = append(lowered, strings.ToLower(p))
		}
		m.obligations = append(m.obligations, o)
		m.patterns = append(m.patterns, lowered)
	}
	return m
}

// Match returns the first obligation whose every pattern appears in the
// message's sender, subject, and snippet, ignoring case. Catalog order breaks
// ties, so overlapping patterns always resolve the same way.
func (m *Matcher) Match(msg model.Message) *model.RecurringObligation {
	text := strings.ToLower(msg.MatchText())

	for i, patterns := range m.patterns {
		if containsAll(text, patterns) {
			match := m.obligations[i]
			return &match
		}
	}
	return nil
}

// MatchObligation is a one-shot Match over obligations.
func MatchObligation(msg model.Message, obligations []model.RecurringObligation) *model.RecurringObligation {
	return NewMatcher(obligations).Match(msg)
}

func containsAll(text string, patterns []string) bool {
	for _, p := range patterns {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}

// ApplyObligation makes the catalog authoritative over the classifier: the
// obligation's vendor and category replace the classified ones, and a FIXED
// amount replaces whatever amount was extracted.
func ApplyObligation(c *model.BillClassification, o *model.RecurringObligation) {
	if c == nil || o == nil {
		return
	}
	c.Vendor = o.Vendor
	c.VendorCategory = o.VendorCategory
	if fixed := o.AmountPolicy.FixedAmount(); fixed != nil {
		c.Amount = fixed
	}
}
