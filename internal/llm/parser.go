package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/model"
	"github.com/shopspring/decimal"
)

// Transfer directions reported by the model for person-to-person payments.
const (
	transferOutgoing = "outgoing"
	transferIncoming = "incoming"
)

const dueDateLayout = "2006-01-02"

// ErrNoJSONObject is returned when a reply contains no balanced JSON object.
var ErrNoJSONObject = errors.New("no JSON object in response")

// DecodeError reports a model reply that does not match the classification shape.
type DecodeError struct {
	Err error
	Raw string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable classification: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// billReply is the exact JSON shape the model is asked to produce.
type billReply struct {
	Amount                *decimal.Decimal `json:"amount"`
	DueDate               *string          `json:"dueDate"`
	PaymentMethod         *string          `json:"paymentMethod"`
	Confidence            *int             `json:"confidence"`
	Vendor                string           `json:"vendor"`
	VendorCategory        string           `json:"vendorCategory"`
	TransferDirection     string           `json:"transferDirection"`
	IsPaymentConfirmation bool             `json:"isPaymentConfirmation"`
}

// parseBillReply extracts and strictly decodes the first JSON object in text.
// Field-level checks that do not depend on the confidence floor happen here.
func parseBillReply(text string) (*billReply, error) {
	raw, ok := extractJSONObject(stripCodeFences(text))
	if !ok {
		return nil, &DecodeError{Err: ErrNoJSONObject, Raw: text}
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var reply billReply
	if err := dec.Decode(&reply); err != nil {
		return nil, &DecodeError{Err: err, Raw: raw}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Err: errors.New("trailing data after object"), Raw: raw}
	}

	if reply.Confidence == nil {
		return nil, &DecodeError{Err: errors.New("missing confidence"), Raw: raw}
	}
	if *reply.Confidence < 0 || *reply.Confidence > 100 {
		return nil, &DecodeError{Err: fmt.Errorf("confidence %d out of range 0..100", *reply.Confidence), Raw: raw}
	}
	if reply.Amount != nil && reply.Amount.IsNegative() {
		return nil, &DecodeError{Err: fmt.Errorf("negative amount %s", reply.Amount), Raw: raw}
	}
	switch reply.TransferDirection {
	case "", transferOutgoing, transferIncoming:
	default:
		return nil, &DecodeError{Err: fmt.Errorf("unknown transferDirection %q", reply.TransferDirection), Raw: raw}
	}

	return &reply, nil
}

// toClassification converts an accepted reply into the domain type.
func (r *billReply) toClassification() (*model.BillClassification, error) {
	vendor := strings.TrimSpace(r.Vendor)
	if vendor == "" {
		return nil, &DecodeError{Err: errors.New("missing vendor")}
	}

	category, err := model.ParseVendorCategory(r.VendorCategory)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	c := &model.BillClassification{
		Vendor:                vendor,
		VendorCategory:        category,
		Amount:                r.Amount,
		Confidence:            *r.Confidence,
		IsPaymentConfirmation: r.IsPaymentConfirmation || r.TransferDirection == transferOutgoing,
	}

	if r.PaymentMethod != nil {
		c.PaymentMethod = strings.TrimSpace(*r.PaymentMethod)
	}

	if r.DueDate != nil && strings.TrimSpace(*r.DueDate) != "" {
		due, err := time.ParseInLocation(dueDateLayout, strings.TrimSpace(*r.DueDate), time.UTC)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("dueDate %q: %w", *r.DueDate, err)}
		}
		c.DueDate = &due
	}

	return c, nil
}

// stripCodeFences removes a surrounding markdown code fence, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced {...} substring of s.
// Braces inside string literals, including escaped quotes, are ignored.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchingBrace(s[start:]); end > 0 {
			candidate := s[start : start+end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchingBrace returns the index of the brace closing s[0], or -1.
func matchingBrace(s string) int {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// compactJSON is used when logging raw replies.
func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return truncate(raw, 256)
	}
	return truncate(buf.String(), 256)
}
