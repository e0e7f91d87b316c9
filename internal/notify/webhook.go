package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/billflow/internal/model"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookPayload is the JSON body posted for each event.
type WebhookPayload struct {
	OccurredAt    time.Time           `json:"occurred_at"`
	Amount        *string             `json:"amount,omitempty"`
	Event         string              `json:"event"`
	MessageID     string              `json:"message_id"`
	BillID        string              `json:"bill_id"`
	Vendor        string              `json:"vendor"`
	BillingPeriod string              `json:"billing_period"`
	DueDate       string              `json:"due_date"`
	Status        string              `json:"status"`
	PaidVia       string              `json:"paid_via,omitempty"`
	Allocations   []WebhookAllocation `json:"allocations,omitempty"`
}

// WebhookAllocation is one party's share in a payload.
type WebhookAllocation struct {
	PartyID string `json:"party_id"`
	Amount  string `json:"amount"`
}

// WebhookNotifier posts events as JSON to a fixed URL.
type WebhookNotifier struct {
	client *http.Client
	url    string
}

// NewWebhookNotifier creates a notifier for url. A zero timeout uses
// DefaultWebhookTimeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event model.LedgerEvent) error {
	body, err := json.Marshal(NewWebhookPayload(event))
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NewWebhookPayload flattens an event into its wire form.
func NewWebhookPayload(event model.LedgerEvent) WebhookPayload {
	inst := event.Instance
	p := WebhookPayload{
		OccurredAt:    event.OccurredAt.UTC(),
		DueDate:       inst.DueDate.Format(time.DateOnly),
		Event:         string(event.Action),
		MessageID:     event.MessageID,
		BillID:        inst.ID,
		Vendor:        inst.Vendor,
		BillingPeriod: inst.BillingPeriod,
		Status:        string(inst.Status),
		PaidVia:       inst.PaidVia,
	}
	if inst.Amount != nil {
		amount := inst.Amount.StringFixed(2)
		p.Amount = &amount
	}
	for _, a := range inst.Allocations {
		p.Allocations = append(p.Allocations, WebhookAllocation{
			PartyID: a.PartyID,
			Amount:  a.Amount.StringFixed(2),
		})
	}
	return p
}
