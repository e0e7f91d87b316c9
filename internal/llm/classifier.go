package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
)

// Classifier limits.
const (
	DefaultConfidenceFloor = 50
	DefaultTimeout         = 30 * time.Second
	maxBodyChars           = 2000
)

const systemPrompt = `You read household email and decide whether it is a bill, a payment confirmation, or neither.
You MUST respond with ONLY one JSON object and no other text.`

// BillClassifier turns messages into bill classifications using an LLM.
type BillClassifier struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
	timeout     time.Duration
	floor       int
}

// NewBillClassifier creates a classifier for the configured provider.
func NewBillClassifier(cfg Config, logger *slog.Logger) (*BillClassifier, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewBillClassifierWithClient(client, cfg, logger), nil
}

// NewBillClassifierWithClient wraps an existing client.
func NewBillClassifierWithClient(client Client, cfg Config, logger *slog.Logger) *BillClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	floor := cfg.ConfidenceFloor
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}

	return &BillClassifier{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		timeout:     timeout,
		floor:       floor,
	}
}

// Classify returns the bill classification for msg, or nil when the message
// is not a bill: low confidence, money received, or a reply that cannot be
// decoded. Transport and provider failures are returned as errors wrapping
// common.ErrClassificationFailed.
func (c *BillClassifier) Classify(ctx context.Context, msg model.Message) (*model.BillClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(msg)

	var reply string
	err := common.WithRetry(ctx, func() error {
		if err := c.rateLimiter.wait(ctx); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		var callErr error
		reply, callErr = c.client.Complete(ctx, systemPrompt, prompt)
		return callErr
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", common.ErrClassificationFailed, msg.ID, err)
	}

	parsed, err := parseBillReply(reply)
	if err != nil {
		c.logDecodeFailure(msg, err)
		return nil, nil
	}

	if *parsed.Confidence < c.floor {
		c.logger.Debug("classification below confidence floor",
			"message_id", msg.ID,
			"confidence", *parsed.Confidence,
			"floor", c.floor)
		return nil, nil
	}

	if parsed.TransferDirection == transferIncoming {
		c.logger.Debug("incoming transfer is not a bill", "message_id", msg.ID, "vendor", parsed.Vendor)
		return nil, nil
	}

	classification, err := parsed.toClassification()
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Raw = reply
		}
		c.logDecodeFailure(msg, err)
		return nil, nil
	}

	c.logger.Info("message classified",
		"message_id", msg.ID,
		"vendor", classification.Vendor,
		"category", classification.VendorCategory,
		"payment", classification.IsPaymentConfirmation,
		"confidence", classification.Confidence)

	return classification, nil
}

func (c *BillClassifier) logDecodeFailure(msg model.Message, err error) {
	attrs := []any{"message_id", msg.ID, "error", err}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Raw != "" {
		attrs = append(attrs, "raw", compactJSON(decodeErr.Raw))
	}
	c.logger.Warn("discarding undecodable classification", attrs...)
}

// buildPrompt creates the classification prompt for a message.
func buildPrompt(msg model.Message) string {
	var sb strings.Builder

	sb.WriteString("Classify this email.\n\n")
	fmt.Fprintf(&sb, "From: %s\n", msg.From)
	fmt.Fprintf(&sb, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&sb, "Snippet: %s\n", msg.Snippet)
	fmt.Fprintf(&sb, "Body:\n%s\n\n", truncate(msg.Body, maxBodyChars))

	sb.WriteString(`Respond with exactly this JSON shape:
{
  "vendor": "canonical biller or payee name",
  "vendorCategory": "UTILITY" | "CREDIT_CARD" | "RENT" | "SUBSCRIPTION" | "TRANSFER" | "OTHER",
  "amount": 142.50 or null,
  "dueDate": "YYYY-MM-DD" or null,
  "isPaymentConfirmation": true or false,
  "paymentMethod": "how it was paid" or null,
  "transferDirection": "outgoing" | "incoming" | "",
  "confidence": 0-100
}

Rules:
- A bill notice or statement has isPaymentConfirmation false.
- A receipt that a bill was paid has isPaymentConfirmation true.
- For person-to-person transfers (Zelle, Venmo, wire), vendor is the other person.
  Use "outgoing" when the account holder sent money and "incoming" when they received it.
- Promotions, newsletters, and anything else that is not a bill get confidence below 20.
`)

	return sb.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
