// Package engine reconciles incoming messages against the bill ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/billflow/internal/ledger"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/pattern"
	"github.com/Veraticus/billflow/internal/service"
)

// Outcome describes what processing one message did.
type Outcome struct {
	Err            error
	MessageID      string
	Vendor         string
	BillInstanceID string
	Action         model.Action
	Created        bool
	Skipped        bool
}

// Failed reports whether the message was left unprocessed by an error.
func (o Outcome) Failed() bool {
	return o.Err != nil && !o.Skipped
}

// Config holds configuration options for the engine.
type Config struct {
	Workers int
	DryRun  bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Engine is the reconciliation orchestrator.
type Engine struct {
	store      Store
	classifier Classifier
	notifier   Notifier
	ledger     *ledger.Ledger
	logger     *slog.Logger
	now        func() time.Time
	config     Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the notifier for committed ledger changes.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the processing time used for billing periods.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLedger overrides the ledger used to apply transitions.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine with the given dependencies.
func New(store Store, classifier Classifier, config Config, opts ...Option) *Engine {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}

	e := &Engine{
		store:      store,
		classifier: classifier,
		config:     config,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger == nil {
		e.ledger = ledger.New(e.logger, ledger.WithClock(e.now))
	}
	return e
}

// Process reconciles a single message.
//
// A message already recorded is returned as already_processed without
// calling the classifier. Otherwise the ledger change and the processed
// record are committed in one transaction, so a message is either fully
// applied and recorded or, on a ledger error, left for the next run.
// Classifier failures are not errors: the message is recorded as not_a_bill
// together with the failure text.
func (e *Engine) Process(ctx context.Context, msg model.Message) (Outcome, error) {
	out := Outcome{MessageID: msg.ID}
	if msg.ID == "" {
		out.Err = errors.New("message has no id")
		return out, out.Err
	}

	done, err := e.store.AlreadyProcessed(ctx, msg.ID)
	if err != nil {
		out.Err = fmt.Errorf("failed to check processed state: %w", err)
		return out, out.Err
	}
	if done {
		out.Action = model.ActionAlreadyProcessed
		return out, nil
	}

	classification, classifyErr := e.classifier.Classify(ctx, msg)
	if classifyErr != nil {
		e.logger.Warn("classification failed, recording as not a bill",
			"message_id", msg.ID,
			"error", classifyErr)
		classification = nil
	}

	if classification == nil {
		record := &model.ProcessedMessage{
			SourceMessageID: msg.ID,
			Action:          model.ActionNotABill,
		}
		if classifyErr != nil {
			record.ClassifierError = classifyErr.Error()
		}
		return e.commit(ctx, out, record, func(service.Transaction) (*ledger.Result, error) {
			return nil, nil
		})
	}

	obligations, err := e.store.ListActiveObligations(ctx)
	if err != nil {
		out.Err = fmt.Errorf("failed to load obligation catalog: %w", err)
		return out, out.Err
	}
	obligation := pattern.MatchObligation(msg, obligations)
	pattern.ApplyObligation(classification, obligation)

	entry := ledger.Entry{
		Message:        msg,
		Classification: classification,
		Obligation:     obligation,
		Period:         model.BillingPeriod(e.now()),
	}

	record := &model.ProcessedMessage{
		SourceMessageID: msg.ID,
		MatchedVendor:   classification.Vendor,
	}
	return e.commit(ctx, out, record, func(tx service.Transaction) (*ledger.Result, error) {
		return e.ledger.Record(ctx, tx, entry)
	})
}

// commit runs apply and writes record in one transaction. The processed
// check is repeated inside the transaction so a concurrent run that won the
// race turns this one into a rolled back already_processed.
func (e *Engine) commit(ctx context.Context, out Outcome, record *model.ProcessedMessage, apply func(service.Transaction) (*ledger.Result, error)) (Outcome, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		out.Err = fmt.Errorf("failed to begin transaction: %w", err)
		return out, out.Err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	done, err := tx.AlreadyProcessed(ctx, record.SourceMessageID)
	if err != nil {
		out.Err = fmt.Errorf("failed to check processed state: %w", err)
		return out, out.Err
	}
	if done {
		out.Action = model.ActionAlreadyProcessed
		return out, nil
	}

	result, err := apply(tx)
	if err != nil {
		out.Err = fmt.Errorf("ledger write for message %s: %w", record.SourceMessageID, err)
		e.logger.Error("ledger write failed, message left unprocessed",
			"message_id", record.SourceMessageID,
			"error", err)
		return out, out.Err
	}
	if result != nil {
		record.Action = result.Action
		record.BillInstanceID = result.Instance.ID
		out.BillInstanceID = result.Instance.ID
		out.Vendor = result.Instance.Vendor
	}
	out.Action = record.Action
	out.Created = record.Action == model.ActionCreatedNew || record.Action == model.ActionCreatedPaid

	inserted, err := tx.MarkProcessed(ctx, record)
	if err != nil {
		out.Err = fmt.Errorf("failed to record processed message: %w", err)
		return out, out.Err
	}
	if !inserted {
		return Outcome{MessageID: out.MessageID, Action: model.ActionAlreadyProcessed}, nil
	}

	if e.config.DryRun {
		return out, nil
	}

	if err := tx.Commit(); err != nil {
		out = Outcome{MessageID: out.MessageID, Err: fmt.Errorf("failed to commit: %w", err)}
		return out, out.Err
	}
	committed = true

	if result != nil {
		e.notify(ctx, record.SourceMessageID, result)
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, messageID string, result *ledger.Result) {
	if e.notifier == nil {
		return
	}
	switch result.Action {
	case model.ActionCreatedNew, model.ActionCreatedPaid, model.ActionMarkedPaid:
	default:
		return
	}

	event := model.LedgerEvent{
		Action:     result.Action,
		Instance:   *result.Instance,
		MessageID:  messageID,
		OccurredAt: e.now(),
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("notification failed",
			"message_id", messageID,
			"action", result.Action,
			"error", err)
	}
}
