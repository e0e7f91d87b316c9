package engine

//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks github.com/Veraticus/billflow/internal/engine Classifier,Notifier

import (
	"context"

	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
)

// Classifier turns a message into a bill classification. A nil
// classification with a nil error means the message is not a bill.
type Classifier interface {
	Classify(ctx context.Context, msg model.Message) (*model.BillClassification, error)
}

// Notifier receives events for ledger changes after they are committed.
type Notifier interface {
	Notify(ctx context.Context, event model.LedgerEvent) error
}

// Store is the persistence the engine needs.
type Store interface {
	service.CatalogReader
	service.IdempotencyGuard
	BeginTx(ctx context.Context) (service.Transaction, error)
}
