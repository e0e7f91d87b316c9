// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/billflow/internal/model"
)

// BillFilter defines filtering options for bill instance queries.
type BillFilter struct {
	Status        *model.BillStatus
	BillingPeriod string
	Limit         int
}

// ProcessedFilter defines filtering options for processed message queries.
type ProcessedFilter struct {
	Since        *time.Time
	OnlyFailures bool
	Limit        int
}

// CatalogReader exposes the recurring obligation catalog.
type CatalogReader interface {
	ListActiveObligations(ctx context.Context) ([]model.RecurringObligation, error)
}

// PartyLister exposes the current set of responsible parties.
type PartyLister interface {
	ListResponsibleParties(ctx context.Context) ([]string, error)
}

// Ledger is the bill instance store used by the reconciliation transitions.
type Ledger interface {
	CreateBillInstance(ctx context.Context, bill *model.BillInstance) error
	UpdateBillInstance(ctx context.Context, bill *model.BillInstance) error
	GetBillInstance(ctx context.Context, id string) (*model.BillInstance, error)
	ListBillInstancesByPeriod(ctx context.Context, period string) ([]model.BillInstance, error)
	ReplaceAllocations(ctx context.Context, billID string, allocations []model.AllocatedPayment) error
	GetAllocations(ctx context.Context, billID string) ([]model.AllocatedPayment, error)
	PartyLister
}

// IdempotencyGuard tracks which source messages have been handled.
type IdempotencyGuard interface {
	AlreadyProcessed(ctx context.Context, sourceMessageID string) (bool, error)
	// MarkProcessed inserts the record unless one exists already.
	// inserted is false when another writer recorded the message first.
	MarkProcessed(ctx context.Context, record *model.ProcessedMessage) (inserted bool, err error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	CatalogReader
	Ledger
	IdempotencyGuard

	// Catalog administration
	SaveObligation(ctx context.Context, obligation *model.RecurringObligation) error
	ListObligations(ctx context.Context) ([]model.RecurringObligation, error)
	DeactivateObligation(ctx context.Context, id int64) error

	// Party administration
	AddParty(ctx context.Context, name string) (*model.Party, error)
	ListParties(ctx context.Context) ([]model.Party, error)
	RemoveParty(ctx context.Context, id string) error

	// Reporting
	ListBillInstances(ctx context.Context, filter BillFilter) ([]model.BillInstance, error)
	ListProcessed(ctx context.Context, filter ProcessedFilter) ([]model.ProcessedMessage, error)
	ForgetProcessed(ctx context.Context, sourceMessageID string) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Ledger
	IdempotencyGuard
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
