// Package storage provides the data persistence layer for billflow.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
}

var (
	_ service.Storage     = (*SQLiteStorage)(nil)
	_ service.Transaction = (*sqliteTransaction)(nil)
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStorage creates a new SQLite storage instance.
//
// Transactions are opened with BEGIN IMMEDIATE so that a reconciliation
// transaction holds the write lock from its first read. Concurrent batch
// runs, including ones in other processes, therefore serialize their
// find-then-create decisions on the database itself.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// isUniqueViolation reports whether err is a SQLite unique or primary key violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
// Every method must go through t.tx: the pool holds a single connection,
// so touching storage.db here would deadlock.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTransaction) CreateBillInstance(ctx context.Context, bill *model.BillInstance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBillInstance(bill); err != nil {
		return err
	}
	return t.storage.createBillInstanceTx(ctx, t.tx, bill)
}

func (t *sqliteTransaction) UpdateBillInstance(ctx context.Context, bill *model.BillInstance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBillInstance(bill); err != nil {
		return err
	}
	return t.storage.updateBillInstanceTx(ctx, t.tx, bill)
}

func (t *sqliteTransaction) GetBillInstance(ctx context.Context, id string) (*model.BillInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getBillInstanceTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListBillInstancesByPeriod(ctx context.Context, period string) ([]model.BillInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	return t.storage.listBillInstancesTx(ctx, t.tx, service.BillFilter{BillingPeriod: period})
}

func (t *sqliteTransaction) ReplaceAllocations(ctx context.Context, billID string, allocations []model.AllocatedPayment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(billID, "billID"); err != nil {
		return err
	}
	return t.storage.replaceAllocationsTx(ctx, t.tx, billID, allocations)
}

func (t *sqliteTransaction) GetAllocations(ctx context.Context, billID string) ([]model.AllocatedPayment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAllocationsTx(ctx, t.tx, billID)
}

func (t *sqliteTransaction) ListResponsibleParties(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listResponsiblePartiesTx(ctx, t.tx)
}

func (t *sqliteTransaction) AlreadyProcessed(ctx context.Context, sourceMessageID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(sourceMessageID, "sourceMessageID"); err != nil {
		return false, err
	}
	return t.storage.alreadyProcessedTx(ctx, t.tx, sourceMessageID)
}

func (t *sqliteTransaction) MarkProcessed(ctx context.Context, record *model.ProcessedMessage) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateProcessed(record); err != nil {
		return false, err
	}
	return t.storage.markProcessedTx(ctx, t.tx, record)
}
