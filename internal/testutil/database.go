// Package testutil provides shared fixtures for tests that need a real
// ledger database.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Veraticus/billflow/internal/service"
	"github.com/Veraticus/billflow/internal/storage"
)

// TestDB is a migrated, file-backed SQLite store scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Catalog Catalog
	t       *testing.T
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Catalog        *CatalogBuilder
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in the test's temp dir. A file is
// used rather than :memory: so WAL and immediate transactions behave as in
// production.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.Seed(testutil.NewCatalogBuilder(t).WithParties("alice", "bob"))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "billflow-test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}
	if opts.Catalog != nil {
		db.Seed(opts.Catalog)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// Seed writes the builder's obligations and parties, merging them into
// db.Catalog.
func (db *TestDB) Seed(builder *CatalogBuilder) Catalog {
	db.t.Helper()

	built, err := builder.Build(context.Background(), db.Storage)
	if err != nil {
		db.t.Fatalf("failed to seed catalog: %v", err)
	}
	db.Catalog = db.Catalog.merge(built)
	return built
}

// WithTransaction runs fn inside a transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
