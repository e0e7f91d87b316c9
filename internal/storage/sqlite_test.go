package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

// createTestStorage creates a migrated file-backed store with a fixed clock.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	store.now = func() time.Time { return testNow }

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestBill(id, vendor string) *model.BillInstance {
	return &model.BillInstance{
		ID:              id,
		Vendor:          vendor,
		BillingPeriod:   "2024-03",
		VendorCategory:  model.CategoryUtility,
		Amount:          dec("142.50"),
		DueDate:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:          model.BillPending,
		SourceMessageID: "msg-" + id,
		SourceSummary:   "billing@" + vendor + " | Your bill is ready",
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		store, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Migrate(context.Background()))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewSQLiteStorage("  ")
		require.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("creates parent directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "bills.db")
		store, err := NewSQLiteStorage(dbPath)
		require.NoError(t, err)
		_ = store.Close()
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSchemaVersion_Unmigrated(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestBeginTx_RollbackDiscardsWrites(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateBillInstance(ctx, newTestBill("b1", "Duke Energy")))
	inserted, err := tx.MarkProcessed(ctx, &model.ProcessedMessage{SourceMessageID: "msg-b1", Action: model.ActionCreatedNew})
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, tx.Rollback())

	bills, err := store.ListBillInstancesByPeriod(ctx, "2024-03")
	require.NoError(t, err)
	assert.Empty(t, bills)

	processed, err := store.AlreadyProcessed(ctx, "msg-b1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestBeginTx_CommitPersistsWrites(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateBillInstance(ctx, newTestBill("b1", "Duke Energy")))

	bills, err := tx.ListBillInstancesByPeriod(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, bills, 1)

	require.NoError(t, tx.Commit())

	got, err := store.GetBillInstance(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Duke Energy", got.Vendor)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("142.50")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(common.ErrNotFound))
}
