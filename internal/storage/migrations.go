package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS recurring_obligations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor TEXT UNIQUE NOT NULL,
					vendor_category TEXT NOT NULL,
					match_patterns TEXT NOT NULL,
					amount_kind TEXT NOT NULL CHECK (amount_kind IN ('FIXED', 'VARIABLE')),
					fixed_amount TEXT,
					due_day_of_month INTEGER NOT NULL CHECK (due_day_of_month BETWEEN 1 AND 31),
					active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_recurring_obligations_active ON recurring_obligations(active)`,

				`CREATE TABLE IF NOT EXISTS bill_instances (
					id TEXT PRIMARY KEY,
					vendor TEXT NOT NULL,
					billing_period TEXT NOT NULL,
					recurring_obligation_id INTEGER REFERENCES recurring_obligations(id),
					vendor_category TEXT NOT NULL,
					amount TEXT,
					due_date TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID')),
					paid_date DATETIME,
					paid_via TEXT,
					source_message_id TEXT NOT NULL,
					source_summary TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE (vendor, billing_period),
					CHECK ((status = 'PAID') = (paid_date IS NOT NULL))
				)`,
				`CREATE INDEX idx_bill_instances_period ON bill_instances(billing_period)`,

				`CREATE TABLE IF NOT EXISTS processed_messages (
					source_message_id TEXT PRIMARY KEY,
					matched_vendor TEXT,
					bill_instance_id TEXT,
					action TEXT NOT NULL,
					processed_at DATETIME NOT NULL
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add responsible parties and allocated payments",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS parties (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS allocated_payments (
					id TEXT PRIMARY KEY,
					bill_instance_id TEXT NOT NULL REFERENCES bill_instances(id) ON DELETE CASCADE,
					party_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID')),
					paid_date DATETIME,
					UNIQUE (bill_instance_id, party_id)
				)`,
				`CREATE INDEX idx_allocated_payments_bill ON allocated_payments(bill_instance_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Track classifier failures on processed messages",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE processed_messages ADD COLUMN classifier_error TEXT NOT NULL DEFAULT ''`,
				`CREATE INDEX idx_processed_messages_action ON processed_messages(action)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
