package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/billflow/internal/config"
	"github.com/Veraticus/billflow/internal/storage"
)

// loadSettings resolves configuration after flags and the config file are read.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// initStorage opens the ledger database and brings its schema up to date.
func initStorage(ctx context.Context, settings *config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("opened ledger database", "path", settings.DatabasePath)
	return store, nil
}

func closeStore(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}
