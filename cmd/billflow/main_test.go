package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a fresh config and database.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfg); os.IsNotExist(err) {
		require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: error\n"), 0o600))
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config", cfg,
		"--database", filepath.Join(dir, "billflow.db"),
		"--log-level", "error",
	}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"reconcile", "catalog", "parties", "bills", "processed", "gmail", "migrate", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "billflow dev")
}

func TestReconcile_RequiresSource(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "reconcile")
	require.Error(t, err)

	_, err = runCLI(t, t.TempDir(), "reconcile", "--input", "a.json", "--gmail")
	require.Error(t, err)
}

func TestReconcile_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "messages.json")
	require.NoError(t, os.WriteFile(input, []byte("[]"), 0o600))

	out, err := runCLI(t, dir, "reconcile", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "No messages to reconcile")
}

func TestCatalogPartiesAndBills(t *testing.T) {
	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogFile, []byte(`
parties: [alice]
obligations:
  - vendor: City Power
    category: utility
    match: [citypower]
    due_day: 20
`), 0o600))

	out, err := runCLI(t, dir, "catalog", "import", catalogFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 obligations (0 replaced existing)")

	out, err = runCLI(t, dir, "catalog", "import", catalogFile)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 replaced existing)")

	out, err = runCLI(t, dir, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "City Power")

	out, err = runCLI(t, dir, "parties", "add", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Added bob")

	out, err = runCLI(t, dir, "parties", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")

	out, err = runCLI(t, dir, "bills", "list", "--period", "2024-03")
	require.NoError(t, err)
	assert.Contains(t, out, "No bills found")

	out, err = runCLI(t, dir, "processed", "list", "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No processed messages")
}

func TestBillsList_InvalidFilters(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "bills", "list", "--period", "March")
	assert.ErrorContains(t, err, "expected YYYY-MM")

	_, err = runCLI(t, t.TempDir(), "bills", "list", "--status", "overdue")
	assert.ErrorContains(t, err, "PENDING or PAID")
}

func TestMigrateStatus(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 0")

	_, err = runCLI(t, dir, "migrate")
	require.NoError(t, err)

	out, err = runCLI(t, dir, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 3 (latest 3)")
}

func TestProcessedForget_Unknown(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "processed", "forget", "nope")
	assert.Error(t, err)
}
