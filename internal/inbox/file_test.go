package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSource_JSONArray(t *testing.T) {
	path := writeFile(t, `[
		{"id": "m1", "from": "billing@power.example", "subject": "Your bill", "date": "2024-03-02T10:00:00Z"},
		{"id": "m2", "from": "alerts@bank.example", "subject": "Payment received"}
	]`)

	msgs, err := NewFileSource(path).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "billing@power.example", msgs[0].From)
	assert.Equal(t, 2024, msgs[0].Date.Year())
	assert.Equal(t, "Payment received", msgs[1].Subject)
}

func TestFileSource_JSONLines(t *testing.T) {
	path := writeFile(t, "{\"id\": \"m1\", \"body\": \"due soon\"}\n\n{\"id\": \"m2\"}\n")

	msgs, err := NewFileSource(path).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "due soon", msgs[0].Body)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestFileSource_Empty(t *testing.T) {
	msgs, err := NewFileSource(writeFile(t, "  \n")).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFileSource_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.json")).Fetch(context.Background())
		assert.Error(t, err)
	})

	t.Run("bad line", func(t *testing.T) {
		_, err := NewFileSource(writeFile(t, "{\"id\": \"m1\"}\n{not json}\n")).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message 2")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFileSource(writeFile(t, "[]")).Fetch(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
