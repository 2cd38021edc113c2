package persist_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow-labs/formflow/internal/persist"
)

func newSQLiteAdapter(t *testing.T) (*persist.SQLiteAdapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forms.db")
	a, err := persist.NewSQLiteAdapter(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, path
}

// TestSQLiteSaveLoadClear covers the basic adapter lifecycle for one form.
// Values round-trip through JSON, so numbers come back as float64.
func TestSQLiteSaveLoadClear(t *testing.T) {
	a, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	_, found, err := a.Load(ctx, "form-1")
	require.NoError(t, err)
	assert.False(t, found, "nothing persisted yet")

	require.NoError(t, a.Save(ctx, "form-1", map[string]interface{}{"email": "a@b.c", "age": 30}))

	loaded, found, err := a.Load(ctx, "form-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"email": "a@b.c", "age": float64(30)}, loaded)

	require.NoError(t, a.Clear(ctx, "form-1"))
	_, found, err = a.Load(ctx, "form-1")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestSQLiteFormsAreIsolated verifies forms are keyed independently.
func TestSQLiteFormsAreIsolated(t *testing.T) {
	a, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, "form-1", map[string]interface{}{"k": "one"}))
	require.NoError(t, a.Save(ctx, "form-2", map[string]interface{}{"k": "two"}))

	loaded, found, err := a.Load(ctx, "form-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "one", loaded["k"])

	require.NoError(t, a.Clear(ctx, "form-1"))
	_, found, _ = a.Load(ctx, "form-2")
	assert.True(t, found, "clearing one form must not touch another")
}

// TestSQLiteSaveReplacesSnapshot verifies Save replaces the previous value
// map wholesale rather than merging.
func TestSQLiteSaveReplacesSnapshot(t *testing.T) {
	a, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, "form-1", map[string]interface{}{"a": "x", "b": "y"}))
	require.NoError(t, a.Save(ctx, "form-1", map[string]interface{}{"a": "z"}))

	loaded, _, err := a.Load(ctx, "form-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "z"}, loaded)
}

// TestSQLiteSurvivesReopen verifies rows written through one adapter are
// readable through a fresh adapter on the same file, which is the point of
// the SQLite backend over the in-memory one.
func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.db")
	ctx := context.Background()

	first, err := persist.NewSQLiteAdapter(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "form-1", map[string]interface{}{"draft": "kept"}))
	require.NoError(t, first.Close())

	second, err := persist.NewSQLiteAdapter(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, found, err := second.Load(ctx, "form-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "kept", loaded["draft"])
}

// TestSQLiteRejectsEmptyPath verifies construction fails fast without a
// database path.
func TestSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := persist.NewSQLiteAdapter("")
	assert.Error(t, err)
}
