package pointer_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/pkg/pointer"
)

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inventory")
	at := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	err := pointer.Write(dir, pointer.Record{ID: "inv_20240601", Path: "inventory/inv_20240601/inventory.csv", UpdatedAt: at})
	require.NoError(t, err)

	rec, err := pointer.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, pointer.Version, rec.Version)
	assert.Equal(t, "inv_20240601", rec.ID)
	assert.Equal(t, at, rec.UpdatedAt)
	assert.Equal(t, filepath.Join("/out", "inventory", "inv_20240601", "inventory.csv"), rec.Resolve("/out"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the pointer file remains")
	assert.Equal(t, pointer.FileName, entries[0].Name())
}

func TestRead_Missing(t *testing.T) {
	_, err := pointer.Read(t.TempDir())
	assert.True(t, errors.Is(err, pointer.ErrNotFound))
}

func TestRead_Legacy(t *testing.T) {
	t.Run("inventory", func(t *testing.T) {
		dir := t.TempDir()
		body := `{"inventory_run_id": "root_inventory_20240101_000000", "inventory_csv": "inventory/root_inventory_20240101_000000/inventory.csv"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, pointer.FileName), []byte(body), 0644))

		rec, err := pointer.Read(dir)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
		assert.Equal(t, "root_inventory_20240101_000000", rec.ID)
		assert.Equal(t, "inventory/root_inventory_20240101_000000/inventory.csv", rec.Path)
	})

	t.Run("model", func(t *testing.T) {
		dir := t.TempDir()
		body := `{"model_id": "m1", "run_dir": "models/doc_type/m1", "trained_at": "2024-02-03T04:05:06+00:00"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, pointer.FileName), []byte(body), 0644))

		rec, err := pointer.Read(dir)
		require.NoError(t, err)
		assert.Equal(t, "m1", rec.ID)
		assert.Equal(t, "models/doc_type/m1", rec.Path)
		assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), rec.UpdatedAt)
	})
}

func TestRead_NewerVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pointer.FileName), []byte(`{"version": 9, "id": "x"}`), 0644))

	_, err := pointer.Read(dir)
	assert.True(t, errors.Is(err, pointer.ErrUnsupportedVersion))
}

func TestWrite_RequiresID(t *testing.T) {
	assert.Error(t, pointer.Write(t.TempDir(), pointer.Record{}))
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 30, 5, 0, time.UTC)
	assert.Equal(t, "decisions_20240601_083005", pointer.NewRunID("decisions", "", at))
	assert.Equal(t, "case-files_inventory_20240601_083005", pointer.NewRunID("inventory", "case files", at))
	assert.Equal(t, "root_inventory_20240601_083005", pointer.NewRunID("inventory", "///", at))
}
