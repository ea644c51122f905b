package atomicfile_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/internal/atomicfile"
)

func TestWriteFile(t *testing.T) {
	t.Run("Creates New File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "labels.csv")

		require.NoError(t, atomicfile.WriteFile(filename, []byte("rel_path\n"), 0644))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "rel_path\n", string(got))
	})

	t.Run("Overwrites Existing File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "labels.csv")
		require.NoError(t, os.WriteFile(filename, []byte("initial"), 0644))

		require.NoError(t, atomicfile.WriteFile(filename, []byte("overwritten"), 0644))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "overwritten", string(got))
	})

	t.Run("Fails if Directory Missing", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "missing_folder", "labels.csv")
		assert.Error(t, atomicfile.WriteFile(filename, []byte("fail"), 0644))
	})
}

func TestWrite_FailedWriteKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "labels.csv")
	require.NoError(t, os.WriteFile(filename, []byte("original"), 0644))

	boom := errors.New("boom")
	err := atomicfile.Write(filename, 0644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), atomicfile.TempPrefix), "temp file left behind: %s", e.Name())
	}
}
