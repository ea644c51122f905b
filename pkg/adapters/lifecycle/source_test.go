package lifecycle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/adapters/lifecycle"
)

func TestSource(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "doc_type_labels.csv")
	require.NoError(t, os.WriteFile(labels, []byte("rel_path\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	src := lifecycle.NewSource([]string{labels}, 10*time.Millisecond, nil)
	require.NoError(t, src.Start(ctx))

	require.NoError(t, fs.WriteFileAtomic(labels, []byte("rel_path\na.pdf\n"), 0644))

	select {
	case ev := <-src.Events():
		change, ok := ev.(lifecycle.ChangeEvent)
		require.True(t, ok, "unexpected event %T", ev)
		abs, _ := filepath.Abs(labels)
		assert.Equal(t, abs, change.Path)
		assert.Contains(t, change.String(), "doc_type_labels.csv")
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	cancel()
	select {
	case _, open := <-src.Events():
		for open {
			_, open = <-src.Events()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
