package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
)

func TestWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "labels.csv")
	require.NoError(t, os.WriteFile(path, []byte("rel_path\n"), 0644))

	changes := make(chan string, 8)
	w := fs.NewWatcher([]string{path}, func(ctx context.Context, p string) error {
		changes <- p
		return nil
	}, nil)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// An atomic replace produces several events; they settle into one change.
	require.NoError(t, fs.WriteFileAtomic(path, []byte("rel_path,label_raw\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0644))

	select {
	case got := <-changes:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case got := <-changes:
		t.Fatalf("unexpected second change: %s", got)
	case <-time.After(100 * time.Millisecond):
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "labels.csv")
	var calls atomic.Int32
	w := fs.NewWatcher([]string{path}, func(ctx context.Context, p string) error {
		calls.Add(1)
		return nil
	}, nil)
	w.SetDebounce(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, os.WriteFile(path, []byte("rel_path\n"), 0644))
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.Equal(t, int32(0), calls.Load())
}
