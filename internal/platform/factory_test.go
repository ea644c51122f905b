package platform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/internal/platform"
	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/adapters/sqlite"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/ledger"
)

func TestInit(t *testing.T) {
	t.Run("CSV Creates Label Directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels", "doc_type_labels.csv")

		repo, err := platform.Init(path)
		require.NoError(t, err)

		fsRepo, ok := repo.(*fs.Repository)
		require.True(t, ok, "expected fs repository, got %T", repo)
		assert.Equal(t, path, fsRepo.Path)

		info, err := os.Stat(filepath.Dir(path))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("SQLite Creates Database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.db")

		repo, err := platform.Init(path, platform.WithBackend(platform.BackendSQLite))
		require.NoError(t, err)
		sqlRepo, ok := repo.(*sqlite.Repository)
		require.True(t, ok, "expected sqlite repository, got %T", repo)
		t.Cleanup(func() { _ = sqlRepo.Close() })

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("ReadOnly Creates Nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels", "doc_type_labels.csv")

		_, err := platform.Init(path, platform.WithReadOnly(true))
		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(path))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Rejects Bad Options", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.db")

		_, err := platform.Init(path, platform.WithBackend("postgres"))
		assert.ErrorContains(t, err, "unknown backend")

		_, err = platform.Init(path, platform.WithBackend(platform.BackendSQLite), platform.WithVersioning(true))
		assert.ErrorContains(t, err, "versioning is not supported")

		_, err = platform.Init("")
		assert.Error(t, err)
	})

	t.Run("Injected Repository Wins", func(t *testing.T) {
		injected := fs.NewRepository(fs.Config{Path: filepath.Join(t.TempDir(), "x.csv")})

		repo, err := platform.Init("", platform.WithRepository(injected), platform.WithBackend("postgres"))
		require.NoError(t, err)
		assert.Same(t, injected, repo)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "labels", "doc_type_labels.csv")
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	svc, err := platform.New(path,
		platform.WithOutputsRoot(filepath.Join(root, "outputs")),
		platform.WithClock(func() time.Time { return now }),
		platform.WithLockTimeout(time.Second),
	)
	require.NoError(t, err)

	rec, err := svc.ApplyLabel(ctx, "a.pdf", "TEXT", false)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(now))

	state, ok := svc.State().(ledger.ServiceState)
	require.True(t, ok)
	assert.Equal(t, "csv-repository", state.RepositoryType)
	assert.Equal(t, filepath.Join(root, "outputs", "models", "doc_type"), state.ModelRegistry)

	t.Run("ReadOnly Service Refuses Writes", func(t *testing.T) {
		ro, err := platform.New(path, platform.WithReadOnly(true))
		require.NoError(t, err)

		_, err = ro.ApplyLabel(ctx, "b.pdf", "TEXT", false)
		assert.True(t, errors.Is(err, core.ErrReadOnly))

		table, err := ro.Labels(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
	})
}
