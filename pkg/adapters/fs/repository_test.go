package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/git"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

var labeledAt = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// setupRepo creates a repository on labels/doc_type_labels.csv in a temp dir.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "labels", "doc_type_labels.csv")
	cfg := fs.Config{
		Path:        path,
		RetryDelay:  5 * time.Millisecond,
		LockTimeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return fs.NewRepository(cfg), path
}

func writeLabels(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestInitialize(t *testing.T) {
	repo, path := setupRepo(t)
	require.NoError(t, repo.Initialize(context.Background()))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing File Is Empty", func(t *testing.T) {
		repo, _ := setupRepo(t)
		table, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len())
	})

	t.Run("Zero Byte File Is Empty", func(t *testing.T) {
		repo, path := setupRepo(t)
		writeLabels(t, path, "")
		table, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len())
	})

	t.Run("Unparseable File Is Corrupt", func(t *testing.T) {
		repo, path := setupRepo(t)
		writeLabels(t, path, "rel_path,label_raw\n\"a.pdf,TEXT\n")
		_, err := repo.Load(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrStoreCorrupt))
	})

	t.Run("Duplicate Keys Are Corrupt", func(t *testing.T) {
		repo, path := setupRepo(t)
		writeLabels(t, path, "rel_path,label_raw,label_norm,created_at,updated_at\na.pdf,TEXT,TEXT,,\na.pdf,IMAGE,IMAGE,,\n")
		_, err := repo.Load(ctx)
		assert.True(t, errors.Is(err, core.ErrStoreCorrupt))
	})

	t.Run("File Replaced During Retry", func(t *testing.T) {
		repo, path := setupRepo(t, func(c *fs.Config) { c.RetryDelay = 300 * time.Millisecond })
		body := "rel_path,label_raw,label_norm,created_at,updated_at\na.pdf,TEXT,TEXT,,\n"
		writeLabels(t, path, body)
		require.NoError(t, os.Remove(path))

		written := make(chan error, 1)
		go func() {
			time.Sleep(20 * time.Millisecond)
			written <- fs.WriteFileAtomic(path, []byte(body), 0644)
		}()

		table, err := repo.Load(ctx)
		require.NoError(t, <-written)
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		_, ok := table.Get("a.pdf")
		assert.True(t, ok)
	})

	t.Run("Canceled During Retry", func(t *testing.T) {
		repo, _ := setupRepo(t, func(c *fs.Config) { c.RetryDelay = time.Second })
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.Load(cctx)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("Legacy Layout", func(t *testing.T) {
		repo, path := setupRepo(t)
		writeLabels(t, path, "rel_path,label,labeled_at\ncase/a.pdf,TEXT_PDF,2024-01-02T03:04:05Z\n")
		table, err := repo.Load(ctx)
		require.NoError(t, err)

		rec, ok := table.Get("case/a.pdf")
		require.True(t, ok)
		assert.Equal(t, "TEXT_PDF", rec.LabelRaw)
		assert.Equal(t, taxonomy.ImageOfText, rec.LabelNorm)
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("Round Trip", func(t *testing.T) {
		repo, path := setupRepo(t)
		table := core.NewTable(taxonomy.Current)
		_, err := table.Put("b.pdf", "IMAGE", false, labeledAt, core.WithNotes("scan, two pages"))
		require.NoError(t, err)
		_, err = table.Put("a.pdf", "TEXT", false, labeledAt)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, table))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "rel_path,label_raw,label_norm,created_at,updated_at"))
		assert.True(t, strings.HasPrefix(lines[1], "b.pdf,"), "insertion order is kept")

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, table.All(), loaded.All())
	})

	t.Run("Read Only", func(t *testing.T) {
		repo, path := setupRepo(t, func(c *fs.Config) { c.ReadOnly = true })
		err := repo.Save(ctx, core.NewTable(taxonomy.Current))
		assert.True(t, errors.Is(err, core.ErrReadOnly))

		_, err = repo.Lock(ctx)
		assert.True(t, errors.Is(err, core.ErrReadOnly))

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("No Temp Files Left", func(t *testing.T) {
		repo, path := setupRepo(t)
		require.NoError(t, repo.Save(ctx, core.NewTable(taxonomy.Current)))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), fs.TempFilePrefix), e.Name())
		}
	})
}

func TestSave_Versioning(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	repo, path := setupRepo(t, func(c *fs.Config) {
		c.Versioning = true
		c.AutoInit = true
	})
	require.NoError(t, repo.Initialize(ctx))

	client := git.NewClient(filepath.Dir(path), nil)
	_, err := client.Run(ctx, "config", "user.email", "ledger@example.com")
	require.NoError(t, err)
	_, err = client.Run(ctx, "config", "user.name", "ledger")
	require.NoError(t, err)

	table := core.NewTable(taxonomy.Current)
	_, err = table.Put("a.pdf", "TEXT", false, labeledAt)
	require.NoError(t, err)
	require.NoError(t, repo.Save(core.WithChangeReason(ctx, "label a.pdf as TEXT"), table))

	msg, err := client.Run(ctx, "log", "-1", "--pretty=%s")
	require.NoError(t, err)
	assert.Equal(t, "label a.pdf as TEXT", msg)

	// Saving identical content must not fail on an empty commit.
	require.NoError(t, repo.Save(ctx, table))
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	repo, path := setupRepo(t)

	got, err := repo.Backup(ctx, labeledAt)
	require.NoError(t, err)
	assert.Empty(t, got, "nothing to back up")

	writeLabels(t, path, "rel_path,label_raw,label_norm,created_at,updated_at\n")
	got, err = repo.Backup(ctx, labeledAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), fs.BackupDirName, "doc_type_labels_20240601T100000Z.csv"), got)

	again, err := repo.Backup(ctx, labeledAt)
	require.NoError(t, err)
	assert.NotEqual(t, got, again, "backups never overwrite each other")

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "rel_path,label_raw,label_norm,created_at,updated_at\n", string(data))
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	repo, path := setupRepo(t)
	other := fs.NewRepository(fs.Config{Path: path, RetryDelay: 5 * time.Millisecond, LockTimeout: 50 * time.Millisecond})

	unlock, err := repo.Lock(ctx)
	require.NoError(t, err)

	_, err = other.Lock(ctx)
	assert.Error(t, err, "lock is exclusive")

	unlock()
	unlockOther, err := other.Lock(ctx)
	require.NoError(t, err)
	unlockOther()
}

func TestState(t *testing.T) {
	ctx := context.Background()
	repo, path := setupRepo(t)
	require.NoError(t, repo.Save(ctx, core.NewTable(taxonomy.Current)))
	_, err := repo.Load(ctx)
	require.NoError(t, err)

	state, ok := repo.State().(fs.RepositoryState)
	require.True(t, ok)
	assert.Equal(t, path, state.Path)
	assert.Equal(t, 1, state.Loads)
	assert.Equal(t, 1, state.Saves)
	assert.Equal(t, taxonomy.Current.Version, state.Mapping)
	assert.NotNil(t, state.LastSave)
	assert.Equal(t, "csv-repository", repo.ComponentType())
}
