package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/pkg/adapters/sqlite"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

var labeledAt = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, opts ...func(*sqlite.Config)) (*sqlite.Repository, string) {
	t.Helper()
	cfg := sqlite.Config{
		Path:        filepath.Join(t.TempDir(), "labels", "labels.db"),
		LockTimeout: 50 * time.Millisecond,
		RetryDelay:  5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	repo := sqlite.NewRepository(cfg)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, cfg.Path
}

func sampleTable(t *testing.T) *core.Table {
	t.Helper()
	table := core.NewTable(taxonomy.Current)
	_, err := table.Put("z/last.pdf", "TEXT_PDF", false, labeledAt, core.WithNotes("legacy value"))
	require.NoError(t, err)
	_, err = table.Put("a/first.pdf", "MIXED", false, labeledAt, core.WithColumn("reviewer", "ana"))
	require.NoError(t, err)
	return table
}

func TestRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.Initialize(ctx))

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	table := sampleTable(t)
	require.NoError(t, repo.Save(ctx, table))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, table.Columns(), loaded.Columns())
	assert.Equal(t, table.All(), loaded.All())

	rec, ok := loaded.Get("z/last.pdf")
	require.True(t, ok)
	assert.Equal(t, "TEXT_PDF", rec.LabelRaw)
	assert.Equal(t, taxonomy.ImageOfText, rec.LabelNorm)

	report := loaded.Migrate(labeledAt)
	assert.Empty(t, report.Changes, "persisted norms are current")
}

func TestRepository_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.Save(ctx, sampleTable(t)))

	smaller := core.NewTable(taxonomy.Current)
	_, err := smaller.Put("only.pdf", "IMAGE", false, labeledAt)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, smaller))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, []string{
		core.ColumnRelPath, core.ColumnLabelRaw, core.ColumnLabelNorm, core.ColumnCreatedAt, core.ColumnUpdatedAt,
	}, loaded.Columns()[:5])
}

func TestRepository_ReadOnly(t *testing.T) {
	ctx := context.Background()
	repo, path := newRepo(t, func(c *sqlite.Config) { c.ReadOnly = true })

	table, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "read-only load never creates the database")

	assert.True(t, errors.Is(repo.Save(ctx, table), core.ErrReadOnly))
	_, err = repo.Lock(ctx)
	assert.True(t, errors.Is(err, core.ErrReadOnly))
	_, err = repo.Backup(ctx, labeledAt)
	assert.True(t, errors.Is(err, core.ErrReadOnly))

	writer := sqlite.NewRepository(sqlite.Config{Path: path})
	require.NoError(t, writer.Save(ctx, sampleTable(t)))
	require.NoError(t, writer.Close())

	reader := sqlite.NewRepository(sqlite.Config{Path: path, ReadOnly: true})
	defer reader.Close()
	loaded, err := reader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestRepository_Backup(t *testing.T) {
	ctx := context.Background()
	repo, path := newRepo(t)

	got, err := repo.Backup(ctx, labeledAt)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.Save(ctx, sampleTable(t)))
	got, err = repo.Backup(ctx, labeledAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "backups", "labels_20240601T100000Z.db"), got)

	restored := sqlite.NewRepository(sqlite.Config{Path: got, ReadOnly: true})
	defer restored.Close()
	loaded, err := restored.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestRepository_Lock(t *testing.T) {
	ctx := context.Background()
	repo, path := newRepo(t)
	other := sqlite.NewRepository(sqlite.Config{Path: path, LockTimeout: 30 * time.Millisecond, RetryDelay: 5 * time.Millisecond})

	unlock, err := repo.Lock(ctx)
	require.NoError(t, err)
	_, err = other.Lock(ctx)
	assert.Error(t, err)
	unlock()

	unlock, err = other.Lock(ctx)
	require.NoError(t, err)
	unlock()
}

func TestRepository_State(t *testing.T) {
	ctx := context.Background()
	repo, path := newRepo(t)
	require.NoError(t, repo.Save(ctx, sampleTable(t)))

	state, ok := repo.State().(sqlite.RepositoryState)
	require.True(t, ok)
	assert.Equal(t, path, state.Path)
	assert.True(t, state.Open)
	assert.Equal(t, 1, state.Saves)
	assert.Equal(t, "sqlite-repository", repo.ComponentType())
}
