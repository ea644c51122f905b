// Package sqlite stores the label table in an embedded SQLite database.
// It honors the same contract as the CSV repository: the table is loaded
// and replaced as a whole, unknown columns survive round trips, and
// read-modify-write cycles are serialized with a lock file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultLockTimeout = 30 * time.Second
	defaultRetryDelay  = 50 * time.Millisecond
	backupTimeLayout   = "20060102T150405Z"
)

// Config holds the configuration for the SQLite label repository.
type Config struct {
	Path string
	// BackupDir defaults to a "backups" directory next to Path.
	BackupDir   string
	Mapping     taxonomy.Mapping
	ReadOnly    bool
	LockTimeout time.Duration
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Repository implements core.Repository on a SQLite database.
type Repository struct {
	Path   string
	config Config
	lock   *flock.Flock

	mu    sync.Mutex
	db    *sql.DB
	saves int
}

var (
	_ core.Repository = (*Repository)(nil)
	_ core.Closer     = (*Repository)(nil)
)

// NewRepository creates a repository; the database is opened by Initialize
// or on first use.
func NewRepository(config Config) *Repository {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Mapping.Entries == nil {
		config.Mapping = taxonomy.Current
	}
	if config.BackupDir == "" {
		config.BackupDir = filepath.Join(filepath.Dir(config.Path), "backups")
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	return &Repository{
		Path:   config.Path,
		config: config,
		lock:   flock.New(config.Path + ".lock"),
	}
}

// Initialize creates the database and its schema. In read-only mode it
// only checks an existing database.
func (r *Repository) Initialize(ctx context.Context) error {
	_, err := r.open(ctx)
	return err
}

// open returns the database handle, opening it on first use. A nil handle
// with a nil error means a read-only repository without a database.
func (r *Repository) open(ctx context.Context) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		return r.db, nil
	}

	dsn := r.Path
	if r.config.ReadOnly {
		if _, err := os.Stat(r.Path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		dsn = "file:" + filepath.ToSlash(r.Path) + "?mode=ro"
	} else if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create label directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// busy_timeout is per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !r.config.ReadOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if err := initSchema(ctx, db, r.config.ReadOnly); err != nil {
		_ = db.Close()
		return nil, err
	}
	r.db = db
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB, readOnly bool) error {
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if readOnly {
			return fmt.Errorf("%w: database has no schema", core.ErrStoreCorrupt)
		}
		return createSchema(ctx, db)
	}

	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Load reads every label row, in position order, through the same decoder
// the CSV repository uses.
func (r *Repository) Load(ctx context.Context) (*core.Table, error) {
	db, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return core.NewTable(r.config.Mapping), nil
	}

	header := append([]string(nil), core.RequiredColumns...)
	extra, err := loadColumns(ctx, db)
	if err != nil {
		return nil, err
	}
	header = append(header, extra...)

	rows, err := db.QueryContext(ctx,
		"SELECT COALESCE(rel_path, ''), label_raw, label_norm, created_at, updated_at, extra_json FROM labels ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() {
		var relPath, raw, norm, created, updated, extraJSON string
		if err := rows.Scan(&relPath, &raw, &norm, &created, &updated, &extraJSON); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		values := map[string]string{}
		if err := json.Unmarshal([]byte(extraJSON), &values); err != nil {
			return nil, fmt.Errorf("%w: row %d: extra_json: %v", core.ErrStoreCorrupt, len(records)+1, err)
		}
		record := []string{relPath, raw, norm, created, updated}
		for _, col := range extra {
			record = append(record, values[col])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}

	t, err := core.DecodeTable(header, records, r.config.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	r.config.Logger.Debug("labels loaded", "path", r.Path, "count", t.Len())
	return t, nil
}

func loadColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM label_columns ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Save replaces all rows in one transaction.
func (r *Repository) Save(ctx context.Context, t *core.Table) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	db, err := r.open(ctx)
	if err != nil {
		return err
	}

	header, rows := t.Encode()
	extra := header[len(core.RequiredColumns):]
	err = retryOnBusy(ctx, func() error {
		return replaceAll(ctx, db, extra, rows)
	})
	if err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	t.MarkPersisted()

	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	r.config.Logger.Info("labels saved", "path", r.Path, "count", t.Len())
	return nil
}

func replaceAll(ctx context.Context, db *sql.DB, extra []string, rows [][]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM labels", "DELETE FROM label_columns"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for i, col := range extra {
		if _, err := tx.ExecContext(ctx, "INSERT INTO label_columns (position, name) VALUES (?, ?)", i, col); err != nil {
			return err
		}
	}

	insert, err := tx.PrepareContext(ctx,
		"INSERT INTO labels (position, rel_path, label_raw, label_norm, created_at, updated_at, extra_json) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insert.Close()

	n := len(core.RequiredColumns)
	for i, row := range rows {
		values := make(map[string]string, len(extra))
		for j, col := range extra {
			if v := row[n+j]; v != "" {
				values[col] = v
			}
		}
		extraJSON, err := json.Marshal(values)
		if err != nil {
			return err
		}
		var relPath any
		if row[0] != "" {
			relPath = row[0]
		}
		if _, err := insert.ExecContext(ctx, i, relPath, row[1], row[2], row[3], row[4], string(extraJSON)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Backup writes a consistent copy of the database with VACUUM INTO.
func (r *Repository) Backup(ctx context.Context, at time.Time) (string, error) {
	if r.config.ReadOnly {
		return "", core.ErrReadOnly
	}
	if _, err := os.Stat(r.Path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	db, err := r.open(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.config.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
	stamp := at.UTC().Format(backupTimeLayout)
	dest := filepath.Join(r.config.BackupDir, fmt.Sprintf("%s_%s.db", stem, stamp))
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(r.config.BackupDir, fmt.Sprintf("%s_%s_%d.db", stem, stamp, n))
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("backup labels: %w", err)
	}
	r.config.Logger.Info("labels backed up", "path", dest)
	return dest, nil
}

// Lock takes the cross-process write lock on <file>.lock.
func (r *Repository) Lock(ctx context.Context) (func(), error) {
	if r.config.ReadOnly {
		return nil, core.ErrReadOnly
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create label directory: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.LockTimeout)
	defer cancel()

	ok, err := r.lock.TryLockContext(ctx, r.config.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock labels: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock labels: %s is held by another process", r.lock.Path())
	}
	return func() {
		if err := r.lock.Unlock(); err != nil {
			r.config.Logger.Warn("failed to release label lock", "path", r.lock.Path(), "error", err)
		}
	}, nil
}

// Close closes the database handle.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
