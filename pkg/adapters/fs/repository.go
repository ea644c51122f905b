// Package fs stores the label table as a CSV file and writes reports next
// to it. Writes replace the file atomically; read-modify-write cycles are
// serialized across processes with an advisory lock file.
package fs

import (
	"bytes"
	"context"
	"encoding/csv"
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

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/git"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultRetryDelay  = 50 * time.Millisecond
	DefaultLockTimeout = 30 * time.Second
	BackupDirName      = "backups"
	BackupTimeLayout   = "20060102T150405Z"
)

// Repository implements core.Repository on a CSV file.
type Repository struct {
	Path   string
	config Config
	git    *git.Client
	lock   *flock.Flock

	mu       sync.RWMutex
	lastLoad *time.Time
	lastSave *time.Time
	loads    int
	saves    int
}

// Config holds the configuration for the CSV label repository.
type Config struct {
	// Path is the label file.
	Path string
	// BackupDir defaults to a "backups" directory next to Path.
	BackupDir string
	// Mapping normalizes raw labels on load; the zero value means taxonomy.Current.
	Mapping  taxonomy.Mapping
	ReadOnly bool
	// Versioning commits the label file to git after every save.
	Versioning bool
	// AutoInit runs git init when versioning is on and Path is not in a repo.
	AutoInit    bool
	RetryDelay  time.Duration
	LockTimeout time.Duration
	Logger      *slog.Logger
}

var _ core.Repository = (*Repository)(nil)

// NewRepository creates a new CSV-backed label repository.
func NewRepository(config Config) *Repository {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Mapping.Entries == nil {
		config.Mapping = taxonomy.Current
	}
	if config.BackupDir == "" {
		config.BackupDir = filepath.Join(filepath.Dir(config.Path), BackupDirName)
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultLockTimeout
	}
	return &Repository{
		Path:   config.Path,
		config: config,
		git:    git.NewClient(filepath.Dir(config.Path), config.Logger),
		lock:   flock.New(config.Path + ".lock"),
	}
}

// Initialize creates the store directory and, with versioning on, makes
// sure the file lives in a git work tree.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.ReadOnly {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return fmt.Errorf("failed to create label directory: %w", err)
	}
	if !r.config.Versioning {
		return nil
	}
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}
	if r.git.IsRepo(ctx) {
		return nil
	}
	if !r.config.AutoInit {
		return fmt.Errorf("label directory is not a git repository: %s", filepath.Dir(r.Path))
	}
	if err := r.git.Init(ctx); err != nil {
		return fmt.Errorf("failed to git init: %w", err)
	}
	return nil
}

// Load reads the label file. A file that is missing, even after one retry,
// yields an empty table. Anything unparseable is core.ErrStoreCorrupt.
func (r *Repository) Load(ctx context.Context) (*core.Table, error) {
	data, err := r.read(ctx)
	if errors.Is(err, os.ErrNotExist) {
		r.config.Logger.Debug("label file not found, starting empty", "path", r.Path)
		r.recordLoad()
		return core.NewTable(r.config.Mapping), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	t, err := decode(data, r.config.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	r.config.Logger.Debug("labels loaded", "path", r.Path, "count", t.Len(), "unkeyed", len(t.Unkeyed()))
	r.recordLoad()
	return t, nil
}

// read reads the file, retrying once when it vanishes mid-replace.
func (r *Repository) read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(r.Path)
	if !errors.Is(err, os.ErrNotExist) {
		return data, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.config.RetryDelay):
	}
	return os.ReadFile(r.Path)
}

func decode(data []byte, mapping taxonomy.Mapping) (*core.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.NewTable(mapping), nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreCorrupt, err)
	}
	return core.DecodeTable(records[0], records[1:], mapping)
}

// Save replaces the label file with t and commits it when versioning is on.
// The change reason carried by ctx becomes the commit message.
func (r *Repository) Save(ctx context.Context, t *core.Table) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	header, rows := t.Encode()
	err := WriteAtomic(r.Path, 0644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	t.MarkPersisted()
	r.recordSave()
	r.config.Logger.Info("labels saved", "path", r.Path, "count", t.Len())

	if r.config.Versioning {
		if err := r.commit(ctx); err != nil {
			return fmt.Errorf("labels saved but not committed: %w", err)
		}
	}
	return nil
}

func (r *Repository) commit(ctx context.Context) error {
	name := filepath.Base(r.Path)
	if err := r.git.Add(ctx, name); err != nil {
		return err
	}
	staged, err := r.git.HasStaged(ctx, name)
	if err != nil || !staged {
		return err
	}
	msg := core.ChangeReason(ctx)
	if strings.TrimSpace(msg) == "" {
		msg = git.FormatMessage(git.CommitTypeChore, "labels", "update "+name, "")
	} else {
		msg = git.AppendFooter(msg)
	}
	return r.git.Commit(ctx, msg, name)
}

// Backup copies the label file to <backups>/<stem>_<YYYYMMDDTHHMMSSZ>.csv.
func (r *Repository) Backup(ctx context.Context, at time.Time) (string, error) {
	if r.config.ReadOnly {
		return "", core.ErrReadOnly
	}
	data, err := r.read(ctx)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read labels for backup: %w", err)
	}
	if err := os.MkdirAll(r.config.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
	dest := filepath.Join(r.config.BackupDir, fmt.Sprintf("%s_%s.csv", stem, at.UTC().Format(BackupTimeLayout)))
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(r.config.BackupDir, fmt.Sprintf("%s_%s_%d.csv", stem, at.UTC().Format(BackupTimeLayout), n))
	}
	if err := WriteFileAtomic(dest, data, 0644); err != nil {
		return "", err
	}
	r.config.Logger.Info("labels backed up", "path", dest)
	return dest, nil
}

// Lock takes the cross-process write lock on <file>.lock, waiting at most
// the configured timeout.
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

// ReadOnly reports whether mutations are refused.
func (r *Repository) ReadOnly() bool {
	return r.config.ReadOnly
}

func (r *Repository) recordLoad() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.lastLoad = &now
	r.loads++
}

func (r *Repository) recordSave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.lastSave = &now
	r.saves++
}
