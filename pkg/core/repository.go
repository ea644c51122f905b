package core

import (
	"context"
	"time"
)

// Repository defines the contract for persisting the label table.
// Adhering to this interface allows the ledger to be independent of the
// underlying storage mechanism (CSV file, SQLite, ...).
//
// The table is always loaded and written as a whole. Writers serialize
// read-modify-write cycles through Lock; readers never lock.
type Repository interface {
	// Load reads the full table. A missing store yields an empty table.
	Load(ctx context.Context) (*Table, error)

	// Save replaces the persisted table atomically.
	Save(ctx context.Context, t *Table) error

	// Backup copies the current store aside and returns the backup path.
	// It returns "" when there is nothing to back up.
	Backup(ctx context.Context, at time.Time) (string, error)

	// Lock acquires the cross-process write lock and returns its release func.
	Lock(ctx context.Context) (func(), error)

	// Initialize ensures the underlying storage is ready (directories, schema).
	Initialize(ctx context.Context) error
}

// Closer is implemented by repositories holding open handles.
type Closer interface {
	Close() error
}

type contextKey string

// ChangeReasonKey is the context key for passing a change reason (commit
// message) to Save when the repository versions its store.
const ChangeReasonKey contextKey = "change_reason"

// WithChangeReason returns a context carrying reason for the next Save.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, ChangeReasonKey, reason)
}

// ChangeReason extracts the change reason from ctx, if any.
func ChangeReason(ctx context.Context) string {
	if v, ok := ctx.Value(ChangeReasonKey).(string); ok {
		return v
	}
	return ""
}
