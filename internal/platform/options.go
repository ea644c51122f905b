package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/heuristic"
)

// options holds the internal configuration for the ledger service.
type options struct {
	repository core.Repository
	logger     *slog.Logger
	backend    string
	config     map[string]interface{}
}

// Option defines a functional option for configuring the ledger.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		repository: nil,
		logger:     nil,
		backend:    BackendCSV,
		config:     make(map[string]interface{}),
	}
}

// Storage backends understood by Init.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// WithLogger sets the logger for the service and its repository.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository allows injecting a custom label repository.
// If provided, the backend options are ignored.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithBackend selects the storage backend by name ("csv" or "sqlite").
// Defaults to "csv".
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithVersioning commits the label file to git after every write.
// Only the csv backend supports it.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["versioning"] = enabled
	}
}

// WithAutoInit runs git init when versioning is on and the label directory
// is not in a repository yet.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithReadOnly enables read-only mode.
// In this mode every mutation (label, migrate, recover) returns
// ErrReadOnly and nothing is created on disk.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithLockTimeout bounds how long writers wait for the label lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["lock_timeout"] = d
	}
}

// WithOutputsRoot sets the directory holding inventory runs and models.
// The model registry is rooted there.
func WithOutputsRoot(root string) Option {
	return func(o *options) {
		o.config["outputs_root"] = root
	}
}

// WithHeuristicThresholds overrides the heuristic classifier thresholds.
func WithHeuristicThresholds(th heuristic.Thresholds) Option {
	return func(o *options) {
		o.config["heuristic"] = th
	}
}

// WithClock sets the clock used for label and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.config["clock"] = now
	}
}
