package pdfledger

import (
	"log/slog"
	"time"

	"github.com/aretw0/pdfledger/internal/platform"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/ledger"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// --- Types ---

// Service is the ledger service returned by New.
type Service = ledger.Service

// Config is the workspace configuration file.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring the ledger.
type Option = platform.Option

// Storage backends.
const (
	BackendCSV    = platform.BackendCSV
	BackendSQLite = platform.BackendSQLite
)

// WithLogger sets the logger for the service and its repository.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom label repository.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithBackend selects the storage backend by name.
func WithBackend(name string) Option {
	return platform.WithBackend(name)
}

// WithVersioning commits the label file to git after every write.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithAutoInit runs git init for a versioned label file outside a repository.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithReadOnly refuses every mutation with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithLockTimeout bounds how long writers wait for the label lock.
func WithLockTimeout(d time.Duration) Option {
	return platform.WithLockTimeout(d)
}

// WithOutputsRoot sets the directory holding inventory runs and models.
func WithOutputsRoot(root string) Option {
	return platform.WithOutputsRoot(root)
}

// WithHeuristicThresholds overrides the heuristic classifier thresholds.
func WithHeuristicThresholds(th heuristic.Thresholds) Option {
	return platform.WithHeuristicThresholds(th)
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// --- Factory ---

// New creates a ledger service on the label store at path.
func New(path string, opts ...Option) (*Service, error) {
	return platform.New(path, opts...)
}

// Init initializes a label repository explicitly.
func Init(path string, opts ...Option) (core.Repository, error) {
	return platform.Init(path, opts...)
}

// Open loads the workspace config found from dir and builds the service it
// describes. Extra options are applied after the config.
func Open(dir string, opts ...Option) (*Service, Config, error) {
	cfg, err := platform.LoadWorkspace(dir)
	if err != nil {
		return nil, Config{}, err
	}
	svc, err := platform.New(cfg.LabelsFile, append(cfg.Options(), opts...)...)
	if err != nil {
		return nil, Config{}, err
	}
	return svc, cfg, nil
}

// --- Workspace ---

// LoadConfig reads a YAML or TOML config file.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}

// LoadWorkspace loads the config of the workspace containing dir.
func LoadWorkspace(dir string) (Config, error) {
	return platform.LoadWorkspace(dir)
}

// FindRoot recursively looks upwards for a workspace root indicator.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
