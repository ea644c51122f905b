package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/adapters/sqlite"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/ledger"
	"github.com/aretw0/pdfledger/pkg/model"
)

// New creates a ledger service on the label store at path.
//
//	svc, err := pdfledger.New("labels/doc_type_labels.csv", pdfledger.WithOutputsRoot("outputs"))
func New(path string, opts ...Option) (*ledger.Service, error) {
	repo, err := Init(path, opts...)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg := ledger.Config{Logger: o.logger}
	if root, ok := o.config["outputs_root"].(string); ok && root != "" {
		cfg.Registry = model.NewRegistry(root, o.logger)
	}
	if th, ok := o.config["heuristic"].(heuristic.Thresholds); ok {
		cfg.Heuristic = heuristic.New(th)
	}
	if now, ok := o.config["clock"].(func() time.Time); ok {
		cfg.Now = now
	}
	return ledger.NewService(repo, cfg), nil
}

// Init builds and initializes the label repository for path.
func Init(path string, opts ...Option) (core.Repository, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.repository != nil {
		return o.repository, nil
	}
	if path == "" {
		return nil, fmt.Errorf("label store path is required")
	}

	readOnly, _ := o.config["read_only"].(bool)
	versioning, _ := o.config["versioning"].(bool)
	autoInit, _ := o.config["auto_init"].(bool)
	lockTimeout, _ := o.config["lock_timeout"].(time.Duration)

	var repo core.Repository
	switch o.backend {
	case BackendCSV, "":
		repo = fs.NewRepository(fs.Config{
			Path:        path,
			ReadOnly:    readOnly,
			Versioning:  versioning,
			AutoInit:    autoInit,
			LockTimeout: lockTimeout,
			Logger:      o.logger,
		})
	case BackendSQLite:
		if versioning {
			return nil, fmt.Errorf("versioning is not supported by the %s backend", BackendSQLite)
		}
		repo = sqlite.NewRepository(sqlite.Config{
			Path:        path,
			ReadOnly:    readOnly,
			LockTimeout: lockTimeout,
			Logger:      o.logger,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s", o.backend)
	}

	if err := repo.Initialize(context.Background()); err != nil {
		if c, ok := repo.(core.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return repo, nil
}
