package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/pdfledger"
	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/inventory"
)

// loadConfig reads --config or the workspace config and applies the
// global flag overrides.
func loadConfig() (pdfledger.Config, error) {
	var (
		cfg pdfledger.Config
		err error
	)
	if configPath != "" {
		cfg, err = pdfledger.LoadConfig(configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err != nil {
			return cfg, err
		}
		cfg, err = pdfledger.LoadWorkspace(wd)
	}
	if err != nil {
		return cfg, err
	}

	if labelsPath != "" {
		cfg.LabelsFile = absPath(labelsPath)
	}
	if outputsRoot != "" {
		cfg.OutputsRoot = absPath(outputsRoot)
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if readOnly {
		cfg.ReadOnly = true
	}
	return cfg, cfg.Validate()
}

// opened is the service of the running command, closed after it returns.
var opened *pdfledger.Service

// openService builds the ledger service described by the config.
func openService(extra ...pdfledger.Option) (*pdfledger.Service, pdfledger.Config) {
	cfg, err := loadConfig()
	if err != nil {
		fatal("Failed to load config", err)
	}
	opts := append(cfg.Options(), pdfledger.WithLogger(slog.Default()))
	svc, err := pdfledger.New(cfg.LabelsFile, append(opts, extra...)...)
	if err != nil {
		fatal("Failed to open label store", err)
	}
	opened = svc
	return svc, cfg
}

// closeService releases the handles held by the opened repository.
func closeService() {
	if opened == nil {
		return
	}
	if c, ok := opened.Repository().(core.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close label store", "error", err)
		}
	}
	opened = nil
}

// loadSnapshot is readSnapshot for commands that cannot go on without one.
func loadSnapshot(cfg pdfledger.Config, ref string) (core.Snapshot, string) {
	snap, path, err := readSnapshot(cfg, ref)
	if err != nil {
		fatal("Failed to load inventory", err)
	}
	return snap, path
}

// readSnapshot resolves an inventory reference and reads it through the
// configured include filter. Skipped rows are logged.
func readSnapshot(cfg pdfledger.Config, ref string) (core.Snapshot, string, error) {
	path, err := inventory.Resolve(cfg.OutputsRoot, ref)
	if err != nil {
		return core.Snapshot{}, "", err
	}
	snap, skipped, err := inventory.Load(path, inventory.Filter{Include: cfg.Inventory.Include})
	if err != nil {
		return core.Snapshot{}, "", err
	}
	for _, e := range skipped {
		slog.Warn("inventory row skipped", "error", e)
	}
	slog.Debug("inventory loaded", "path", path, "snapshot", snap.ID, "entries", len(snap.Entries))
	return snap, path, nil
}

// sibling returns dir(of)/name when that file exists, else "".
func sibling(of, name string) string {
	path := filepath.Join(filepath.Dir(of), name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// writeReport writes v to path, creating the parent directory.
func writeReport(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	return fs.WriteReport(path, v)
}
