// Package ledger is the command surface of the label ledger. It composes
// the label repository with reconciliation, migration and decision fusion.
// Nothing in this package prints; callers render the returned reports.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/fusion"
	"github.com/aretw0/pdfledger/pkg/git"
	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/model"
	"github.com/aretw0/pdfledger/pkg/reconcile"
)

// Config holds the collaborators of a Service. Zero fields get defaults.
type Config struct {
	// Registry resolves model references. Without one the model stage is
	// always unavailable.
	Registry  *model.Registry
	Heuristic *heuristic.Classifier
	Logger    *slog.Logger
	// Now is the clock used for timestamps; time.Now when nil.
	Now func() time.Time
}

// Service runs ledger operations against a label repository.
type Service struct {
	repo      core.Repository
	registry  *model.Registry
	heuristic *heuristic.Classifier
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.RWMutex
	lastReport *core.ReconciliationReport
	lastDecide *fusion.Summary
	lastWrite  *time.Time
}

// NewService creates a new Service.
func NewService(repo core.Repository, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Heuristic == nil {
		cfg.Heuristic = heuristic.New(heuristic.DefaultThresholds())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      repo,
		registry:  cfg.Registry,
		heuristic: cfg.Heuristic,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Repository returns the underlying label repository.
func (s *Service) Repository() core.Repository {
	return s.repo
}

// Labels loads the label table without locking.
func (s *Service) Labels(ctx context.Context) (*core.Table, error) {
	return s.repo.Load(ctx)
}

// ApplyLabel creates or, with overwrite, replaces the label of key. The
// whole read-modify-write cycle runs under the repository lock.
func (s *Service) ApplyLabel(ctx context.Context, key core.StableKey, raw string, overwrite bool, opts ...core.PutOption) (core.LabelRecord, error) {
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return core.LabelRecord{}, err
	}

	var rec core.LabelRecord
	err = s.mutate(ctx, git.FormatMessage(git.CommitTypeFeat, "labels", fmt.Sprintf("label %s as %s", k, raw), ""), func(t *core.Table) (bool, error) {
		var putErr error
		rec, putErr = t.Put(k, raw, overwrite, s.now(), opts...)
		return putErr == nil, putErr
	})
	if err != nil {
		return core.LabelRecord{}, err
	}
	s.logger.Info("label applied", "key", rec.Key, "raw", rec.LabelRaw, "norm", rec.LabelNorm, "overwrite", overwrite)
	return rec, nil
}

// Reconcile marks every label active or orphaned against snapshot. It
// reads the store without locking and never writes it.
func (s *Service) Reconcile(ctx context.Context, snapshot core.Snapshot) (reconcile.Result, error) {
	table, err := s.repo.Load(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	res := reconcile.Reconcile(snapshot, table, s.now())
	s.logger.Info("reconciled",
		"snapshot", res.Report.SnapshotID,
		"labels", res.Report.TotalLabels,
		"active", res.Report.Active,
		"orphaned", res.Report.Orphaned,
		"drift", len(res.Report.Drift),
	)
	if res.Report.EmptySnapshot {
		s.logger.Warn("snapshot has no entries, every label is orphaned", "snapshot", snapshot.ID)
	}

	report := res.Report
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
	return res, nil
}

// Migrate recomputes label_norm with the current mapping. Unless dryRun is
// set and when something changed, the store is backed up and rewritten.
func (s *Service) Migrate(ctx context.Context, dryRun bool) (core.MigrationReport, error) {
	if dryRun {
		table, err := s.repo.Load(ctx)
		if err != nil {
			return core.MigrationReport{}, err
		}
		report := table.Migrate(s.now())
		report.DryRun = true
		return report, nil
	}

	var report core.MigrationReport
	err := s.mutate(ctx, git.FormatMessage(git.CommitTypeRefactor, "labels", "migrate labels to the current taxonomy", ""), func(t *core.Table) (bool, error) {
		report = t.Migrate(s.now())
		if len(report.Changes) == 0 {
			return false, nil
		}
		backup, err := s.repo.Backup(ctx, s.now())
		if err != nil {
			return false, fmt.Errorf("backup before migrate: %w", err)
		}
		report.BackupPath = backup
		return true, nil
	})
	if err != nil {
		return core.MigrationReport{}, err
	}
	report.Written = len(report.Changes) > 0
	s.logger.Info("labels migrated", "changed", len(report.Changes), "unknown", report.Unknown, "backup", report.BackupPath)
	return report, nil
}

// RecoverKeys re-attaches legacy rows that lack a rel_path to the snapshot
// key their recorded doc id or hash identifies. With dryRun the store is
// left untouched.
func (s *Service) RecoverKeys(ctx context.Context, snapshot core.Snapshot, dryRun bool) (reconcile.RecoverResult, error) {
	if dryRun {
		table, err := s.repo.Load(ctx)
		if err != nil {
			return reconcile.RecoverResult{}, err
		}
		return reconcile.Recover(snapshot, table), nil
	}

	var res reconcile.RecoverResult
	err := s.mutate(ctx, git.FormatMessage(git.CommitTypeFix, "labels", "recover rel_path of legacy labels", ""), func(t *core.Table) (bool, error) {
		res = reconcile.Recover(snapshot, t)
		if len(res.Recovered) == 0 {
			return false, nil
		}
		return true, reconcile.Apply(t, res.Recovered)
	})
	if err != nil {
		return reconcile.RecoverResult{}, err
	}
	s.logger.Info("keys recovered", "recovered", len(res.Recovered), "unresolved", len(res.Unresolved))
	return res, nil
}

// mutate runs fn on a freshly loaded table under the write lock and saves
// the table when fn reports a change.
func (s *Service) mutate(ctx context.Context, reason string, fn func(*core.Table) (bool, error)) error {
	unlock, err := s.repo.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	table, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(table)
	if err != nil || !changed {
		return err
	}
	if err := s.repo.Save(core.WithChangeReason(ctx, reason), table); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	s.lastWrite = &now
	s.mu.Unlock()
	return nil
}
