package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/fusion"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/inventory"
	"github.com/aretw0/pdfledger/pkg/model"
	"github.com/aretw0/pdfledger/pkg/reconcile"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// DecideRequest describes one decision batch.
type DecideRequest struct {
	Snapshot core.Snapshot
	Policy   fusion.Policy
	// Predictions are precomputed model outputs. When nil and the model is
	// enabled, the model named by ModelRef is run over Features.
	Predictions map[core.StableKey]core.ModelPrediction
	Features    *inventory.Features
	ModelRef    string
	// Readiness holds the heuristic signals per document.
	Readiness map[core.StableKey]inventory.Readiness
}

// DecideAll produces one final decision per document of the snapshot.
// Labels are read without locking and are never written. An unavailable
// model is not an error: the model stage is disabled for the run and a
// warning is recorded in the summary.
func (s *Service) DecideAll(ctx context.Context, req DecideRequest) (fusion.BatchResult, error) {
	table, err := s.repo.Load(ctx)
	if err != nil {
		return fusion.BatchResult{}, err
	}
	rec := reconcile.Reconcile(req.Snapshot, table, s.now())

	batch := fusion.Batch{
		Snapshot:   req.Snapshot,
		Labels:     rec.ActiveByKey(),
		Heuristics: s.heuristics(req.Readiness),
		Policy:     req.Policy,
	}
	if batch.Policy.ModelEnabled {
		preds, warning, err := s.predictions(ctx, req, rec.Index)
		switch {
		case err != nil:
			return fusion.BatchResult{}, err
		case warning != "":
			s.logger.Warn("model stage disabled", "reason", warning)
			batch.Warnings = append(batch.Warnings, warning)
			batch.Policy.ModelEnabled = false
		default:
			batch.Predictions = preds
		}
	}

	res := fusion.DecideAll(batch)
	res.Summary.RunID = uuid.NewString()
	s.logger.Info("decisions produced",
		"run", res.Summary.RunID,
		"snapshot", res.Summary.SnapshotID,
		"decided", res.Summary.Decided,
		"errored", res.Summary.Errored,
		"skipped", res.Summary.Skipped,
	)

	summary := res.Summary
	s.mu.Lock()
	s.lastDecide = &summary
	s.mu.Unlock()
	return res, nil
}

func (s *Service) heuristics(readiness map[core.StableKey]inventory.Readiness) map[core.StableKey]taxonomy.DocType {
	out := make(map[core.StableKey]taxonomy.DocType, len(readiness))
	for key, r := range readiness {
		if class, ok := r.Heuristic(s.heuristic); ok {
			out[key] = class
		}
	}
	return out
}

// predictions returns the model outputs for the batch, or a warning when
// the model stage cannot run.
func (s *Service) predictions(ctx context.Context, req DecideRequest, index map[core.StableKey]identity.Resolved) (map[core.StableKey]core.ModelPrediction, string, error) {
	if req.Predictions != nil {
		return req.Predictions, "", nil
	}
	if s.registry == nil {
		return nil, "model unavailable: no model registry configured", nil
	}
	artifact, err := s.registry.Load(req.ModelRef)
	if errors.Is(err, core.ErrModelUnavailable) {
		return nil, err.Error(), nil
	}
	if err != nil {
		return nil, "", err
	}
	if req.Features == nil {
		return nil, fmt.Sprintf("model %s has no feature table to run on", artifact.ID()), nil
	}
	return s.predict(ctx, artifact, req.Features, index), "", nil
}

func (s *Service) predict(ctx context.Context, p model.Predictor, features *inventory.Features, index map[core.StableKey]identity.Resolved) map[core.StableKey]core.ModelPrediction {
	out := make(map[core.StableKey]core.ModelPrediction, len(index))
	names := p.Features()
	for key := range index {
		if ctx.Err() != nil {
			break
		}
		vec, ok := features.Vector(key, names)
		if !ok {
			continue
		}
		pred, err := p.Predict(vec)
		if err != nil {
			s.logger.Debug("prediction failed", "key", key, "error", err)
			continue
		}
		out[key] = core.ModelPrediction{Key: key, Class: pred.Class, Confidence: pred.Confidence, ModelID: p.ID()}
	}
	return out
}
