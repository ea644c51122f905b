package ledger

import (
	"context"
	"fmt"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/inventory"
	"github.com/aretw0/pdfledger/pkg/model"
)

// Label returns the label recorded for key. A key without one yields
// core.ErrLabelNotFound.
func (s *Service) Label(ctx context.Context, key core.StableKey) (core.LabelRecord, error) {
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return core.LabelRecord{}, err
	}
	t, err := s.repo.Load(ctx)
	if err != nil {
		return core.LabelRecord{}, err
	}
	rec, ok := t.Get(k)
	if !ok {
		return core.LabelRecord{}, fmt.Errorf("%w: %s", core.ErrLabelNotFound, k)
	}
	return rec, nil
}

// Explanation is a model prediction for one document with the features
// that weighed most on it.
type Explanation struct {
	Key        core.StableKey
	ModelID    string
	Prediction model.Prediction
	Reasons    []model.Reason
}

// Explain runs the model named by modelRef on the feature row of key and
// returns its top reasons. top <= 0 returns every feature.
func (s *Service) Explain(ctx context.Context, modelRef string, features *inventory.Features, key core.StableKey, top int) (Explanation, error) {
	if err := ctx.Err(); err != nil {
		return Explanation{}, err
	}
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return Explanation{}, err
	}
	if s.registry == nil {
		return Explanation{}, fmt.Errorf("%w: no model registry configured", core.ErrModelUnavailable)
	}
	artifact, err := s.registry.Load(modelRef)
	if err != nil {
		return Explanation{}, err
	}
	if features == nil {
		return Explanation{}, fmt.Errorf("%s: no feature table", k)
	}
	vec, ok := features.Vector(k, artifact.Features())
	if !ok {
		return Explanation{}, fmt.Errorf("%s: no feature row for model %s", k, artifact.ID())
	}
	pred, err := artifact.Predict(vec)
	if err != nil {
		return Explanation{}, fmt.Errorf("%s: %w", k, err)
	}
	reasons, err := artifact.Explain(vec, top)
	if err != nil {
		return Explanation{}, fmt.Errorf("%s: %w", k, err)
	}
	return Explanation{Key: k, ModelID: artifact.ID(), Prediction: pred, Reasons: reasons}, nil
}
