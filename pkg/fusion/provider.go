// Package fusion combines a human label, a model prediction and a heuristic
// result into one final classification per document.
//
// Fusion walks an ordered list of providers and keeps the first opinion.
// It holds no state and never writes anywhere; its output is regenerated on
// every run and is never fed back into the label store.
package fusion

import (
	"math"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// DefaultMinModelConfidence is the confidence gate used when none is configured.
const DefaultMinModelConfidence = 0.70

// Inputs is everything known about one document at decision time.
type Inputs struct {
	Key core.StableKey
	// Label is the document's human label, if any. Only a label that
	// reconciliation marked active is authoritative.
	Label *core.LabelRecord
	// Prediction is the model output, if the model ran for this document.
	Prediction *core.ModelPrediction
	// Heuristic is the heuristic class, or "" when no signals were available.
	Heuristic taxonomy.DocType
}

// Provider produces a decision or has no opinion.
type Provider interface {
	Name() core.Provenance
	Decide(in Inputs) (core.Decision, bool)
}

type humanProvider struct{}

// Human decides from an active, normalized human label.
func Human() Provider { return humanProvider{} }

func (humanProvider) Name() core.Provenance { return core.ProvenanceHuman }

func (humanProvider) Decide(in Inputs) (core.Decision, bool) {
	if in.Label == nil || !in.Label.Active || !in.Label.LabelNorm.Valid() {
		return core.Decision{}, false
	}
	return core.Decision{Key: in.Key, Class: in.Label.LabelNorm, Provenance: core.ProvenanceHuman}, true
}

type modelProvider struct {
	min float64
}

// Model decides from a prediction whose confidence reaches minConfidence.
// A confidence equal to the gate passes. Predictions with a class outside
// the taxonomy or a confidence outside [0,1] are ignored.
func Model(minConfidence float64) Provider { return modelProvider{min: minConfidence} }

func (modelProvider) Name() core.Provenance { return core.ProvenanceModel }

func (p modelProvider) Decide(in Inputs) (core.Decision, bool) {
	pred := in.Prediction
	if pred == nil || !pred.Class.Valid() {
		return core.Decision{}, false
	}
	c := pred.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 || c < p.min {
		return core.Decision{}, false
	}
	return core.Decision{
		Key:        in.Key,
		Class:      pred.Class,
		Provenance: core.ProvenanceModel,
		Confidence: &c,
		ModelID:    pred.ModelID,
	}, true
}

type heuristicProvider struct{}

// Heuristic decides from the heuristic class whenever one is present.
func Heuristic() Provider { return heuristicProvider{} }

func (heuristicProvider) Name() core.Provenance { return core.ProvenanceHeuristic }

func (heuristicProvider) Decide(in Inputs) (core.Decision, bool) {
	if !in.Heuristic.Valid() {
		return core.Decision{}, false
	}
	return core.Decision{Key: in.Key, Class: in.Heuristic, Provenance: core.ProvenanceHeuristic}, true
}

// Policy selects the providers of a run.
type Policy struct {
	ModelEnabled       bool
	MinModelConfidence float64
}

// DefaultPolicy enables the model behind the default confidence gate.
func DefaultPolicy() Policy {
	return Policy{ModelEnabled: true, MinModelConfidence: DefaultMinModelConfidence}
}

// Providers returns the ordered provider chain for p.
func (p Policy) Providers() []Provider {
	chain := []Provider{Human()}
	if p.ModelEnabled {
		chain = append(chain, Model(p.MinModelConfidence))
	}
	return append(chain, Heuristic())
}
