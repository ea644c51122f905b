package fusion

import (
	"fmt"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Decide returns the first opinion of the policy's providers.
func Decide(in Inputs, policy Policy) (core.Decision, error) {
	return Chain(in, policy.Providers()...)
}

// Chain returns the first opinion of providers, in order. It fails with
// core.ErrNoDecision when none of them has one.
func Chain(in Inputs, providers ...Provider) (core.Decision, error) {
	for _, p := range providers {
		if d, ok := p.Decide(in); ok {
			return d, nil
		}
	}
	return core.Decision{}, fmt.Errorf("%w: %s", core.ErrNoDecision, in.Key)
}

// Batch is the input of DecideAll.
type Batch struct {
	Snapshot core.Snapshot
	// Labels are the active labels found by reconciliation.
	Labels      map[core.StableKey]core.LabelRecord
	Predictions map[core.StableKey]core.ModelPrediction
	Heuristics  map[core.StableKey]taxonomy.DocType
	Policy      Policy
	// Warnings raised while preparing the batch, such as an unavailable model.
	Warnings []string
}

// Summary counts the outcome of a batch. Skipped and errored documents are
// counted apart from decided ones.
type Summary struct {
	RunID        string                  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	SnapshotID   string                  `json:"snapshot_id" yaml:"snapshot_id"`
	Documents    int                     `json:"documents" yaml:"documents"`
	Decided      int                     `json:"decided" yaml:"decided"`
	ByProvenance map[core.Provenance]int `json:"by_provenance" yaml:"by_provenance"`
	Skipped      int                     `json:"skipped" yaml:"skipped"`
	Errored      int                     `json:"errored" yaml:"errored"`
	ModelEnabled bool                    `json:"model_enabled" yaml:"model_enabled"`
	MinModelConf float64                 `json:"min_model_confidence" yaml:"min_model_confidence"`
	Warnings     []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// BatchResult holds one decision per resolvable document plus the
// per-document errors of the run.
type BatchResult struct {
	Decisions []core.Decision
	Errors    []core.ItemError
	Summary   Summary
}

// DecideAll decides every document of the snapshot. Entries that cannot be
// resolved are skipped; documents no provider has an opinion on are
// errored. Neither aborts the batch. A key produced by several entries is
// decided once, at its first occurrence.
func DecideAll(b Batch) BatchResult {
	providers := b.Policy.Providers()
	res := BatchResult{
		Decisions: []core.Decision{},
		Summary: Summary{
			SnapshotID:   b.Snapshot.ID,
			Documents:    len(b.Snapshot.Entries),
			ByProvenance: map[core.Provenance]int{},
			ModelEnabled: b.Policy.ModelEnabled,
			MinModelConf: b.Policy.MinModelConfidence,
			Warnings:     append([]string(nil), b.Warnings...),
		},
	}

	seen := make(map[core.StableKey]bool, len(b.Snapshot.Entries))
	for _, entry := range b.Snapshot.Entries {
		key, _, err := identity.Resolve(entry)
		if err != nil {
			res.Summary.Skipped++
			res.Errors = append(res.Errors, core.ItemError{Path: entry.Path(), Err: err})
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		in := Inputs{Key: key, Heuristic: b.Heuristics[key]}
		if rec, ok := b.Labels[key]; ok {
			in.Label = &rec
		}
		if pred, ok := b.Predictions[key]; ok {
			in.Prediction = &pred
		}

		d, err := Chain(in, providers...)
		if err != nil {
			res.Summary.Errored++
			res.Errors = append(res.Errors, core.ItemError{Key: key, Path: entry.Path(), Err: err})
			continue
		}
		res.Decisions = append(res.Decisions, d)
		res.Summary.Decided++
		res.Summary.ByProvenance[d.Provenance]++
	}
	return res
}
