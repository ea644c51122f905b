// Package core holds the domain model of the label ledger: inventory
// snapshots, human label records, model predictions, final decisions and
// the reports produced while reconciling them.
package core

import (
	"fmt"
	"time"

	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// StableKey is the normalized relative path labels are attached to.
type StableKey = identity.StableKey

// ContentKey is the volatile content-derived identifier of a document.
type ContentKey = identity.ContentKey

// InventoryEntry is one cataloged item of an inventory snapshot.
type InventoryEntry = identity.Entry

// Snapshot is an immutable inventory listing identified by ID.
type Snapshot struct {
	ID      string
	Entries []InventoryEntry
}

// LabelRecord is a human classification decision for a StableKey.
type LabelRecord struct {
	Key       StableKey
	LabelRaw  string
	LabelNorm taxonomy.DocType
	CreatedAt time.Time
	UpdatedAt time.Time
	// Active is computed by reconciliation against a snapshot; it is never
	// persisted.
	Active bool
	// Extra holds every non-required column, keyed by column name.
	Extra map[string]string
}

// Clone returns a deep copy of r.
func (r LabelRecord) Clone() LabelRecord {
	c := r
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Provenance is the source that produced a final classification.
type Provenance string

const (
	ProvenanceHuman     Provenance = "human"
	ProvenanceModel     Provenance = "model"
	ProvenanceHeuristic Provenance = "heuristic"
)

// ModelPrediction is a per-document model output. It is never ground truth.
type ModelPrediction struct {
	Key        StableKey
	Class      taxonomy.DocType
	Confidence float64
	ModelID    string
}

// Decision is the final classification of a document.
type Decision struct {
	Key        StableKey        `json:"rel_path"`
	Class      taxonomy.DocType `json:"doc_type"`
	Provenance Provenance       `json:"provenance"`
	// Confidence is set only when Provenance is ProvenanceModel.
	Confidence *float64 `json:"confidence,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
}

// Drift records a label whose document content changed since labeling.
type Drift struct {
	Key         StableKey  `json:"rel_path" yaml:"rel_path"`
	AtLabelTime ContentKey `json:"at_label_time" yaml:"at_label_time"`
	Current     ContentKey `json:"current" yaml:"current"`
}

// ReconciliationReport summarizes one reconciliation run. It is created
// once per run and never mutated.
type ReconciliationReport struct {
	SnapshotID       string      `json:"snapshot_id" yaml:"snapshot_id"`
	GeneratedAt      time.Time   `json:"generated_at" yaml:"generated_at"`
	TotalLabels      int         `json:"total_labels" yaml:"total_labels"`
	Active           int         `json:"active" yaml:"active"`
	Orphaned         int         `json:"orphaned" yaml:"orphaned"`
	OrphanedKeys     []StableKey `json:"orphaned_keys" yaml:"orphaned_keys"`
	Unkeyed          int         `json:"unkeyed" yaml:"unkeyed"`
	InventoryEntries int         `json:"inventory_entries" yaml:"inventory_entries"`
	UnlabeledDocs    int         `json:"unlabeled_docs" yaml:"unlabeled_docs"`
	InvalidEntries   int         `json:"invalid_entries" yaml:"invalid_entries"`
	InvalidPaths     []string    `json:"invalid_paths,omitempty" yaml:"invalid_paths,omitempty"`
	CollidingKeys    []StableKey `json:"colliding_keys,omitempty" yaml:"colliding_keys,omitempty"`
	Drift            []Drift     `json:"drift,omitempty" yaml:"drift,omitempty"`
	EmptySnapshot    bool        `json:"empty_snapshot" yaml:"empty_snapshot"`
}

// LabelChange is one label_norm rewrite found by a migration.
type LabelChange struct {
	Key      StableKey        `json:"rel_path" yaml:"rel_path"`
	LabelRaw string           `json:"label_raw" yaml:"label_raw"`
	From     string           `json:"from" yaml:"from"`
	To       taxonomy.DocType `json:"to" yaml:"to"`
}

// MigrationReport is the diff produced by recomputing label_norm with the
// current mapping.
type MigrationReport struct {
	GeneratedAt       time.Time     `json:"generated_at" yaml:"generated_at"`
	MappingVersion    int           `json:"mapping_version" yaml:"mapping_version"`
	DryRun            bool          `json:"dry_run" yaml:"dry_run"`
	TotalLabels       int           `json:"total_labels" yaml:"total_labels"`
	AlreadyNormalized int           `json:"already_normalized" yaml:"already_normalized"`
	Changes           []LabelChange `json:"changes" yaml:"changes"`
	Unknown           int           `json:"unknown" yaml:"unknown"`
	UnknownKeys       []StableKey   `json:"unknown_keys,omitempty" yaml:"unknown_keys,omitempty"`
	BackupPath        string        `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Written           bool          `json:"written" yaml:"written"`
}

// ItemError is a per-document failure collected without aborting a batch.
type ItemError struct {
	Key  StableKey
	Path string
	Err  error
}

func (e ItemError) Error() string {
	subject := e.Path
	if e.Key != "" {
		subject = string(e.Key)
	}
	return fmt.Sprintf("%s: %v", subject, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
