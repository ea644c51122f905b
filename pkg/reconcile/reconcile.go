// Package reconcile joins the label table against an inventory snapshot.
//
// Reconciliation is a full recomputation: every run derives the active flag
// of every record from scratch, so running it twice against the same inputs
// yields the same result. It never mutates the table it reads.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Result is the outcome of one reconciliation run.
type Result struct {
	// Active holds the records whose key is present in the snapshot, in
	// table order.
	Active []core.LabelRecord
	// Orphaned holds the records whose key is absent, in table order.
	Orphaned []core.LabelRecord
	Report   core.ReconciliationReport
	// Errors lists the inventory entries that could not be resolved.
	Errors []core.ItemError
	// Index maps every resolvable snapshot key to its first entry.
	Index map[core.StableKey]identity.Resolved
}

// ActiveByKey returns the active records keyed by StableKey.
func (r Result) ActiveByKey() map[core.StableKey]core.LabelRecord {
	out := make(map[core.StableKey]core.LabelRecord, len(r.Active))
	for _, rec := range r.Active {
		out[rec.Key] = rec
	}
	return out
}

// Reconcile marks every keyed record of table active or orphaned against
// snapshot. at is stamped on the report as is; callers pass the run clock.
//
// An empty snapshot is not an error: every record is orphaned and the
// report says so.
func Reconcile(snapshot core.Snapshot, table *core.Table, at time.Time) Result {
	if table == nil {
		table = core.NewTable(taxonomy.Current)
	}

	resolved, failures := identity.ResolveAll(snapshot.Entries)
	index, colliding := indexSnapshot(resolved)

	res := Result{
		Index: index,
		Report: core.ReconciliationReport{
			SnapshotID:       snapshot.ID,
			GeneratedAt:      at.UTC(),
			InventoryEntries: len(snapshot.Entries),
			InvalidEntries:   len(failures),
			CollidingKeys:    colliding,
			EmptySnapshot:    len(snapshot.Entries) == 0,
			OrphanedKeys:     []core.StableKey{},
		},
	}
	for _, f := range failures {
		res.Errors = append(res.Errors, core.ItemError{Path: f.Path, Err: f.Err})
		res.Report.InvalidPaths = append(res.Report.InvalidPaths, f.Path)
	}

	labeled := 0
	for _, rec := range table.All() {
		entry, present := index[rec.Key]
		rec.Active = present
		if !present {
			res.Orphaned = append(res.Orphaned, rec)
			res.Report.OrphanedKeys = append(res.Report.OrphanedKeys, rec.Key)
			continue
		}
		labeled++
		res.Active = append(res.Active, rec)
		if d, ok := drift(rec, entry.Content); ok {
			res.Report.Drift = append(res.Report.Drift, d)
		}
	}

	sort.Slice(res.Report.OrphanedKeys, func(i, j int) bool {
		return res.Report.OrphanedKeys[i] < res.Report.OrphanedKeys[j]
	})
	sort.Slice(res.Report.Drift, func(i, j int) bool {
		return res.Report.Drift[i].Key < res.Report.Drift[j].Key
	})

	res.Report.TotalLabels = table.Len()
	res.Report.Active = len(res.Active)
	res.Report.Orphaned = len(res.Orphaned)
	res.Report.Unkeyed = len(table.Unkeyed())
	res.Report.UnlabeledDocs = len(index) - labeled
	return res
}

// indexSnapshot keys the resolved entries, keeping the first entry of every
// key. Keys produced by more than one entry are returned sorted.
func indexSnapshot(resolved []identity.Resolved) (map[core.StableKey]identity.Resolved, []core.StableKey) {
	index := make(map[core.StableKey]identity.Resolved, len(resolved))
	seen := make(map[core.StableKey]int, len(resolved))
	for _, r := range resolved {
		seen[r.Key]++
		if _, ok := index[r.Key]; !ok {
			index[r.Key] = r
		}
	}
	var colliding []core.StableKey
	for k, n := range seen {
		if n > 1 {
			colliding = append(colliding, k)
		}
	}
	sort.Slice(colliding, func(i, j int) bool { return colliding[i] < colliding[j] })
	return index, colliding
}

// drift compares the content key recorded at labeling time with the
// current one. Records without a recorded key never drift.
func drift(rec core.LabelRecord, current core.ContentKey) (core.Drift, bool) {
	recorded := core.ContentKey(strings.TrimSpace(rec.Extra[core.ColumnContentKeyAtLabelTime]))
	if recorded == "" {
		recorded = identity.HashKey(rec.Extra[core.ColumnSHA256AtLabelTime])
		if recorded == "" || !strings.HasPrefix(string(current), "sha256:") {
			// A legacy digest says nothing about metadata-derived keys.
			return core.Drift{}, false
		}
	}
	if recorded == current {
		return core.Drift{}, false
	}
	return core.Drift{Key: rec.Key, AtLabelTime: recorded, Current: current}, true
}
