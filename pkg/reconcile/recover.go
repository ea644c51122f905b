package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/identity"
)

// Inventory columns consulted when re-attaching legacy rows by document id.
var docIDColumns = []string{"doc_id", "doc_id_current", "file_id"}

// Recovery re-attaches an unkeyed legacy row to a snapshot key.
type Recovery struct {
	// Index is the row position in the table.
	Index int
	Key   core.StableKey
	// By names the column that matched.
	By string
}

// RecoverResult lists what Recover could and could not re-attach.
type RecoverResult struct {
	Recovered []Recovery
	// Unresolved holds the row positions left without a key.
	Unresolved []int
}

// Recover proposes keys for table rows that lost their rel_path, matching
// the document id or digest they recorded at labeling time against the
// snapshot. Document ids are compared with the inventory id columns and
// with the ids the first labeling tool derived (see identity.LegacyDocIDs). A row is only re-attached when exactly one snapshot key matches
// and that key carries no label yet. The table is not modified; see Apply.
func Recover(snapshot core.Snapshot, table *core.Table) RecoverResult {
	var out RecoverResult
	unkeyed := table.Unkeyed()
	if len(unkeyed) == 0 {
		return out
	}

	resolved, _ := identity.ResolveAll(snapshot.Entries)
	byDocID := make(map[string][]core.StableKey)
	byHash := make(map[core.ContentKey][]core.StableKey)
	for _, r := range resolved {
		ids := identity.LegacyDocIDs(r.Entry)
		for _, col := range docIDColumns {
			ids = append(ids, strings.TrimSpace(r.Entry.Extra[col]))
		}
		ids = append(ids, string(r.Content))
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			byDocID[id] = append(byDocID[id], r.Key)
		}
		if h := identity.HashKey(r.Entry.ContentHash); h != "" {
			byHash[h] = append(byHash[h], r.Key)
		}
	}

	claimed := make(map[core.StableKey]bool)
	for _, row := range unkeyed {
		var (
			key core.StableKey
			by  string
		)
		if col, id := firstSet(row.Record, core.ColumnDocIDAtLabelTime, core.ColumnDocID); id != "" {
			if k, ok := single(byDocID[id]); ok {
				key, by = k, col
			}
		}
		if key == "" {
			if col, sha := firstSet(row.Record, core.ColumnSHA256AtLabelTime, core.ColumnSHA256); sha != "" {
				if k, ok := single(byHash[identity.HashKey(sha)]); ok {
					key, by = k, col
				}
			}
		}
		if key == "" || claimed[key] {
			out.Unresolved = append(out.Unresolved, row.Index)
			continue
		}
		if _, taken := table.Get(key); taken {
			out.Unresolved = append(out.Unresolved, row.Index)
			continue
		}
		claimed[key] = true
		out.Recovered = append(out.Recovered, Recovery{Index: row.Index, Key: key, By: by})
	}
	return out
}

// Apply assigns the recovered keys to table.
func Apply(table *core.Table, recoveries []Recovery) error {
	for _, r := range recoveries {
		if err := table.AssignKey(r.Index, r.Key); err != nil {
			return fmt.Errorf("recover row %d: %w", r.Index, err)
		}
	}
	return nil
}

// firstSet returns the first of cols holding a value in rec.
func firstSet(rec core.LabelRecord, cols ...string) (string, string) {
	for _, col := range cols {
		if v := strings.TrimSpace(rec.Extra[col]); v != "" {
			return col, v
		}
	}
	return "", ""
}

// single returns the only distinct key in keys.
func single(keys []core.StableKey) (core.StableKey, bool) {
	if len(keys) == 0 {
		return "", false
	}
	distinct := append([]core.StableKey(nil), keys...)
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })
	if distinct[0] != distinct[len(distinct)-1] {
		return "", false
	}
	return distinct[0], true
}
