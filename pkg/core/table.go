package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Column names of the persisted label table.
const (
	ColumnRelPath   = "rel_path"
	ColumnLabelRaw  = "label_raw"
	ColumnLabelNorm = "label_norm"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"

	ColumnNotes                 = "notes"
	ColumnSourceInventoryRun    = "source_inventory_run"
	ColumnContentKeyAtLabelTime = "content_key_at_label_time"

	// Columns written by the first labeling tool. They are read for
	// upgrades and recovery and otherwise preserved like any unknown column.
	ColumnLabel             = "label"
	ColumnLabeledAt         = "labeled_at"
	ColumnSHA256AtLabelTime = "sha256_at_label_time"
	ColumnDocIDAtLabelTime  = "doc_id_at_label_time"
	ColumnSHA256            = "sha256"
	ColumnDocID             = "doc_id"
)

// RequiredColumns are always written first, in this order.
var RequiredColumns = []string{ColumnRelPath, ColumnLabelRaw, ColumnLabelNorm, ColumnCreatedAt, ColumnUpdatedAt}

// OptionalColumns are always written after the required ones.
var OptionalColumns = []string{ColumnNotes, ColumnSourceInventoryRun, ColumnContentKeyAtLabelTime}

// Table is the in-memory form of the label store: one record per StableKey,
// kept in insertion order, plus the column layout needed to write it back
// without losing columns this version does not know about.
//
// Table is not safe for concurrent use.
type Table struct {
	mapping taxonomy.Mapping
	extra   []string
	rows    []*tableRow
	index   map[StableKey]int
}

type tableRow struct {
	rec LabelRecord
	// persisted is label_norm as last read from or written to storage.
	persisted string
}

// NewTable returns an empty table normalizing labels with mapping.
func NewTable(mapping taxonomy.Mapping) *Table {
	return &Table{
		mapping: mapping,
		extra:   append([]string(nil), OptionalColumns...),
		index:   make(map[StableKey]int),
	}
}

// Mapping returns the mapping the table normalizes with.
func (t *Table) Mapping() taxonomy.Mapping {
	return t.mapping
}

// Columns returns the header the table is written with.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(RequiredColumns)+len(t.extra))
	cols = append(cols, RequiredColumns...)
	return append(cols, t.extra...)
}

// Len returns the number of keyed records.
func (t *Table) Len() int {
	return len(t.index)
}

// Get returns the record stored for key.
func (t *Table) Get(key StableKey) (LabelRecord, bool) {
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return LabelRecord{}, false
	}
	i, ok := t.index[k]
	if !ok {
		return LabelRecord{}, false
	}
	return t.rows[i].rec.Clone(), true
}

// All returns every keyed record in insertion order.
func (t *Table) All() []LabelRecord {
	out := make([]LabelRecord, 0, len(t.index))
	for _, r := range t.rows {
		if r.rec.Key != "" {
			out = append(out, r.rec.Clone())
		}
	}
	return out
}

// UnkeyedRow is a legacy record that lost its rel_path.
type UnkeyedRow struct {
	Index  int
	Record LabelRecord
}

// Unkeyed returns the records without a StableKey.
func (t *Table) Unkeyed() []UnkeyedRow {
	var out []UnkeyedRow
	for i, r := range t.rows {
		if r.rec.Key == "" {
			out = append(out, UnkeyedRow{Index: i, Record: r.rec.Clone()})
		}
	}
	return out
}

// AssignKey attaches key to the unkeyed row at index.
func (t *Table) AssignKey(index int, key StableKey) error {
	if index < 0 || index >= len(t.rows) {
		return fmt.Errorf("row %d out of range", index)
	}
	row := t.rows[index]
	if row.rec.Key != "" {
		return fmt.Errorf("row %d already keyed as %s", index, row.rec.Key)
	}
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return err
	}
	if _, taken := t.index[k]; taken {
		return fmt.Errorf("%w: %s", ErrLabelExists, k)
	}
	row.rec.Key = k
	t.index[k] = index
	return nil
}

// PutOption sets optional columns on a record being written.
type PutOption func(*LabelRecord)

// WithNotes records a free-form reviewer note.
func WithNotes(notes string) PutOption {
	return WithColumn(ColumnNotes, notes)
}

// WithSourceInventoryRun records the inventory snapshot the reviewer labeled against.
func WithSourceInventoryRun(snapshotID string) PutOption {
	return WithColumn(ColumnSourceInventoryRun, snapshotID)
}

// WithContentKey records the document's ContentKey at labeling time so
// later reconciliations can report drift.
func WithContentKey(key ContentKey) PutOption {
	return WithColumn(ColumnContentKeyAtLabelTime, string(key))
}

// WithColumn sets an arbitrary extra column.
func WithColumn(name, value string) PutOption {
	return func(r *LabelRecord) {
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[name] = value
	}
}

// Put creates or, when overwrite is set, updates the record for key.
// label_raw keeps raw verbatim; label_norm is raw mapped onto the taxonomy.
// created_at is left untouched on update.
func (t *Table) Put(key StableKey, raw string, overwrite bool, now time.Time, opts ...PutOption) (LabelRecord, error) {
	k, err := identity.NormalizePath(string(key))
	if err != nil {
		return LabelRecord{}, err
	}
	norm, ok := t.mapping.Normalize(raw)
	if !ok {
		return LabelRecord{}, fmt.Errorf("%w: %q (accepted: %s)", ErrUnknownLabel, raw, strings.Join(t.mapping.Accepted(), ", "))
	}
	now = now.UTC()

	if i, exists := t.index[k]; exists {
		if !overwrite {
			return LabelRecord{}, fmt.Errorf("%w: %s", ErrLabelExists, k)
		}
		rec := t.rows[i].rec.Clone()
		rec.LabelRaw = raw
		rec.LabelNorm = norm
		rec.UpdatedAt = now
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		for _, opt := range opts {
			opt(&rec)
		}
		t.registerColumns(rec.Extra)
		t.rows[i].rec = rec
		return rec.Clone(), nil
	}

	rec := LabelRecord{
		Key:       k,
		LabelRaw:  raw,
		LabelNorm: norm,
		CreatedAt: now,
		UpdatedAt: now,
		Extra:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(&rec)
	}
	t.registerColumns(rec.Extra)
	t.index[k] = len(t.rows)
	t.rows = append(t.rows, &tableRow{rec: rec})
	return rec.Clone(), nil
}

// Migrate compares the persisted label_norm of every record with the value
// the table's mapping produces. The table itself already holds the
// recomputed values; writing it applies the migration.
func (t *Table) Migrate(at time.Time) MigrationReport {
	report := MigrationReport{
		GeneratedAt:    at.UTC(),
		MappingVersion: t.mapping.Version,
		TotalLabels:    len(t.rows),
		Changes:        []LabelChange{},
	}
	for _, r := range t.rows {
		norm, ok := t.mapping.Normalize(r.rec.LabelRaw)
		switch {
		case !ok:
			report.Unknown++
			if r.rec.Key != "" {
				report.UnknownKeys = append(report.UnknownKeys, r.rec.Key)
			}
		case string(norm) == r.persisted:
			report.AlreadyNormalized++
		default:
			report.Changes = append(report.Changes, LabelChange{
				Key:      r.rec.Key,
				LabelRaw: r.rec.LabelRaw,
				From:     r.persisted,
				To:       norm,
			})
		}
	}
	return report
}

// MarkPersisted records that the current label_norm values are on disk.
// Repositories call it after a successful write.
func (t *Table) MarkPersisted() {
	for _, r := range t.rows {
		r.persisted = string(r.rec.LabelNorm)
	}
}

// Encode returns the header and rows to persist, in insertion order.
func (t *Table) Encode() ([]string, [][]string) {
	header := t.Columns()
	rows := make([][]string, 0, len(t.rows))
	for _, r := range t.rows {
		row := make([]string, len(header))
		row[0] = string(r.rec.Key)
		row[1] = r.rec.LabelRaw
		row[2] = string(r.rec.LabelNorm)
		row[3] = FormatTimestamp(r.rec.CreatedAt)
		row[4] = FormatTimestamp(r.rec.UpdatedAt)
		for i, col := range t.extra {
			row[len(RequiredColumns)+i] = r.rec.Extra[col]
		}
		rows = append(rows, row)
	}
	return header, rows
}

// DecodeTable builds a table from a persisted header and rows, upgrading
// layouts written by earlier versions. Any structural problem is reported
// as ErrStoreCorrupt; rows are never dropped.
func DecodeTable(header []string, records [][]string, mapping taxonomy.Mapping) (*Table, error) {
	t := NewTable(mapping)

	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrStoreCorrupt, i+1)
		}
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrStoreCorrupt, name)
		}
		pos[name] = i
		if !isRequired(name) {
			t.addColumn(name)
		}
	}

	if firstPresent(pos, ColumnRelPath, ColumnSHA256AtLabelTime, ColumnDocIDAtLabelTime, ColumnSHA256, ColumnDocID) == "" {
		return nil, fmt.Errorf("%w: missing %q column", ErrStoreCorrupt, ColumnRelPath)
	}
	rawColumn := firstPresent(pos, ColumnLabelRaw, ColumnLabel, ColumnLabelNorm)
	if rawColumn == "" {
		return nil, fmt.Errorf("%w: missing %q column", ErrStoreCorrupt, ColumnLabelRaw)
	}
	createdColumn := firstPresent(pos, ColumnCreatedAt, ColumnLabeledAt)
	updatedColumn := firstPresent(pos, ColumnUpdatedAt, ColumnLabeledAt, ColumnCreatedAt)

	for n, values := range records {
		line := n + 2
		if len(values) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrStoreCorrupt, line, len(values), len(header))
		}
		get := func(col string) string {
			if col == "" {
				return ""
			}
			if i, ok := pos[col]; ok {
				return values[i]
			}
			return ""
		}

		rec := LabelRecord{Extra: make(map[string]string)}
		for name, i := range pos {
			if !isRequired(name) && values[i] != "" {
				rec.Extra[name] = values[i]
			}
		}

		if rel := get(ColumnRelPath); strings.TrimSpace(rel) != "" {
			key, err := identity.NormalizePath(rel)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrStoreCorrupt, line, err)
			}
			if _, dup := t.index[key]; dup {
				return nil, fmt.Errorf("%w: line %d: duplicate label for %s", ErrStoreCorrupt, line, key)
			}
			rec.Key = key
		}

		rec.LabelRaw = get(rawColumn)
		if norm, ok := mapping.Normalize(rec.LabelRaw); ok {
			rec.LabelNorm = norm
		}

		var err error
		if rec.CreatedAt, err = ParseTimestamp(get(createdColumn)); err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %v", ErrStoreCorrupt, line, createdColumn, err)
		}
		if rec.UpdatedAt, err = ParseTimestamp(get(updatedColumn)); err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %v", ErrStoreCorrupt, line, updatedColumn, err)
		}

		if rec.Key != "" {
			t.index[rec.Key] = len(t.rows)
		}
		t.rows = append(t.rows, &tableRow{rec: rec, persisted: get(ColumnLabelNorm)})
	}
	return t, nil
}

func (t *Table) registerColumns(extra map[string]string) {
	names := make([]string, 0, len(extra))
	for name := range extra {
		if !isRequired(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		t.addColumn(name)
	}
}

func (t *Table) addColumn(name string) {
	for _, c := range t.extra {
		if c == name {
			return
		}
	}
	t.extra = append(t.extra, name)
}

func isRequired(name string) bool {
	for _, c := range RequiredColumns {
		if c == name {
			return true
		}
	}
	return false
}

func firstPresent(pos map[string]int, names ...string) string {
	for _, n := range names {
		if _, ok := pos[n]; ok {
			return n
		}
	}
	return ""
}
