// Package inventory reads the tables produced by the external catalog
// tools: inventory snapshots, readiness probes, model predictions and
// feature extracts. Every table is keyed by rel_path and normalized into
// StableKeys on the way in.
package inventory

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/pointer"
)

// FileName is the inventory table written in every inventory run directory.
const FileName = "inventory.csv"

// DefaultInclude selects PDF documents, including archive members.
var DefaultInclude = []string{"**/*.pdf"}

// Filter selects the inventory entries that take part in a snapshot.
// Patterns are doublestar globs matched case-insensitively against the
// entry path; for archive members they are matched against the inner path.
type Filter struct {
	Include []string
}

// Validate reports the first malformed pattern.
func (f Filter) Validate() error {
	for _, p := range f.Include {
		if !doublestar.ValidatePattern(strings.ToLower(p)) {
			return fmt.Errorf("invalid include pattern %q", p)
		}
	}
	return nil
}

// Match reports whether e is selected. An empty filter selects everything.
func (f Filter) Match(e core.InventoryEntry) bool {
	if len(f.Include) == 0 {
		return true
	}
	path := strings.ToLower(strings.ReplaceAll(e.Path(), "\\", "/"))
	if _, inner, found := strings.Cut(path, "::"); found {
		path = inner
	}
	path = strings.TrimPrefix(strings.TrimPrefix(path, "./"), "/")
	for _, p := range f.Include {
		if ok, _ := doublestar.Match(strings.ToLower(p), path); ok {
			return true
		}
	}
	if ext, ok := e.Extra["extension"]; ok {
		// The walker records the extension without a dot.
		for _, p := range f.Include {
			if strings.EqualFold(strings.TrimPrefix(filepath.Ext(p), "."), strings.TrimPrefix(ext, ".")) {
				return true
			}
		}
	}
	return false
}

// Columns holding the hash, in lookup order.
var hashColumns = []string{"hash_value", "sha256", "content_hash"}

// Load reads an inventory table and returns the selected entries as a
// snapshot identified by SnapshotID. Rows whose size or modification time
// cannot be parsed are skipped and returned as item errors; a missing
// rel_path column is fatal.
func Load(path string, filter Filter) (core.Snapshot, []core.ItemError, error) {
	id, err := SnapshotID(path)
	if err != nil {
		return core.Snapshot{}, nil, err
	}
	header, rows, err := readCSV(path)
	if err != nil {
		return core.Snapshot{}, nil, err
	}
	pos := positions(header)
	if _, ok := pos["rel_path"]; !ok {
		return core.Snapshot{}, nil, fmt.Errorf("inventory %s: missing rel_path column", path)
	}

	snap := core.Snapshot{ID: id, Entries: []core.InventoryEntry{}}
	var problems []core.ItemError
	for n, values := range rows {
		get := func(col string) string {
			if i, ok := pos[col]; ok && i < len(values) {
				return strings.TrimSpace(values[i])
			}
			return ""
		}
		e := core.InventoryEntry{
			RelPath:   get("rel_path"),
			Container: get("container"),
			Extra:     make(map[string]string),
		}
		for _, col := range hashColumns {
			if v := get(col); v != "" {
				e.ContentHash = v
				break
			}
		}
		if s := get("size_bytes"); s != "" {
			size, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				problems = append(problems, core.ItemError{Path: e.Path(), Err: fmt.Errorf("line %d: size_bytes: %w", n+2, err)})
				continue
			}
			e.Size = size
		}
		mt, err := core.ParseTimestamp(get("modified_time"))
		if err != nil {
			problems = append(problems, core.ItemError{Path: e.Path(), Err: fmt.Errorf("line %d: modified_time: %w", n+2, err)})
			continue
		}
		e.ModTime = mt
		for name, i := range pos {
			switch name {
			case "rel_path", "container", "size_bytes":
				continue
			}
			if i < len(values) && values[i] != "" {
				e.Extra[name] = values[i]
			}
		}
		if !filter.Match(e) {
			continue
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, problems, nil
}

// SnapshotID identifies the inventory at path: the run id recorded in the
// sibling run_log.json, else the run directory name for the standard
// inventory/<run>/inventory.csv layout, else a digest of the file.
func SnapshotID(path string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "run_log.json")); err == nil {
		var runLog struct {
			InventoryRunID string `json:"inventory_run_id"`
		}
		if json.Unmarshal(data, &runLog) == nil && strings.TrimSpace(runLog.InventoryRunID) != "" {
			return strings.TrimSpace(runLog.InventoryRunID), nil
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if filepath.Base(abs) == FileName && filepath.Base(filepath.Dir(filepath.Dir(abs))) == "inventory" {
		return filepath.Base(filepath.Dir(abs)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open inventory: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash inventory: %w", err)
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Latest locates the current inventory table under outputsRoot through the
// inventory LATEST pointer, falling back to <outputs>/inventory.csv.
func Latest(outputsRoot string) (string, error) {
	rec, err := pointer.Read(filepath.Join(outputsRoot, "inventory"))
	switch {
	case err == nil:
		path := rec.Resolve(outputsRoot)
		if filepath.Ext(path) != ".csv" {
			path = filepath.Join(path, FileName)
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	case !errors.Is(err, pointer.ErrNotFound):
		return "", err
	}
	legacy := filepath.Join(outputsRoot, FileName)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, nil
	}
	return "", fmt.Errorf("no inventory found under %s", outputsRoot)
}

// Resolve turns an inventory reference (LATEST, a run id or a path) into
// the path of an inventory table.
func Resolve(outputsRoot, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, "LATEST") {
		return Latest(outputsRoot)
	}
	if info, err := os.Stat(ref); err == nil {
		if info.IsDir() {
			return filepath.Join(ref, FileName), nil
		}
		return ref, nil
	}
	candidate := filepath.Join(outputsRoot, "inventory", ref, FileName)
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("inventory %q not found", ref)
	}
	return candidate, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", path)
	}
	return records[0], records[1:], nil
}

func positions(header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	return pos
}
