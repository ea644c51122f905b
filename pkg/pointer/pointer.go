// Package pointer reads and writes the "latest run" records that let callers
// locate the current inventory snapshot, model or decision run.
//
// A pointer is an explicit, versioned file (LATEST.json) replaced
// atomically. Nothing here is cached; every lookup reads the file.
package pointer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/pdfledger/internal/atomicfile"
)

// FileName is the pointer file kept in every run family directory.
const FileName = "LATEST.json"

// Version is the pointer format written by this package.
const Version = 1

var (
	// ErrNotFound is returned when no pointer has been written yet.
	ErrNotFound = errors.New("pointer not found")
	// ErrUnsupportedVersion is returned for pointers written by a newer release.
	ErrUnsupportedVersion = errors.New("unsupported pointer version")
)

// Record identifies the latest run of one family.
type Record struct {
	Version int `json:"version"`
	// ID is the run identifier (inventory snapshot id, model id, ...).
	ID string `json:"id"`
	// Path locates the run output, relative to the outputs root.
	Path      string            `json:"path"`
	UpdatedAt time.Time         `json:"updated_at"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Keys written by the first generation of tools, in lookup order.
var (
	legacyID      = []string{"id", "inventory_run_id", "model_id", "run_id"}
	legacyPath    = []string{"path", "inventory_csv", "run_dir"}
	legacyUpdated = []string{"updated_at", "trained_at", "created_at"}
)

// Write atomically replaces dir/LATEST.json with rec. A zero Version is
// stamped with the current one.
func Write(dir string, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("pointer id is required")
	}
	if rec.Version == 0 {
		rec.Version = Version
	}
	if rec.Version > Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.Path = filepath.ToSlash(rec.Path)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pointer: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pointer dir: %w", err)
	}
	return atomicfile.WriteFile(filepath.Join(dir, FileName), append(data, '\n'), 0644)
}

// Read loads dir/LATEST.json. Pointers written before the format was
// versioned are read as version 1.
func Read(dir string) (Record, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Record{}, fmt.Errorf("failed to read pointer: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("invalid pointer %s: %w", path, err)
	}

	rec := Record{Version: 1}
	if v, ok := raw["version"].(float64); ok {
		rec.Version = int(v)
	}
	if rec.Version > Version {
		return Record{}, fmt.Errorf("%w: %d in %s", ErrUnsupportedVersion, rec.Version, path)
	}
	rec.ID = lookup(raw, legacyID)
	rec.Path = filepath.ToSlash(lookup(raw, legacyPath))
	if ts := lookup(raw, legacyUpdated); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.UpdatedAt = t.UTC()
		} else if t, err := time.Parse("2006-01-02T15:04:05.999999", ts); err == nil {
			rec.UpdatedAt = t.UTC()
		}
	}
	if extra, ok := raw["extra"].(map[string]any); ok {
		rec.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			rec.Extra[k] = fmt.Sprint(v)
		}
	}
	if rec.ID == "" {
		return Record{}, fmt.Errorf("invalid pointer %s: missing id", path)
	}
	return rec, nil
}

// Resolve returns the absolute location of the run rec points to.
func (r Record) Resolve(outputsRoot string) string {
	if filepath.IsAbs(r.Path) {
		return r.Path
	}
	return filepath.Join(outputsRoot, filepath.FromSlash(r.Path))
}

func lookup(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewRunID returns "<label>_<kind>_<YYYYMMDD_HHMMSS>", or
// "<kind>_<YYYYMMDD_HHMMSS>" without a label. Characters outside
// [A-Za-z0-9._-] in label are collapsed to "-".
func NewRunID(kind, label string, at time.Time) string {
	stamp := at.UTC().Format("20060102_150405")
	if label == "" {
		return kind + "_" + stamp
	}
	clean := strings.Trim(unsafeLabel.ReplaceAllString(label, "-"), "-")
	if clean == "" {
		clean = "root"
	}
	return clean + "_" + kind + "_" + stamp
}
