package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/identity"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Readiness is one row of a readiness probe table.
type Readiness struct {
	Signals heuristic.Signals
	// Classification is the class the probe recorded, if any.
	Classification string
}

// Heuristic returns the class for r: the recorded classification when it is
// recognized, else the classifier's verdict on the signals.
func (r Readiness) Heuristic(c *heuristic.Classifier) (taxonomy.DocType, bool) {
	if t, ok := heuristic.ParseReadiness(r.Classification); ok {
		return t, true
	}
	return c.Classify(r.Signals)
}

// LoadReadiness reads a probe table with text_coverage_pct,
// avg_text_chars_per_page, page_count and classification columns.
func LoadReadiness(path string) (map[core.StableKey]Readiness, []core.ItemError, error) {
	out := make(map[core.StableKey]Readiness)
	errs, err := eachRow(path, func(key core.StableKey, get func(string) string) error {
		var r Readiness
		var err error
		if r.Signals.TextCoverage, err = parseFloat(get("text_coverage_pct")); err != nil {
			return fmt.Errorf("text_coverage_pct: %w", err)
		}
		if r.Signals.AvgCharsPerPage, err = parseFloat(get("avg_text_chars_per_page")); err != nil {
			return fmt.Errorf("avg_text_chars_per_page: %w", err)
		}
		if pages := get("page_count"); pages != "" {
			n, err := strconv.ParseFloat(pages, 64)
			if err != nil {
				return fmt.Errorf("page_count: %w", err)
			}
			r.Signals.Pages = int(n)
		} else if !math.IsNaN(r.Signals.TextCoverage) {
			r.Signals.Pages = 1
		}
		r.Classification = get("classification")
		out[key] = r
		return nil
	})
	return out, errs, err
}

// LoadPredictions reads a prediction table with predicted_label, confidence
// and, optionally, model_id columns. Labels written under the legacy
// taxonomy are mapped onto the current one; rows with an empty label are
// ignored.
func LoadPredictions(path, defaultModelID string) (map[core.StableKey]core.ModelPrediction, []core.ItemError, error) {
	out := make(map[core.StableKey]core.ModelPrediction)
	errs, err := eachRow(path, func(key core.StableKey, get func(string) string) error {
		raw := get("predicted_label")
		if raw == "" {
			raw = get("doc_type_model_pred")
		}
		if raw == "" {
			return nil
		}
		class, ok := taxonomy.Current.Normalize(raw)
		if !ok {
			return fmt.Errorf("%w: %q", core.ErrUnknownLabel, raw)
		}
		conf, err := parseFloat(firstNonEmpty(get("confidence"), get("model_confidence")))
		if err != nil {
			return fmt.Errorf("confidence: %w", err)
		}
		id := get("model_id")
		if id == "" {
			id = defaultModelID
		}
		out[key] = core.ModelPrediction{Key: key, Class: class, Confidence: conf, ModelID: id}
		return nil
	})
	return out, errs, err
}

// Features is a feature table: one vector per document, in Names order.
type Features struct {
	Names []string
	Rows  map[core.StableKey][]float64
}

// Vector returns the features of key reordered to names. Missing features
// are NaN so the model imputes them.
func (f *Features) Vector(key core.StableKey, names []string) ([]float64, bool) {
	row, ok := f.Rows[key]
	if !ok {
		return nil, false
	}
	idx := make(map[string]int, len(f.Names))
	for i, n := range f.Names {
		idx[n] = i
	}
	out := make([]float64, len(names))
	for i, n := range names {
		out[i] = math.NaN()
		if j, ok := idx[n]; ok {
			out[i] = row[j]
		}
	}
	return out, true
}

// Columns that are never features.
var nonFeatureColumns = map[string]bool{
	"rel_path": true, "doc_id": true, "top_level_folder": true, "label_norm": true,
	"label_raw": true, "label": true, "pages_sampled": true, "dpi": true, "seed": true,
	"predicted_label": true, "confidence": true, "probe_path": true, "probe_error": true,
}

// LoadFeatures reads a feature table. Every column not known to carry
// metadata is taken as a feature; blank cells become NaN.
func LoadFeatures(path string) (*Features, []core.ItemError, error) {
	header, _, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	f := &Features{Rows: make(map[core.StableKey][]float64)}
	for _, h := range header {
		name := strings.TrimSpace(h)
		if !nonFeatureColumns[name] {
			f.Names = append(f.Names, name)
		}
	}
	errs, err := eachRow(path, func(key core.StableKey, get func(string) string) error {
		vec := make([]float64, len(f.Names))
		for i, n := range f.Names {
			v, err := parseFloat(get(n))
			if err != nil {
				return fmt.Errorf("%s: %w", n, err)
			}
			vec[i] = v
		}
		f.Rows[key] = vec
		return nil
	})
	if err != nil {
		return nil, errs, err
	}
	return f, errs, nil
}

// eachRow calls fn for every row of a rel_path keyed table. Rows with an
// invalid key or rejected by fn are collected as item errors.
func eachRow(path string, fn func(core.StableKey, func(string) string) error) ([]core.ItemError, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	pos := positions(header)
	if _, ok := pos["rel_path"]; !ok {
		return nil, fmt.Errorf("%s: missing rel_path column", path)
	}
	var errs []core.ItemError
	for n, values := range rows {
		get := func(col string) string {
			if i, ok := pos[col]; ok && i < len(values) {
				return strings.TrimSpace(values[i])
			}
			return ""
		}
		rel := get("rel_path")
		key, err := identity.NormalizePath(rel)
		if err != nil {
			errs = append(errs, core.ItemError{Path: rel, Err: err})
			continue
		}
		if err := fn(key, get); err != nil {
			errs = append(errs, core.ItemError{Key: key, Path: rel, Err: fmt.Errorf("line %d: %w", n+2, err)})
		}
	}
	return errs, nil
}

func parseFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
