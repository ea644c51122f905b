// Package heuristic classifies documents from coarse text-presence signals.
package heuristic

import (
	"math"
	"strings"

	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Signals are the readiness figures measured for one document.
type Signals struct {
	// TextCoverage is the share of pages with extractable text, in [0,1].
	TextCoverage float64
	// AvgCharsPerPage is the mean number of extractable characters per page.
	AvgCharsPerPage float64
	// Pages is the number of pages measured. Zero means nothing was measured.
	Pages int
}

// Thresholds tune Classify.
type Thresholds struct {
	TextCoverageText    float64 `yaml:"text_coverage_text" toml:"text_coverage_text"`
	TextCoverageScanned float64 `yaml:"text_coverage_scanned" toml:"text_coverage_scanned"`
	MinCharsPerPage     float64 `yaml:"min_chars_per_page" toml:"min_chars_per_page"`
}

// DefaultThresholds returns the thresholds used by the readiness probe.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TextCoverageText:    0.50,
		TextCoverageScanned: 0.10,
		MinCharsPerPage:     200,
	}
}

// Classifier maps signals onto the taxonomy.
type Classifier struct {
	th Thresholds
}

// New returns a classifier using th. Zero fields fall back to the defaults.
func New(th Thresholds) *Classifier {
	def := DefaultThresholds()
	if th.TextCoverageText == 0 {
		th.TextCoverageText = def.TextCoverageText
	}
	if th.TextCoverageScanned == 0 {
		th.TextCoverageScanned = def.TextCoverageScanned
	}
	if th.MinCharsPerPage == 0 {
		th.MinCharsPerPage = def.MinCharsPerPage
	}
	return &Classifier{th: th}
}

// Thresholds returns the effective thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

// Classify returns TEXT when most pages carry enough text, IMAGE when almost
// none do, and MIXED otherwise. It has no opinion on documents without
// measured pages or with non-finite signals.
func (c *Classifier) Classify(s Signals) (taxonomy.DocType, bool) {
	if s.Pages <= 0 || !finite(s.TextCoverage) || !finite(s.AvgCharsPerPage) {
		return "", false
	}
	switch {
	case s.TextCoverage >= c.th.TextCoverageText && s.AvgCharsPerPage >= c.th.MinCharsPerPage:
		return taxonomy.Text, true
	case s.TextCoverage < c.th.TextCoverageScanned:
		return taxonomy.Image, true
	default:
		return taxonomy.Mixed, true
	}
}

// readiness labels written by the probe before it emitted taxonomy values.
var readiness = map[string]taxonomy.DocType{
	"text-based": taxonomy.Text,
	"scanned":    taxonomy.Image,
	"mixed":      taxonomy.Mixed,
}

// ParseReadiness maps a recorded readiness classification onto the
// taxonomy. Both probe labels ("Text-based", "Scanned", "Mixed") and
// taxonomy values are accepted; "Unknown" and blanks have no opinion.
func ParseReadiness(s string) (taxonomy.DocType, bool) {
	v := strings.TrimSpace(s)
	if t, ok := readiness[strings.ToLower(v)]; ok {
		return t, true
	}
	if t, err := taxonomy.Parse(v); err == nil {
		return t, true
	}
	return "", false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
