package heuristic_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

func TestClassify(t *testing.T) {
	c := heuristic.New(heuristic.Thresholds{})

	tests := []struct {
		name    string
		signals heuristic.Signals
		want    taxonomy.DocType
		ok      bool
	}{
		{"text", heuristic.Signals{TextCoverage: 0.9, AvgCharsPerPage: 1500, Pages: 4}, taxonomy.Text, true},
		{"text at thresholds", heuristic.Signals{TextCoverage: 0.5, AvgCharsPerPage: 200, Pages: 1}, taxonomy.Text, true},
		{"sparse text", heuristic.Signals{TextCoverage: 0.9, AvgCharsPerPage: 40, Pages: 3}, taxonomy.Mixed, true},
		{"scanned", heuristic.Signals{TextCoverage: 0.05, AvgCharsPerPage: 2, Pages: 10}, taxonomy.Image, true},
		{"scanned boundary is mixed", heuristic.Signals{TextCoverage: 0.10, Pages: 10}, taxonomy.Mixed, true},
		{"no pages", heuristic.Signals{TextCoverage: 1}, "", false},
		{"nan", heuristic.Signals{TextCoverage: math.NaN(), Pages: 2}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Classify(tt.signals)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c := heuristic.New(heuristic.Thresholds{MinCharsPerPage: 50})
	th := c.Thresholds()
	assert.Equal(t, 0.50, th.TextCoverageText)
	assert.Equal(t, 0.10, th.TextCoverageScanned)
	assert.Equal(t, 50.0, th.MinCharsPerPage)
}

func TestParseReadiness(t *testing.T) {
	for in, want := range map[string]taxonomy.DocType{
		"Text-based": taxonomy.Text,
		"Scanned":    taxonomy.Image,
		" mixed ":    taxonomy.Mixed,
		"image":      taxonomy.Image,
	} {
		got, ok := heuristic.ParseReadiness(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "Unknown", "TEXT_PDF"} {
		_, ok := heuristic.ParseReadiness(in)
		assert.False(t, ok, in)
	}
}
