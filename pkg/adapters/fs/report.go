package fs

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pdfledger/pkg/core"
)

// Encoder writes a report value in one format.
type Encoder interface {
	Encode(w io.Writer, v any) error
}

// JSONEncoder writes indented JSON.
type JSONEncoder struct{}

func (JSONEncoder) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAMLEncoder writes YAML with two-space indentation.
type YAMLEncoder struct{}

func (YAMLEncoder) Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// DefaultEncoders maps report file extensions to encoders.
func DefaultEncoders() map[string]Encoder {
	return map[string]Encoder{
		".json": JSONEncoder{},
		".yaml": YAMLEncoder{},
		".yml":  YAMLEncoder{},
	}
}

// EncoderFor returns the encoder for a format name or file extension.
func EncoderFor(format string) (Encoder, error) {
	ext := strings.ToLower(format)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	enc, ok := DefaultEncoders()[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	return enc, nil
}

// WriteReport writes v to path atomically, in the format named by the
// file extension.
func WriteReport(path string, v any) error {
	enc, err := EncoderFor(filepath.Ext(path))
	if err != nil {
		return err
	}
	return WriteAtomic(path, 0644, func(w io.Writer) error {
		return enc.Encode(w, v)
	})
}

// DecisionColumns is the header of a decisions table.
var DecisionColumns = []string{"rel_path", "doc_type", "provenance", "confidence", "model_id"}

// WriteDecisions writes decisions as a CSV table to path atomically.
func WriteDecisions(path string, decisions []core.Decision) error {
	return WriteAtomic(path, 0644, func(w io.Writer) error {
		return EncodeDecisions(w, decisions)
	})
}

// EncodeDecisions writes decisions as CSV to w.
func EncodeDecisions(w io.Writer, decisions []core.Decision) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DecisionColumns); err != nil {
		return err
	}
	for _, d := range decisions {
		conf := ""
		if d.Confidence != nil {
			conf = strconv.FormatFloat(*d.Confidence, 'f', -1, 64)
		}
		if err := cw.Write([]string{string(d.Key), string(d.Class), string(d.Provenance), conf, d.ModelID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
