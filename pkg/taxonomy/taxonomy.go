// Package taxonomy defines the fixed document-type taxonomy and the
// versioned table used to rewrite historical label values onto it.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
)

// DocType is one of the four document classes a PDF can be assigned.
type DocType string

const (
	Text        DocType = "TEXT"
	ImageOfText DocType = "IMAGE_OF_TEXT"
	Image       DocType = "IMAGE"
	Mixed       DocType = "MIXED"
)

// All returns the taxonomy in its canonical order.
func All() []DocType {
	return []DocType{Text, ImageOfText, Image, Mixed}
}

// Valid reports whether t is one of the canonical values.
func (t DocType) Valid() bool {
	switch t {
	case Text, ImageOfText, Image, Mixed:
		return true
	}
	return false
}

func (t DocType) String() string {
	return string(t)
}

// Parse accepts canonical values only (case-insensitive, surrounding
// whitespace ignored). Legacy values are rejected; use Mapping.Normalize
// for human-entered labels.
func Parse(s string) (DocType, error) {
	t := DocType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

// Mapping rewrites raw label values onto the canonical taxonomy.
// Keys are upper-cased, trimmed raw values.
type Mapping struct {
	Version int
	Entries map[string]DocType
}

// Legacy is the mapping used by the first labeling campaign, where the
// "_PDF" suffixed names were written and TEXT_PDF meant a scanned page of
// text rather than a born-digital document.
var Legacy = Mapping{
	Version: 1,
	Entries: map[string]DocType{
		"TEXT_PDF":          ImageOfText,
		"IMAGE_OF_TEXT_PDF": ImageOfText,
		"IMAGE_PDF":         Image,
		"MIXED_PDF":         Mixed,
	},
}

// Current is the mapping consulted whenever labels are loaded or written.
var Current = Mapping{
	Version: 2,
	Entries: merge(Legacy.Entries, map[string]DocType{
		string(Text):        Text,
		string(ImageOfText): ImageOfText,
		string(Image):       Image,
		string(Mixed):       Mixed,
	}),
}

// Normalize maps raw onto the taxonomy. The boolean is false when raw is
// not a known historical or canonical value.
func (m Mapping) Normalize(raw string) (DocType, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	t, ok := m.Entries[key]
	return t, ok
}

// Accepted lists every raw value the mapping understands, sorted.
func (m Mapping) Accepted() []string {
	values := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		values = append(values, k)
	}
	sort.Strings(values)
	return values
}

func merge(maps ...map[string]DocType) map[string]DocType {
	out := make(map[string]DocType)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
