// Package identity derives the identifiers used to track a cataloged
// document across inventory reruns.
//
// A StableKey is the normalized relative path of a document and is the only
// identifier labels may be attached to. A ContentKey is derived from the
// content hash (or from path, size and modification time when no hash was
// computed) and is expected to change whenever the inventory is re-hashed.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ContainerSeparator joins an archive path and the path of an entry inside it.
const ContainerSeparator = "::"

// ErrInvalidIdentity is returned when a path cannot be normalized into a StableKey.
var ErrInvalidIdentity = errors.New("invalid identity")

// StableKey is the normalized relative path of a document.
type StableKey string

func (k StableKey) String() string {
	return string(k)
}

// Container returns the archive part of an archive-entry key, or "".
func (k StableKey) Container() string {
	if before, _, found := strings.Cut(string(k), ContainerSeparator); found {
		return before
	}
	return ""
}

// ContentKey identifies a document by content. It is volatile across reruns.
type ContentKey string

func (k ContentKey) String() string {
	return string(k)
}

// Entry is one cataloged item of an inventory snapshot.
type Entry struct {
	// RelPath is the path relative to the dataset root. For archive members
	// it may already use the container::inner syntax.
	RelPath string
	// Container is the archive holding the entry, when RelPath is the inner path.
	Container   string
	Size        int64
	ModTime     time.Time
	ContentHash string
	// Extra carries inventory columns the core does not interpret.
	Extra map[string]string
}

// Path returns the full relative path, joining Container and RelPath when
// the entry lives inside an archive.
func (e Entry) Path() string {
	if strings.TrimSpace(e.Container) == "" {
		return e.RelPath
	}
	return e.Container + ContainerSeparator + e.RelPath
}

// Resolve computes the StableKey and ContentKey of an entry.
func Resolve(e Entry) (StableKey, ContentKey, error) {
	key, err := NormalizePath(e.Path())
	if err != nil {
		return "", "", err
	}
	return key, contentKey(key, e), nil
}

// NormalizePath normalizes a relative path into a StableKey.
//
// Separators are unified to "/", leading "./" and "/" are stripped, empty
// and "." segments are dropped and the result is NFC-normalized. Case is
// preserved. For archive members both sides of the first "::" are
// normalized independently.
func NormalizePath(p string) (StableKey, error) {
	value := strings.TrimSpace(p)
	if value == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidIdentity)
	}
	value = strings.ReplaceAll(value, "\\", "/")

	if container, inner, found := strings.Cut(value, ContainerSeparator); found {
		c, err := normalizeSegment(container)
		if err != nil {
			return "", fmt.Errorf("%w: %q: container %v", ErrInvalidIdentity, p, err)
		}
		i, err := normalizeSegment(inner)
		if err != nil {
			return "", fmt.Errorf("%w: %q: entry %v", ErrInvalidIdentity, p, err)
		}
		return StableKey(c + ContainerSeparator + i), nil
	}

	s, err := normalizeSegment(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidIdentity, p, err)
	}
	return StableKey(s), nil
}

// MustNormalize is NormalizePath for literals in tests and fixtures.
func MustNormalize(p string) StableKey {
	k, err := NormalizePath(p)
	if err != nil {
		panic(err)
	}
	return k
}

func normalizeSegment(value string) (string, error) {
	cleaned := norm.NFC.String(strings.TrimSpace(value))
	parts := strings.Split(cleaned, "/")
	kept := parts[:0]
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", errors.New("parent reference")
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return "", errors.New("empty path")
	}
	return strings.Join(kept, "/"), nil
}

// HashKey turns a recorded content hash into a ContentKey. Bare digests are
// taken as SHA-256. It returns "" for an empty hash.
func HashKey(hash string) ContentKey {
	h := strings.ToLower(strings.TrimSpace(hash))
	switch {
	case h == "":
		return ""
	case strings.Contains(h, ":"):
		return ContentKey(h)
	}
	return ContentKey("sha256:" + h)
}

func contentKey(key StableKey, e Entry) ContentKey {
	if k := HashKey(e.ContentHash); k != "" {
		return k
	}

	mtime := ""
	if !e.ModTime.IsZero() {
		mtime = e.ModTime.UTC().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256([]byte(string(key) + "|" + strconv.FormatInt(e.Size, 10) + "|" + mtime))
	return ContentKey("meta:" + hex.EncodeToString(sum[:]))
}

// LegacyDocIDs lists the document ids the first labeling tool may have
// recorded for e: the bare content hash when one is known, and
// "<rel_path>|<size>|<modified_time>" otherwise. The modification time was
// written in several layouts over time, so each plausible rendering is
// returned. Duplicates are removed.
func LegacyDocIDs(e Entry) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if h := strings.TrimSpace(e.ContentHash); h != "" {
		add(h)
		add(strings.ToLower(h))
	}

	paths := []string{strings.TrimSpace(e.RelPath)}
	if key, err := NormalizePath(e.Path()); err == nil {
		paths = append(paths, string(key))
	}
	size := strconv.FormatInt(e.Size, 10)
	for _, p := range paths {
		if p == "" {
			continue
		}
		for _, mt := range legacyTimes(e) {
			add(p + "|" + size + "|" + mt)
		}
	}
	return ids
}

// legacyTimes renders e.ModTime the ways an inventory may have stored it,
// starting with the recorded text.
func legacyTimes(e Entry) []string {
	var out []string
	if raw := strings.TrimSpace(e.Extra["modified_time"]); raw != "" {
		out = append(out, raw)
	}
	if e.ModTime.IsZero() {
		return append(out, "")
	}
	t := e.ModTime.UTC()
	base := t.Format("2006-01-02T15:04:05")
	if t.Nanosecond() != 0 {
		base += fmt.Sprintf(".%06d", t.Nanosecond()/1000)
	}
	return append(out,
		base+"+00:00",
		base,
		t.Format(time.RFC3339),
		t.Format(time.RFC3339Nano),
	)
}

// Resolved pairs an entry with its derived keys.
type Resolved struct {
	Entry   Entry
	Key     StableKey
	Content ContentKey
}

// Failure records an entry that could not be resolved.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// ResolveAll resolves every entry, skipping the ones that fail. Input order
// is preserved in both results.
func ResolveAll(entries []Entry) ([]Resolved, []Failure) {
	resolved := make([]Resolved, 0, len(entries))
	var failures []Failure
	for _, e := range entries {
		key, content, err := Resolve(e)
		if err != nil {
			failures = append(failures, Failure{Path: e.Path(), Err: err})
			continue
		}
		resolved = append(resolved, Resolved{Entry: e, Key: key, Content: content})
	}
	return resolved, failures
}
