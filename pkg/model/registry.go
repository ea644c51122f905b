package model

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/pointer"
)

const (
	// Latest selects the model the registry pointer names.
	Latest = "LATEST"
	// ArtifactFile is the artifact name inside a model directory.
	ArtifactFile = "model.json"
)

// Registry locates models under <outputs>/models/doc_type.
type Registry struct {
	root   string
	logger *slog.Logger
}

// NewRegistry returns a registry rooted at outputsRoot.
func NewRegistry(outputsRoot string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{root: outputsRoot, logger: logger}
}

// Dir returns the directory holding every model and the LATEST pointer.
func (r *Registry) Dir() string {
	return filepath.Join(r.root, "models", "doc_type")
}

// Resolve turns ref into an artifact path. ref may be "" or LATEST, a file,
// a model directory, or a model id under Dir. Every failure wraps
// core.ErrModelUnavailable.
func (r *Registry) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, Latest) {
		rec, err := pointer.Read(r.Dir())
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
		}
		dir := rec.Path
		if dir == "" {
			dir = filepath.Join("models", "doc_type", rec.ID)
		}
		return existing(filepath.Join(pointer.Record{Path: dir}.Resolve(r.root), ArtifactFile))
	}

	if info, err := os.Stat(ref); err == nil {
		if info.IsDir() {
			return existing(filepath.Join(ref, ArtifactFile))
		}
		return ref, nil
	}
	return existing(filepath.Join(r.Dir(), ref, ArtifactFile))
}

// Load resolves ref and loads the artifact. A missing model id in the file
// is filled from its directory name.
func (r *Registry) Load(ref string) (*Artifact, error) {
	path, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	a, err := Load(path)
	if err != nil {
		return nil, err
	}
	if a.ModelID == "" {
		a.ModelID = filepath.Base(filepath.Dir(path))
	}
	r.logger.Debug("model loaded", "ref", ref, "model_id", a.ModelID, "features", len(a.FeatureNames))
	return a, nil
}

func existing(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found", core.ErrModelUnavailable, path)
		}
		return "", fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}
	return path, nil
}
