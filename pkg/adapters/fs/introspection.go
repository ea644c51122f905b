package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path       string     `json:"path"`
	BackupDir  string     `json:"backup_dir"`
	Mapping    int        `json:"mapping_version"`
	ReadOnly   bool       `json:"read_only"`
	Versioning bool       `json:"versioning"`
	Loads      int        `json:"loads"`
	Saves      int        `json:"saves"`
	LastLoad   *time.Time `json:"last_load,omitempty"`
	LastSave   *time.Time `json:"last_save,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:       r.Path,
		BackupDir:  r.config.BackupDir,
		Mapping:    r.config.Mapping.Version,
		ReadOnly:   r.config.ReadOnly,
		Versioning: r.config.Versioning,
		Loads:      r.loads,
		Saves:      r.saves,
		LastLoad:   r.lastLoad,
		LastSave:   r.lastSave,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "csv-repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
