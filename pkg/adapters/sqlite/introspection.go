package sqlite

import "github.com/aretw0/introspection"

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path     string `json:"path"`
	Open     bool   `json:"open"`
	ReadOnly bool   `json:"read_only"`
	Schema   int    `json:"schema_version"`
	Saves    int    `json:"saves"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RepositoryState{
		Path:     r.Path,
		Open:     r.db != nil,
		ReadOnly: r.config.ReadOnly,
		Schema:   schemaVersion,
		Saves:    r.saves,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "sqlite-repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
