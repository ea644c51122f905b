package ledger

import (
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/fusion"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	RepositoryType string                     `json:"repository_type"`
	Repository     any                        `json:"repository,omitempty"`
	ModelRegistry  string                     `json:"model_registry,omitempty"`
	LastReconcile  *core.ReconciliationReport `json:"last_reconcile,omitempty"`
	LastDecide     *fusion.Summary            `json:"last_decide,omitempty"`
	LastWrite      *time.Time                 `json:"last_write,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := ServiceState{
		RepositoryType: "unknown",
		LastReconcile:  s.lastReport,
		LastDecide:     s.lastDecide,
		LastWrite:      s.lastWrite,
	}
	if comp, ok := s.repo.(introspection.Component); ok {
		state.RepositoryType = comp.ComponentType()
	}
	if intro, ok := s.repo.(introspection.Introspectable); ok {
		state.Repository = intro.State()
	}
	if s.registry != nil {
		state.ModelRegistry = s.registry.Dir()
	}
	return state
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "ledger"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
