package core

import (
	"errors"

	"github.com/aretw0/pdfledger/pkg/identity"
)

// Common errors.
var (
	ErrInvalidIdentity  = identity.ErrInvalidIdentity
	ErrLabelExists      = errors.New("label already exists")
	ErrUnknownLabel     = errors.New("unknown label value")
	ErrLabelNotFound    = errors.New("label not found")
	ErrStoreCorrupt     = errors.New("label store is corrupt")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrNoDecision       = errors.New("no provider produced a decision")
	ErrReadOnly         = errors.New("repository is in read-only mode")
)
