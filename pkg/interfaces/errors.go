package interfaces

import (
	"errors"
	"fmt"

	"handraise/pkg/types"
)

// Store contract errors shared by every DocumentStore implementation. The
// first two wrap the domain categories so callers can match either.
var (
	ErrDocumentNotFound = fmt.Errorf("document %w", types.ErrNotFound)
	ErrDocumentExists   = fmt.Errorf("document %w", types.ErrAlreadyExists)
	ErrInvalidPath      = errors.New("invalid document path")
	ErrStoreClosed      = fmt.Errorf("%w: closed", types.ErrStoreUnavailable)
)
