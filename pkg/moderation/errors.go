package moderation

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the engine wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrNotFound indicates a missing canonical record or proposal
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state conflict
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates an ownership or role violation
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest indicates an invalid payload or unrecognized code
	ErrBadRequest = errors.New("bad request")
)

// Refinements of the taxonomy.
var (
	// ErrSlugTaken indicates the slug is held by a canonical record or a pending proposal
	ErrSlugTaken = fmt.Errorf("%w: slug already in use", ErrConflict)

	// ErrPendingExists indicates another pending proposal already targets the record
	ErrPendingExists = fmt.Errorf("%w: a pending proposal already targets this record", ErrConflict)

	// ErrAlreadyDecided indicates the proposal is in a terminal state
	ErrAlreadyDecided = fmt.Errorf("%w: proposal already decided", ErrConflict)

	// ErrInvalidCode indicates an unrecognized auth or action code
	ErrInvalidCode = fmt.Errorf("%w: invalid code", ErrBadRequest)

	// ErrAssetRejected indicates an upload failed type or size validation
	ErrAssetRejected = fmt.Errorf("%w: asset rejected", ErrBadRequest)
)

// ProposalError represents an error related to a proposal operation
type ProposalError struct {
	Kind Kind
	ID   int64
	Op   string
	Err  error
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("%s proposal operation %s failed for proposal %d: %v", e.Kind, e.Op, e.ID, e.Err)
}

func (e *ProposalError) Unwrap() error {
	return e.Err
}

// RecordError represents an error related to a canonical record operation
type RecordError struct {
	Kind Kind
	ID   int64
	Op   string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation %s failed for record %d: %v", e.Kind, e.Op, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// AssetError represents an error related to an asset store operation
type AssetError struct {
	Path string
	Op   string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
