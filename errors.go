package relstate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks requests rejected before any I/O.
	ErrInvalidInput = errors.New("relstate: invalid input")
	// ErrSelfEdge is returned when an identity tries to follow or block itself.
	ErrSelfEdge = fmt.Errorf("%w: cannot relate an identity to itself", ErrInvalidInput)
	// ErrMissingIdentity is returned when a required id is empty.
	ErrMissingIdentity = fmt.Errorf("%w: missing identity", ErrInvalidInput)

	// ErrTimeout is a bounded boundary call that did not settle in time.
	// It is retryable and never a denial by itself.
	ErrTimeout = errors.New("relstate: boundary call timed out")

	ErrFetch    = errors.New("relstate: fetch failed")
	ErrMutation = errors.New("relstate: mutation failed")
)

// FetchError wraps a failed read against an external collaborator.
// The cache is left untouched; the caller sees an unknown state and may retry.
type FetchError struct {
	Op  string
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %q: fetch failed: %v", e.Op, e.Key, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// Retryable reports whether the failure was a timeout.
func (e *FetchError) Retryable() bool { return errors.Is(e.Err, ErrTimeout) }

// MutationError is returned after an optimistic write was rolled back.
// Reason carries the collaborator's refusal message when it returned success=false.
type MutationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *MutationError) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("mutate %q: %s: %v", e.Key, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("mutate %q: %v", e.Key, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("mutate %q: %s", e.Key, e.Reason)
	default:
		return fmt.Sprintf("mutate %q: unknown error", e.Key)
	}
}

func (e *MutationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	errs = append(errs, ErrMutation)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the mutation failed by timing out.
func (e *MutationError) Retryable() bool { return errors.Is(e.Err, ErrTimeout) }
