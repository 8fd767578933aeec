package models

import "errors"

// Sentinel errors for the two caller-error categories. Wrap with fmt.Errorf
// and %w so callers can classify with errors.Is while keeping a descriptive
// reason. Neither indicates a transient condition; requests are not retried.
var (
	// ErrNotFound marks lookups of unknown sessions or items.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks malformed requests: dimension mismatches,
	// duplicate ids, feedback rounds without a prior iteration, etc.
	ErrInvalidArgument = errors.New("invalid argument")
)
