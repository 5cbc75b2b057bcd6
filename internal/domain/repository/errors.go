package repository

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrNothingToCompact is returned for a window without snapshots. It is not a failure.
	ErrNothingToCompact = errors.New("nothing to compact")
)
