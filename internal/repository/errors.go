package repository

import "errors"

var (
	// ErrVersionConflict signals a compare-and-swap on a versioned row lost to a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")
	// ErrStaleRankSet signals a rank set older than the one already stored for its class and term.
	ErrStaleRankSet = errors.New("stale rank set")
)
