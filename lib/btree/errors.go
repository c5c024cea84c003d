package btree

import "errors"

var (
	// ErrConflict reports a write-write conflict: the key was modified
	// by a transaction the writing session cannot see. The caller must
	// roll back the transaction; retrying under a fresh one is the only
	// recovery. State is never corrupted by a conflict.
	ErrConflict = errors.New("btree: write conflict")

	// ErrRestart reports that an optimistic positioning check failed:
	// the structure changed between the search and the publish attempt.
	// The cursor layer re-runs the search and retries; the signal is
	// never surfaced to the end user.
	ErrRestart = errors.New("btree: restart operation")

	// ErrNotFound reports that a key required to exist does not.
	ErrNotFound = errors.New("btree: key not found")
)
