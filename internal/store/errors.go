package store

import "errors"

var (
	// ErrStoreUnavailable means the database could not be opened or its
	// schema could not be ensured. The app cannot run without it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionAborted means a write did not commit. Nothing from the
	// write is visible afterwards and the caller may retry.
	ErrTransactionAborted = errors.New("transaction aborted")
)
