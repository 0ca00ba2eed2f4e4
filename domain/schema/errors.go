package schema

import "errors"

// Error kinds surfaced by the catalog and its stores. Callers match with
// errors.Is; everything else wraps one of these.
var (
	// ErrValidation marks malformed input rejected before touching storage.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup miss. Get and query misses return absent
	// results instead, so this surfaces only where an id was required.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks an upstream failure (embedding service, source
	// catalog) that the caller may retry.
	ErrTransient = errors.New("transient upstream failure")

	// ErrCorrupt marks an unreadable on-disk store or index file.
	ErrCorrupt = errors.New("storage corrupt")
)
