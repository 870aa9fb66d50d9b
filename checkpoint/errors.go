package checkpoint

import "errors"

var (
	// ErrFormat reports snapshot bytes that do not parse: wrong magic or
	// version, truncated fields, or trailing garbage.
	ErrFormat = errors.New("checkpoint: malformed snapshot")

	// ErrIntegrity reports a snapshot whose bytes do not hash to the
	// expected CID.
	ErrIntegrity = errors.New("checkpoint: content identifier mismatch")

	// ErrMismatch reports an attempt to merge snapshots of different
	// searches.
	ErrMismatch = errors.New("checkpoint: snapshots describe different searches")
)
