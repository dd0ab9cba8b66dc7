package idempotency

import "errors"

var (
	// ErrNotFound is returned by a Store when no entry exists for a key.
	ErrNotFound = errors.New("cached response not found")

	// ErrMalformedSnapshot is returned when stored bytes cannot be decoded
	// into a response snapshot.
	ErrMalformedSnapshot = errors.New("malformed response snapshot")
)
