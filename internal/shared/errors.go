package shared

import "errors"

// ErrIdempotencyConflict is returned when an Idempotency-Key was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")
