package domain

import "errors"

// ErrNotFound is returned when a referenced entity does not exist.
// Link and match operations surface it to the caller instead of
// silently no-op'ing, which would let the spent aggregates drift.
var ErrNotFound = errors.New("not found")
