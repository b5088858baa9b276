package media

import "errors"

// ErrNotFound is returned when a catalog has no entry for an id, or when a
// lookup yields nothing usable.
var ErrNotFound = errors.New("not found")
