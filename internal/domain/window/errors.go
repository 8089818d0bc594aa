package window

import "errors"

// Sentinel kinds for window context errors.
var (
	ErrInvalidPattern = errors.New("invalid window pattern")
	ErrNilSet         = errors.New("nil gesture set")
)
