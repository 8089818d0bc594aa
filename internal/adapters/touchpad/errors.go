package touchpad

import "errors"

// Sentinel kinds for touchpad errors.
var (
	ErrNoTouchpad   = errors.New("no touchpad found")
	ErrNotTouchpad  = errors.New("device is not a multitouch touchpad")
	ErrInvalidRange = errors.New("invalid axis range")
)
