package service

import "errors"

// Sentinel errors for the service lifecycle.
var (
	ErrNoGestureSet  = errors.New("no gesture set configured")
	ErrNoFrameSource = errors.New("no frame source configured")
	ErrNoRunner      = errors.New("no command runner configured")
	ErrNotStarted    = errors.New("service not started")
	ErrSourceClosed  = errors.New("frame source closed")
)
