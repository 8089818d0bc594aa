package wayland

import "errors"

// Sentinel kinds for window tracker errors.
var (
	ErrNoDisplay        = errors.New("wayland display not configured")
	ErrInterfaceMissing = errors.New("compositor does not offer the foreign toplevel interface")
	ErrProtocol         = errors.New("wayland protocol error")
	ErrFinished         = errors.New("toplevel manager finished")
)
