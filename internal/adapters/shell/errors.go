package shell

import "errors"

// Sentinel kinds for command errors.
var (
	ErrSpawn        = errors.New("command spawn failed")
	ErrEmptyCommand = errors.New("empty command")
)
