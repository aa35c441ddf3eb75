package insertion

import "errors"

// Sentinel kinds for engine misuse.
var (
	ErrNotStarted      = errors.New("insertion session not started")
	ErrSessionComplete = errors.New("insertion session already complete")
	ErrInvalidChoice   = errors.New("winner is not part of the current comparison")
	ErrInvalidItem     = errors.New("invalid item")
	ErrDuplicateItem   = errors.New("item already ranked")
)
