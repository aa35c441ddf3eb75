package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrStopped   = errors.New("queue stopped")
	ErrQueueFull = errors.New("queue full")
)
