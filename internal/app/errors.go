package service

import "errors"

// Sentinel errors returned by Service operations.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrBusy            = errors.New("reclassification queue full")
)
