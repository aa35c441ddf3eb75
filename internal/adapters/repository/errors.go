package repository

import "errors"

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound    = errors.New("ranking not found")
	ErrDuplicate   = errors.New("item already ranked")
	ErrInvalidItem = errors.New("invalid ranking item")
)
