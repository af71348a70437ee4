package repository

import "errors"

// Sentinel errors of the store layer.
var (
	ErrReadOnly      = errors.New("write in read-only transaction")
	ErrInvalidLimit  = errors.New("invalid ranking limit")
	ErrClosed        = errors.New("store is closed")
	ErrUnknownDriver = errors.New("unknown store driver")
)
