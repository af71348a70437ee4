package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrIdempotencyInFlight is returned when a request reuses the key of one still being applied.
	ErrIdempotencyInFlight = errors.New("request with this idempotency key is in progress")
)
