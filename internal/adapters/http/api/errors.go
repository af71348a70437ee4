package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrMissingTenant = errors.New("missing X-Tenant-ID header")
)
