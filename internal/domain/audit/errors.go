package audit

import "errors"

var (
	// ErrUnknownFormat is returned for a render or parse format other than json or yaml.
	ErrUnknownFormat = errors.New("unknown artifact format")
	// ErrSessionNotClosed is returned when generating for a session that has not closed.
	ErrSessionNotClosed = errors.New("session is not closed")
)
