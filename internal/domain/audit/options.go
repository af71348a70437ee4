package audit

import "strings"

// Option configures a Generator.
type Option func(*Generator)

// WithBaseURL sets the prefix of every verification link. Trailing slashes are dropped.
func WithBaseURL(base string) Option {
	return func(g *Generator) {
		g.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTruncationMarker replaces the suffix appended to shortened justifications.
func WithTruncationMarker(marker string) Option {
	return func(g *Generator) {
		g.marker = marker
	}
}
