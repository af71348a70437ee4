package repository

// GormOption applies a configuration option to the GormStore.
type GormOption func(*GormStore)

// WithAutoMigrate toggles schema migration on construction. Enabled by default.
func WithAutoMigrate(enabled bool) GormOption {
	return func(s *GormStore) {
		s.autoMigrate = enabled
	}
}
