package service

import (
	"time"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/ninebox"
	"github.com/okian/perfcal/internal/domain/policy"
	"github.com/okian/perfcal/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPolicies sets the tenant policy provider.
func WithPolicies(p policy.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.policies = p
		}
	}
}

// WithClassifier replaces the nine-box classifier.
func WithClassifier(c *ninebox.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the uuid based id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithWorkerCount sets how many employees a cycle recalculation processes at once.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithMaxRankingLimit caps the n accepted by Ranking.
func WithMaxRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRanking = n
		}
	}
}

// WithIdempotencySize sets the size of the idempotency key cache.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
	}
}

// WithVerificationBaseURL sets the prefix of artifact verification links.
func WithVerificationBaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.baseURL = url
		}
	}
}
