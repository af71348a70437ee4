// Package service orchestrates rating, calibration and audit operations.
// Every mutating operation runs inside one store transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/adapters/worker"
	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/dedupe"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/ninebox"
	"github.com/okian/perfcal/internal/domain/policy"
	"github.com/okian/perfcal/pkg/logger"
	"github.com/okian/perfcal/pkg/metrics"
)

// Service implements the operations behind the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	policies   policy.Provider
	classifier *ninebox.Classifier
	generator  *audit.Generator
	deduper    dedupe.Deduper
	pool       *worker.Pool

	// Configuration
	workerCount     int
	maxRanking      int
	idempotencySize int
	baseURL         string
	now             func() time.Time
	newID           func() string

	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		maxRanking:      1000,
		idempotencySize: 10000,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start wires the components that were not supplied as options.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.policies == nil {
		def, err := policy.NewStatic(policy.Default(), nil)
		if err != nil {
			return fmt.Errorf("default policy: %w", err)
		}
		s.policies = def
	}
	if s.classifier == nil {
		s.classifier = ninebox.New()
	}
	var genOpts []audit.Option
	if s.baseURL != "" {
		genOpts = append(genOpts, audit.WithBaseURL(s.baseURL))
	}
	s.generator = audit.New(genOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.idempotencySize))
	s.pool = worker.NewPool(
		worker.WithSize(s.workerCount),
		worker.WithName("recalculation"),
		worker.WithLogger(s.logger),
	)

	s.started = true
	s.logger.Info(ctx, "calibration service started",
		logger.Int("workers", s.workerCount),
		logger.Int("maxRanking", s.maxRanking),
		logger.Int("idempotencySize", s.idempotencySize),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "calibration service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// update runs fn in a write transaction and reports failures under op.
func (s *Service) update(ctx context.Context, op string, fn func(tx repository.Tx) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.WithinTx(ctx, fn); err != nil {
		s.fail(ctx, op, err)
		return err
	}
	return nil
}

func (s *Service) view(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.store.View(ctx, fn)
}

// fail logs and counts a failed operation. Caller mistakes are warnings.
func (s *Service) fail(ctx context.Context, op string, err error) {
	kind := errorType(err)
	metrics.RecordErrorByComponent("service", kind)
	if kind == "internal" {
		s.logger.Error(ctx, "operation failed", logger.String("op", op), logger.Error(err))
		return
	}
	s.logger.Warn(ctx, "operation rejected",
		logger.String("op", op),
		logger.String("kind", kind),
		logger.Error(err))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, model.ErrIntegrity):
		return "integrity"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrDataIncomplete):
		return "data_incomplete"
	}
	return "internal"
}

func (s *Service) policy(ctx context.Context, tenantID string) (policy.Policy, error) {
	p, err := s.policies.Policy(ctx, tenantID)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("policy for tenant %s: %w", tenantID, err)
	}
	return p, nil
}

// refresh recomputes the cached nine-box position of r.
func (s *Service) refresh(p policy.Policy, r *model.Rating) {
	r.NineBoxPosition = s.classifier.ClassifyRating(p, r)
	metrics.RecordClassification(string(r.NineBoxPosition))
}

// Entities of another tenant are reported as missing.

func cycleOf(tx repository.Tx, tenantID, id string) (*model.Cycle, error) {
	c, err := tx.Cycle(id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, model.NotFound("cycle", id)
	}
	return c, nil
}

// writableCycle rejects writes once the cycle is archived.
func writableCycle(tx repository.Tx, tenantID, id, op string) (*model.Cycle, error) {
	c, err := cycleOf(tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Archived() {
		return nil, model.Conflict("cycle", c.ID, string(c.Status), op, "archived cycles are read-only")
	}
	return c, nil
}

func ratingOf(tx repository.Tx, tenantID, id string, lock bool) (*model.Rating, error) {
	read := tx.Rating
	if lock {
		read = tx.LockRating
	}
	r, err := read(id)
	if err != nil {
		return nil, err
	}
	if r.TenantID != tenantID {
		return nil, model.NotFound("rating", id)
	}
	return r, nil
}

func sessionOf(tx repository.Tx, tenantID, id string, lock bool) (*model.CalibrationSession, error) {
	read := tx.Session
	if lock {
		read = tx.LockSession
	}
	sess, err := read(id)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != tenantID {
		return nil, model.NotFound("session", id)
	}
	return sess, nil
}
