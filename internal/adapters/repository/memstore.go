package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/metrics"
)

// MemStore keeps everything in process memory. Transactions are serialized
// by one lock and rolled back through an undo log; each cycle has a treap
// ranking index kept in step with rating writes.
type MemStore struct {
	mu     sync.RWMutex
	closed bool

	cycles      map[string]*model.Cycle
	ratings     map[string]*model.Rating
	enrolled    map[string]string // cycleID|employeeID -> ratingID
	assignments map[string]*model.EvaluationAssignment
	sessions    map[string]*model.CalibrationSession
	adjustments map[string]*model.CalibrationAdjustment
	bySession   map[string][]string // session -> adjustment ids in seq order
	artifacts   map[string]*model.AuditArtifact
	versions    map[string][]string // session -> artifact ids in version order
	rankings    map[string]*ranking // cycle -> index
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		cycles:      make(map[string]*model.Cycle),
		ratings:     make(map[string]*model.Rating),
		enrolled:    make(map[string]string),
		assignments: make(map[string]*model.EvaluationAssignment),
		sessions:    make(map[string]*model.CalibrationSession),
		adjustments: make(map[string]*model.CalibrationAdjustment),
		bySession:   make(map[string][]string),
		artifacts:   make(map[string]*model.AuditArtifact),
		versions:    make(map[string][]string),
		rankings:    make(map[string]*ranking),
	}
}

// WithinTx implements Store.
func (s *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		outcome := "commit"
		if err != nil {
			tx.rollback()
			outcome = "rollback"
		}
		metrics.RecordStoreTransaction("memory", outcome, time.Since(start).Seconds())
	}()
	return fn(tx)
}

// View implements Store.
func (s *MemStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTx{s: s, readOnly: true})
}

// Close implements Store. Later transactions fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Count returns the number of scored ratings indexed for a cycle.
func (s *MemStore) Count(cycleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.rankings[cycleID]; ok {
		return k.count()
	}
	return 0
}

type memTx struct {
	s        *MemStore
	readOnly bool
	undo     []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// remember records how to restore m[k] to its current state.
func remember[K comparable, V any](t *memTx, m map[K]V, k K) {
	prev, had := m[k]
	t.undo = append(t.undo, func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func (t *memTx) CreateCycle(c *model.Cycle) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.cycles[c.ID]; ok {
		return model.Integrity("cycle", c.ID, "already exists")
	}
	remember(t, t.s.cycles, c.ID)
	t.s.cycles[c.ID] = cloneCycle(c)
	return nil
}

func (t *memTx) Cycle(id string) (*model.Cycle, error) {
	c, ok := t.s.cycles[id]
	if !ok {
		return nil, model.NotFound("cycle", id)
	}
	return cloneCycle(c), nil
}

func (t *memTx) UpdateCycle(c *model.Cycle) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.cycles[c.ID]; !ok {
		return model.NotFound("cycle", c.ID)
	}
	remember(t, t.s.cycles, c.ID)
	t.s.cycles[c.ID] = cloneCycle(c)
	return nil
}

func enrollKey(cycleID, employeeID string) string { return cycleID + "|" + employeeID }

func (t *memTx) CreateRating(r *model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := enrollKey(r.CycleID, r.EmployeeID)
	if _, ok := t.s.enrolled[key]; ok {
		return model.Integrity("rating", r.ID, fmt.Sprintf("employee %s already enrolled in cycle %s", r.EmployeeID, r.CycleID))
	}
	if _, ok := t.s.ratings[r.ID]; ok {
		return model.Integrity("rating", r.ID, "already exists")
	}
	remember(t, t.s.enrolled, key)
	remember(t, t.s.ratings, r.ID)
	t.s.enrolled[key] = r.ID
	t.s.ratings[r.ID] = r.Clone()
	t.index(r)
	return nil
}

func (t *memTx) Rating(id string) (*model.Rating, error) {
	r, ok := t.s.ratings[id]
	if !ok {
		return nil, model.NotFound("rating", id)
	}
	return r.Clone(), nil
}

// LockRating is Rating: the store lock already serializes transactions.
func (t *memTx) LockRating(id string) (*model.Rating, error) { return t.Rating(id) }

func (t *memTx) RatingByEmployee(cycleID, employeeID string) (*model.Rating, error) {
	id, ok := t.s.enrolled[enrollKey(cycleID, employeeID)]
	if !ok {
		return nil, model.NotFound("rating", enrollKey(cycleID, employeeID))
	}
	return t.Rating(id)
}

func (t *memTx) UpdateRating(r *model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.s.ratings[r.ID]
	if !ok {
		return model.NotFound("rating", r.ID)
	}
	if cur.Version != r.Version {
		return model.Integrity("rating", r.ID, fmt.Sprintf("stale version %d, stored %d", r.Version, cur.Version))
	}
	r.Version++
	remember(t, t.s.ratings, r.ID)
	t.s.ratings[r.ID] = r.Clone()
	t.index(r)
	return nil
}

// index keeps the cycle's ranking in step with r.
func (t *memTx) index(r *model.Rating) {
	k, ok := t.s.rankings[r.CycleID]
	if !ok {
		k = newRanking()
		t.s.rankings[r.CycleID] = k
	}
	id := r.ID
	prev, had := k.byID[id]
	k.put(id, r.EmployeeID, r.EmployeeName, r.EffectiveScore())
	t.undo = append(t.undo, func() {
		k.remove(id)
		if had {
			score := toFloat(prev.key.score)
			k.put(id, prev.key.employeeID, prev.name, &score)
		}
	})
}

func (t *memTx) Ratings(f RatingFilter) ([]*model.Rating, error) {
	var ids map[string]bool
	if len(f.IDs) > 0 {
		ids = make(map[string]bool, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = true
		}
	}
	out := make([]*model.Rating, 0)
	for _, r := range t.s.ratings {
		switch {
		case f.CycleID != "" && r.CycleID != f.CycleID:
		case f.Department != "" && r.Department != f.Department:
		case f.ManagerID != "" && r.ManagerID != f.ManagerID:
		case ids != nil && !ids[r.ID]:
		default:
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) TopRatings(cycleID string, n int) ([]Ranked, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	k, ok := t.s.rankings[cycleID]
	if !ok {
		return []Ranked{}, nil
	}
	return k.top(n), nil
}

func (t *memTx) Assignment(id string) (*model.EvaluationAssignment, error) {
	a, ok := t.s.assignments[id]
	if !ok {
		return nil, model.NotFound("assignment", id)
	}
	return cloneAssignment(a), nil
}

func (t *memTx) UpsertAssignment(a *model.EvaluationAssignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	remember(t, t.s.assignments, a.ID)
	t.s.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (t *memTx) Assignments(cycleID, employeeID string) ([]model.EvaluationAssignment, error) {
	out := make([]model.EvaluationAssignment, 0)
	for _, a := range t.s.assignments {
		if a.CycleID == cycleID && a.EmployeeID == employeeID {
			out = append(out, *cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateSession(s *model.CalibrationSession) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.sessions[s.ID]; ok {
		return model.Integrity("session", s.ID, "already exists")
	}
	remember(t, t.s.sessions, s.ID)
	t.s.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) Session(id string) (*model.CalibrationSession, error) {
	s, ok := t.s.sessions[id]
	if !ok {
		return nil, model.NotFound("session", id)
	}
	return s.Clone(), nil
}

// LockSession is Session: the store lock already serializes transactions.
func (t *memTx) LockSession(id string) (*model.CalibrationSession, error) { return t.Session(id) }

func (t *memTx) UpdateSession(s *model.CalibrationSession) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.s.sessions[s.ID]
	if !ok {
		return model.NotFound("session", s.ID)
	}
	if cur.Version != s.Version {
		return model.Integrity("session", s.ID, fmt.Sprintf("stale version %d, stored %d", s.Version, cur.Version))
	}
	s.Version++
	remember(t, t.s.sessions, s.ID)
	t.s.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) OpenSessions(cycleID string) ([]*model.CalibrationSession, error) {
	out := make([]*model.CalibrationSession, 0)
	for _, s := range t.s.sessions {
		if s.CycleID == cycleID && s.Status.Open() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) AppendAdjustment(a *model.CalibrationAdjustment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.adjustments[a.ID]; ok {
		return model.Integrity("adjustment", a.ID, "already exists")
	}
	ids := t.s.bySession[a.SessionID]
	a.Seq = len(ids) + 1
	remember(t, t.s.bySession, a.SessionID)
	remember(t, t.s.adjustments, a.ID)
	t.s.bySession[a.SessionID] = append(slices.Clip(ids), a.ID)
	t.s.adjustments[a.ID] = cloneAdjustment(a)
	return nil
}

func (t *memTx) Adjustment(id string) (*model.CalibrationAdjustment, error) {
	a, ok := t.s.adjustments[id]
	if !ok {
		return nil, model.NotFound("adjustment", id)
	}
	return cloneAdjustment(a), nil
}

func (t *memTx) Adjustments(sessionID string) ([]model.CalibrationAdjustment, error) {
	ids := t.s.bySession[sessionID]
	out := make([]model.CalibrationAdjustment, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneAdjustment(t.s.adjustments[id]))
	}
	return out, nil
}

func (t *memTx) RatingAdjusted(ratingID string) (bool, error) {
	for _, a := range t.s.adjustments {
		if a.RatingID == ratingID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SaveArtifact(a *model.AuditArtifact) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.artifacts[a.ID]; ok {
		return model.Integrity("artifact", a.ID, "already exists")
	}
	ids := t.s.versions[a.SessionID]
	for _, id := range ids {
		if t.s.artifacts[id].Version == a.Version {
			return model.Integrity("artifact", a.ID, fmt.Sprintf("version %d already exists for session %s", a.Version, a.SessionID))
		}
	}
	remember(t, t.s.versions, a.SessionID)
	remember(t, t.s.artifacts, a.ID)
	t.s.versions[a.SessionID] = append(slices.Clip(ids), a.ID)
	t.s.artifacts[a.ID] = cloneArtifact(a)
	return nil
}

func (t *memTx) Artifact(id string) (*model.AuditArtifact, error) {
	a, ok := t.s.artifacts[id]
	if !ok {
		return nil, model.NotFound("artifact", id)
	}
	return cloneArtifact(a), nil
}

func (t *memTx) Artifacts(sessionID string) ([]*model.AuditArtifact, error) {
	out := make([]*model.AuditArtifact, 0, len(t.s.versions[sessionID]))
	for _, id := range t.s.versions[sessionID] {
		out = append(out, cloneArtifact(t.s.artifacts[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func cloneCycle(c *model.Cycle) *model.Cycle {
	cp := *c
	cp.Roles = slices.Clone(c.Roles)
	return &cp
}

func cloneAssignment(a *model.EvaluationAssignment) *model.EvaluationAssignment {
	cp := *a
	cp.Responses = slices.Clone(a.Responses)
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func cloneAdjustment(a *model.CalibrationAdjustment) *model.CalibrationAdjustment {
	cp := *a
	cp.OriginalScore = copyFloat(a.OriginalScore)
	cp.FinalScore = copyFloat(a.FinalScore)
	return &cp
}

func cloneArtifact(a *model.AuditArtifact) *model.AuditArtifact {
	cp := *a
	cp.Rows = slices.Clone(a.Rows)
	cp.Panelists = slices.Clone(a.Panelists)
	return &cp
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
