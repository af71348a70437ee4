// Package repository persists cycles, ratings, sessions, adjustments and
// artifacts behind a transactional store contract.
package repository

import (
	"context"

	"github.com/okian/perfcal/internal/domain/model"
)

// Store runs units of work. Every write of one operation happens inside a
// single WithinTx call so the operation commits or rolls back as a whole.
type Store interface {
	// WithinTx runs fn in a read-write transaction. A non-nil error from fn
	// rolls back every write fn made.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction. Writes return ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// RatingFilter selects ratings of one cycle. Empty fields do not filter.
type RatingFilter struct {
	CycleID    string
	Department string
	ManagerID  string
	IDs        []string
}

// Ranked is one row of a ranking view.
type Ranked struct {
	Rank         int     `json:"rank"`
	RatingID     string  `json:"rating_id"`
	EmployeeID   string  `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	Score        float64 `json:"score"`
}

// Tx is the set of reads and writes available inside a transaction. Reads
// return copies; callers write changes back explicitly. Lookups of missing
// rows return a *model.NotFoundError.
type Tx interface {
	CreateCycle(c *model.Cycle) error
	Cycle(id string) (*model.Cycle, error)
	UpdateCycle(c *model.Cycle) error

	// CreateRating fails with an IntegrityError when the employee is already
	// enrolled in the cycle.
	CreateRating(r *model.Rating) error
	// Rating reads a rating. LockRating also holds it until the transaction ends.
	Rating(id string) (*model.Rating, error)
	LockRating(id string) (*model.Rating, error)
	RatingByEmployee(cycleID, employeeID string) (*model.Rating, error)
	// UpdateRating writes r if its Version still matches the stored one and
	// bumps r.Version. A stale version is an IntegrityError.
	UpdateRating(r *model.Rating) error
	// Ratings lists matching ratings ordered by employee id.
	Ratings(f RatingFilter) ([]*model.Rating, error)
	// TopRatings ranks scored ratings of a cycle by effective score, highest
	// first, ties broken by employee id.
	TopRatings(cycleID string, n int) ([]Ranked, error)

	// Assignment reads one assignment by id. UpsertAssignment replaces by id
	// alone, so callers check the stored owner first.
	Assignment(id string) (*model.EvaluationAssignment, error)
	UpsertAssignment(a *model.EvaluationAssignment) error
	Assignments(cycleID, employeeID string) ([]model.EvaluationAssignment, error)

	CreateSession(s *model.CalibrationSession) error
	Session(id string) (*model.CalibrationSession, error)
	LockSession(id string) (*model.CalibrationSession, error)
	// UpdateSession has the same version contract as UpdateRating.
	UpdateSession(s *model.CalibrationSession) error
	// OpenSessions lists draft and in-progress sessions of a cycle.
	OpenSessions(cycleID string) ([]*model.CalibrationSession, error)

	// AppendAdjustment assigns the next sequence number of the session and
	// stores the entry.
	AppendAdjustment(a *model.CalibrationAdjustment) error
	Adjustment(id string) (*model.CalibrationAdjustment, error)
	// Adjustments lists a session's entries in sequence order.
	Adjustments(sessionID string) ([]model.CalibrationAdjustment, error)
	// RatingAdjusted reports whether any entry in any session references the rating.
	RatingAdjusted(ratingID string) (bool, error)

	// SaveArtifact fails with an IntegrityError when the session already has
	// an artifact with the same version.
	SaveArtifact(a *model.AuditArtifact) error
	Artifact(id string) (*model.AuditArtifact, error)
	// Artifacts lists a session's artifacts by version.
	Artifacts(sessionID string) ([]*model.AuditArtifact, error)
}

// rankEntries assigns dense ranks to rows already in ranking order; equal
// scores share a rank.
func rankEntries(rows []Ranked) {
	rank := 0
	for i := range rows {
		if i == 0 || rows[i].Score != rows[i-1].Score {
			rank++
		}
		rows[i].Rank = rank
	}
}
