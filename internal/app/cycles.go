package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/logger"
)

// CycleSpec describes a new evaluation cycle. Empty Roles means every rater role.
type CycleSpec struct {
	TenantID        string
	Name            string
	Roles           []model.RaterRole
	MinSubordinates int
	CloseDate       time.Time
}

// CreateCycle opens a cycle in draft.
func (s *Service) CreateCycle(ctx context.Context, spec CycleSpec) (*model.Cycle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.TenantID) == "" {
		return nil, model.Invalid("tenant_id", nil, "required")
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, model.Invalid("name", nil, "required")
	}
	if spec.MinSubordinates < 0 {
		return nil, model.Invalid("min_subordinates", spec.MinSubordinates, "must not be negative")
	}
	roles := make([]model.RaterRole, 0, len(spec.Roles))
	seen := make(map[model.RaterRole]bool, len(spec.Roles))
	for _, r := range spec.Roles {
		if !r.Valid() {
			return nil, model.Invalid("roles", r, "unknown rater role")
		}
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	if _, err := s.policy(ctx, spec.TenantID); err != nil {
		return nil, err
	}

	now := s.now()
	c := &model.Cycle{
		ID:              s.newID(),
		TenantID:        spec.TenantID,
		Name:            strings.TrimSpace(spec.Name),
		Status:          model.CycleDraft,
		Roles:           roles,
		MinSubordinates: spec.MinSubordinates,
		CloseDate:       spec.CloseDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.update(ctx, "create_cycle", func(tx repository.Tx) error {
		return tx.CreateCycle(c)
	}); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "cycle created",
		logger.String("tenant", c.TenantID),
		logger.String("cycle", c.ID),
		logger.String("name", c.Name))
	return c, nil
}

// Cycle returns one cycle.
func (s *Service) Cycle(ctx context.Context, tenantID, cycleID string) (*model.Cycle, error) {
	var c *model.Cycle
	err := s.view(ctx, func(tx repository.Tx) error {
		var err error
		c, err = cycleOf(tx, tenantID, cycleID)
		return err
	})
	return c, err
}

// AdvanceCycle moves the cycle exactly one step forward to status. A cycle
// with open calibration sessions cannot be completed.
func (s *Service) AdvanceCycle(ctx context.Context, tenantID, cycleID string, status model.CycleStatus) (*model.Cycle, error) {
	var c *model.Cycle
	err := s.update(ctx, "advance_cycle", func(tx repository.Tx) error {
		var err error
		c, err = cycleOf(tx, tenantID, cycleID)
		if err != nil {
			return err
		}
		next, ok := c.Status.Next()
		if !ok || next != status {
			return model.Conflict("cycle", c.ID, string(c.Status), "advance to "+string(status), "cycles move one step forward at a time")
		}
		if status == model.CycleCompleted {
			open, err := tx.OpenSessions(c.ID)
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return model.Conflict("cycle", c.ID, string(c.Status), "advance to "+string(status), "calibration session "+open[0].ID+" is still open")
			}
		}
		c.Status = status
		c.UpdatedAt = s.now()
		return tx.UpdateCycle(c)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "cycle advanced",
		logger.String("cycle", c.ID),
		logger.String("status", string(c.Status)))
	return c, nil
}

// EnrollEmployees creates one pending rating per employee.
func (s *Service) EnrollEmployees(ctx context.Context, tenantID, cycleID string, employees []model.Employee) ([]*model.Rating, error) {
	if len(employees) == 0 {
		return nil, model.Invalid("employees", nil, "at least one employee is required")
	}
	for i, e := range employees {
		if strings.TrimSpace(e.ID) == "" {
			return nil, model.Invalid("employees", i, "employee id is required")
		}
	}
	out := make([]*model.Rating, 0, len(employees))
	err := s.update(ctx, "enroll", func(tx repository.Tx) error {
		if _, err := writableCycle(tx, tenantID, cycleID, "enroll"); err != nil {
			return err
		}
		now := s.now()
		for _, e := range employees {
			r := &model.Rating{
				ID:              s.newID(),
				TenantID:        tenantID,
				CycleID:         cycleID,
				EmployeeID:      strings.TrimSpace(e.ID),
				EmployeeName:    e.Name,
				Department:      e.Department,
				ManagerID:       e.ManagerID,
				NineBoxPosition: model.PositionUnclassified,
				Version:         1,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.CreateRating(r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "employees enrolled",
		logger.String("cycle", cycleID),
		logger.Int("count", len(out)))
	return out, nil
}

// RecordAssignment stores an evaluation assignment, replacing an earlier
// version with the same id. Scores are not recalculated until asked.
func (s *Service) RecordAssignment(ctx context.Context, tenantID string, a model.EvaluationAssignment) (*model.EvaluationAssignment, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if strings.TrimSpace(a.RaterID) == "" {
		return nil, model.Invalid("rater_id", nil, "required")
	}
	if !a.Role.Valid() {
		return nil, model.Invalid("role", a.Role, "unknown rater role")
	}
	switch a.Status {
	case model.AssignmentCompleted:
		if a.CompletedAt == nil {
			now := s.now()
			a.CompletedAt = &now
		}
	case model.AssignmentPending, model.AssignmentDeclined:
		a.CompletedAt = nil
	default:
		return nil, model.Invalid("status", a.Status, "must be pending, completed or declined")
	}

	err := s.update(ctx, "record_assignment", func(tx repository.Tx) error {
		c, err := writableCycle(tx, tenantID, a.CycleID, "record_assignment")
		if err != nil {
			return err
		}
		if !c.Participates(a.Role) {
			return model.Invalid("role", a.Role, "role does not take part in cycle "+c.ID)
		}
		if _, err := tx.RatingByEmployee(c.ID, a.EmployeeID); errors.Is(err, model.ErrNotFound) {
			return model.Invalid("employee_id", a.EmployeeID, "employee is not enrolled in cycle "+c.ID)
		} else if err != nil {
			return err
		}
		if err := sameOwner(tx, tenantID, &a); err != nil {
			return err
		}
		return tx.UpsertAssignment(&a)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "assignment recorded",
		logger.String("assignment", a.ID),
		logger.String("employee", a.EmployeeID),
		logger.String("role", string(a.Role)),
		logger.String("status", string(a.Status)))
	return &a, nil
}

// sameOwner lets an upsert replace a stored assignment only when it stays on
// the same cycle, employee and role. Another tenant's id reads as not found.
func sameOwner(tx repository.Tx, tenantID string, a *model.EvaluationAssignment) error {
	prev, err := tx.Assignment(a.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev.CycleID != a.CycleID {
		if _, err := cycleOf(tx, tenantID, prev.CycleID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NotFound("assignment", a.ID)
			}
			return err
		}
		return model.Integrity("assignment", a.ID, "belongs to cycle "+prev.CycleID)
	}
	if prev.EmployeeID != a.EmployeeID || prev.Role != a.Role {
		return model.Integrity("assignment", a.ID, "employee and role of a recorded assignment cannot change")
	}
	return nil
}
