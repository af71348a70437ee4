package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/okian/perfcal/internal/domain/model"
)

type cycleRow struct {
	ID              string         `gorm:"primaryKey;column:cycle_id"`
	TenantID        string         `gorm:"not null;index;column:cycle_tenant_id"`
	Name            string         `gorm:"not null;column:cycle_name"`
	Status          string         `gorm:"not null;column:cycle_status"`
	Roles           datatypes.JSON `gorm:"column:cycle_roles"`
	MinSubordinates int            `gorm:"not null;default:0;column:cycle_min_subordinates"`
	CloseDate       time.Time      `gorm:"column:cycle_close_date"`
	CreatedAt       time.Time      `gorm:"column:cycle_created_at;autoCreateTime:false"`
	UpdatedAt       time.Time      `gorm:"column:cycle_updated_at;autoUpdateTime:false"`
}

func (cycleRow) TableName() string { return "cycles" }

type ratingRow struct {
	ID              string         `gorm:"primaryKey;column:rating_id"`
	TenantID        string         `gorm:"not null;index;column:rating_tenant_id"`
	CycleID         string         `gorm:"not null;uniqueIndex:uq_rating_cycle_employee;column:rating_cycle_id"`
	EmployeeID      string         `gorm:"not null;uniqueIndex:uq_rating_cycle_employee;column:rating_employee_id"`
	EmployeeName    string         `gorm:"column:rating_employee_name"`
	Department      string         `gorm:"index;column:rating_department"`
	ManagerID       string         `gorm:"index;column:rating_manager_id"`
	CalculatedScore *float64       `gorm:"column:rating_calculated_score"`
	CalculatedLevel string         `gorm:"column:rating_calculated_level"`
	RoleScores      datatypes.JSON `gorm:"column:rating_role_scores"`
	FinalScore      *float64       `gorm:"column:rating_final_score"`
	FinalLevel      string         `gorm:"column:rating_final_level"`
	Potential       datatypes.JSON `gorm:"column:rating_potential"`
	PotentialScore  *float64       `gorm:"column:rating_potential_score"`
	NineBoxPosition string         `gorm:"column:rating_nine_box_position"`
	Version         int            `gorm:"not null;default:0;column:rating_version"`
	CalculatedAt    *time.Time     `gorm:"column:rating_calculated_at"`
	CreatedAt       time.Time      `gorm:"column:rating_created_at;autoCreateTime:false"`
	UpdatedAt       time.Time      `gorm:"column:rating_updated_at;autoUpdateTime:false"`
}

func (ratingRow) TableName() string { return "ratings" }

type assignmentRow struct {
	ID          string         `gorm:"primaryKey;column:assignment_id"`
	CycleID     string         `gorm:"not null;index:idx_assignment_cycle_employee;column:assignment_cycle_id"`
	EmployeeID  string         `gorm:"not null;index:idx_assignment_cycle_employee;column:assignment_employee_id"`
	RaterID     string         `gorm:"not null;column:assignment_rater_id"`
	Role        string         `gorm:"not null;column:assignment_role"`
	Status      string         `gorm:"not null;column:assignment_status"`
	Responses   datatypes.JSON `gorm:"column:assignment_responses"`
	CompletedAt *time.Time     `gorm:"column:assignment_completed_at"`
}

func (assignmentRow) TableName() string { return "evaluation_assignments" }

type sessionRow struct {
	ID             string         `gorm:"primaryKey;column:session_id"`
	TenantID       string         `gorm:"not null;index;column:session_tenant_id"`
	CycleID        string         `gorm:"not null;index:idx_session_cycle_status;column:session_cycle_id"`
	Name           string         `gorm:"column:session_name"`
	Status         string         `gorm:"not null;index:idx_session_cycle_status;column:session_status"`
	FacilitatorID  string         `gorm:"not null;column:session_facilitator_id"`
	Panelists      datatypes.JSON `gorm:"column:session_panelists"`
	RatingIDs      datatypes.JSON `gorm:"column:session_rating_ids"`
	RequireSignOff bool           `gorm:"not null;default:false;column:session_require_sign_off"`
	Version        int            `gorm:"not null;default:0;column:session_version"`
	ScheduledAt    *time.Time     `gorm:"column:session_scheduled_at"`
	StartedAt      *time.Time     `gorm:"column:session_started_at"`
	ClosedAt       *time.Time     `gorm:"column:session_closed_at"`
	CancelledAt    *time.Time     `gorm:"column:session_cancelled_at"`
	CreatedAt      time.Time      `gorm:"column:session_created_at;autoCreateTime:false"`
	UpdatedAt      time.Time      `gorm:"column:session_updated_at;autoUpdateTime:false"`
}

func (sessionRow) TableName() string { return "calibration_sessions" }

type adjustmentRow struct {
	ID            string    `gorm:"primaryKey;column:adjustment_id"`
	SessionID     string    `gorm:"not null;uniqueIndex:uq_adjustment_session_seq;column:adjustment_session_id"`
	Seq           int       `gorm:"not null;uniqueIndex:uq_adjustment_session_seq;column:adjustment_seq"`
	Kind          string    `gorm:"not null;column:adjustment_kind"`
	RevertsID     string    `gorm:"column:adjustment_reverts_id"`
	RatingID      string    `gorm:"not null;index;column:adjustment_rating_id"`
	EmployeeID    string    `gorm:"column:adjustment_employee_id"`
	OriginalScore *float64  `gorm:"column:adjustment_original_score"`
	OriginalLevel string    `gorm:"column:adjustment_original_level"`
	FinalScore    *float64  `gorm:"column:adjustment_final_score"`
	FinalLevel    string    `gorm:"column:adjustment_final_level"`
	Justification string    `gorm:"not null;column:adjustment_justification"`
	AuthorID      string    `gorm:"not null;column:adjustment_author_id"`
	CreatedAt     time.Time `gorm:"column:adjustment_created_at;autoCreateTime:false"`
}

func (adjustmentRow) TableName() string { return "calibration_adjustments" }

// artifactRow keeps the artifact as its canonical document so the digest
// survives the round trip through the database unchanged.
type artifactRow struct {
	ID          string         `gorm:"primaryKey;column:artifact_id"`
	SessionID   string         `gorm:"not null;uniqueIndex:uq_artifact_session_version;column:artifact_session_id"`
	Version     int            `gorm:"not null;uniqueIndex:uq_artifact_session_version;column:artifact_version"`
	GeneratedAt time.Time      `gorm:"column:artifact_generated_at"`
	Document    datatypes.JSON `gorm:"not null;column:artifact_document"`
}

func (artifactRow) TableName() string { return "audit_artifacts" }

func allRows() []any {
	return []any{&cycleRow{}, &ratingRow{}, &assignmentRow{}, &sessionRow{}, &adjustmentRow{}, &artifactRow{}}
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}
	return datatypes.JSON(b), nil
}

func fromJSON(col datatypes.JSON, v any) error {
	if len(col) == 0 || string(col) == "null" {
		return nil
	}
	if err := json.Unmarshal(col, v); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

func cycleToRow(c *model.Cycle) (*cycleRow, error) {
	roles, err := toJSON(c.Roles)
	if err != nil {
		return nil, err
	}
	return &cycleRow{
		ID: c.ID, TenantID: c.TenantID, Name: c.Name, Status: string(c.Status), Roles: roles,
		MinSubordinates: c.MinSubordinates, CloseDate: c.CloseDate, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}, nil
}

func (r *cycleRow) toModel() (*model.Cycle, error) {
	c := &model.Cycle{
		ID: r.ID, TenantID: r.TenantID, Name: r.Name, Status: model.CycleStatus(r.Status),
		MinSubordinates: r.MinSubordinates, CloseDate: r.CloseDate, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	return c, fromJSON(r.Roles, &c.Roles)
}

func ratingToRow(r *model.Rating) (*ratingRow, error) {
	roles, err := toJSON(r.RoleScores)
	if err != nil {
		return nil, err
	}
	pot, err := toJSON(r.Potential)
	if err != nil {
		return nil, err
	}
	return &ratingRow{
		ID: r.ID, TenantID: r.TenantID, CycleID: r.CycleID, EmployeeID: r.EmployeeID,
		EmployeeName: r.EmployeeName, Department: r.Department, ManagerID: r.ManagerID,
		CalculatedScore: r.CalculatedScore, CalculatedLevel: r.CalculatedLevel, RoleScores: roles,
		FinalScore: r.FinalScore, FinalLevel: r.FinalLevel, Potential: pot, PotentialScore: r.PotentialScore,
		NineBoxPosition: string(r.NineBoxPosition), Version: r.Version, CalculatedAt: r.CalculatedAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func (r *ratingRow) toModel() (*model.Rating, error) {
	out := &model.Rating{
		ID: r.ID, TenantID: r.TenantID, CycleID: r.CycleID, EmployeeID: r.EmployeeID,
		EmployeeName: r.EmployeeName, Department: r.Department, ManagerID: r.ManagerID,
		CalculatedScore: r.CalculatedScore, CalculatedLevel: r.CalculatedLevel,
		FinalScore: r.FinalScore, FinalLevel: r.FinalLevel, PotentialScore: r.PotentialScore,
		NineBoxPosition: model.Position(r.NineBoxPosition), Version: r.Version, CalculatedAt: r.CalculatedAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if err := fromJSON(r.RoleScores, &out.RoleScores); err != nil {
		return nil, err
	}
	if err := fromJSON(r.Potential, &out.Potential); err != nil {
		return nil, err
	}
	return out, nil
}

func assignmentToRow(a *model.EvaluationAssignment) (*assignmentRow, error) {
	resp, err := toJSON(a.Responses)
	if err != nil {
		return nil, err
	}
	return &assignmentRow{
		ID: a.ID, CycleID: a.CycleID, EmployeeID: a.EmployeeID, RaterID: a.RaterID,
		Role: string(a.Role), Status: string(a.Status), Responses: resp, CompletedAt: a.CompletedAt,
	}, nil
}

func (r *assignmentRow) toModel() (model.EvaluationAssignment, error) {
	a := model.EvaluationAssignment{
		ID: r.ID, CycleID: r.CycleID, EmployeeID: r.EmployeeID, RaterID: r.RaterID,
		Role: model.RaterRole(r.Role), Status: model.AssignmentStatus(r.Status), CompletedAt: r.CompletedAt,
	}
	return a, fromJSON(r.Responses, &a.Responses)
}

func sessionToRow(s *model.CalibrationSession) (*sessionRow, error) {
	pan, err := toJSON(s.Panelists)
	if err != nil {
		return nil, err
	}
	ids, err := toJSON(s.RatingIDs)
	if err != nil {
		return nil, err
	}
	return &sessionRow{
		ID: s.ID, TenantID: s.TenantID, CycleID: s.CycleID, Name: s.Name, Status: string(s.Status),
		FacilitatorID: s.FacilitatorID, Panelists: pan, RatingIDs: ids, RequireSignOff: s.RequireSignOff,
		Version: s.Version, ScheduledAt: s.ScheduledAt, StartedAt: s.StartedAt, ClosedAt: s.ClosedAt,
		CancelledAt: s.CancelledAt, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}, nil
}

func (r *sessionRow) toModel() (*model.CalibrationSession, error) {
	s := &model.CalibrationSession{
		ID: r.ID, TenantID: r.TenantID, CycleID: r.CycleID, Name: r.Name, Status: model.SessionStatus(r.Status),
		FacilitatorID: r.FacilitatorID, RequireSignOff: r.RequireSignOff, Version: r.Version,
		ScheduledAt: r.ScheduledAt, StartedAt: r.StartedAt, ClosedAt: r.ClosedAt, CancelledAt: r.CancelledAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if err := fromJSON(r.Panelists, &s.Panelists); err != nil {
		return nil, err
	}
	if err := fromJSON(r.RatingIDs, &s.RatingIDs); err != nil {
		return nil, err
	}
	return s, nil
}

func adjustmentToRow(a *model.CalibrationAdjustment) *adjustmentRow {
	return &adjustmentRow{
		ID: a.ID, SessionID: a.SessionID, Seq: a.Seq, Kind: string(a.Kind), RevertsID: a.RevertsID,
		RatingID: a.RatingID, EmployeeID: a.EmployeeID, OriginalScore: a.OriginalScore, OriginalLevel: a.OriginalLevel,
		FinalScore: a.FinalScore, FinalLevel: a.FinalLevel, Justification: a.Justification, AuthorID: a.AuthorID,
		CreatedAt: a.CreatedAt,
	}
}

func (r *adjustmentRow) toModel() model.CalibrationAdjustment {
	return model.CalibrationAdjustment{
		ID: r.ID, SessionID: r.SessionID, Seq: r.Seq, Kind: model.AdjustmentKind(r.Kind), RevertsID: r.RevertsID,
		RatingID: r.RatingID, EmployeeID: r.EmployeeID, OriginalScore: r.OriginalScore, OriginalLevel: r.OriginalLevel,
		FinalScore: r.FinalScore, FinalLevel: r.FinalLevel, Justification: r.Justification, AuthorID: r.AuthorID,
		CreatedAt: r.CreatedAt,
	}
}

func artifactToRow(a *model.AuditArtifact) (*artifactRow, error) {
	doc, err := toJSON(a)
	if err != nil {
		return nil, err
	}
	return &artifactRow{ID: a.ID, SessionID: a.SessionID, Version: a.Version, GeneratedAt: a.GeneratedAt, Document: doc}, nil
}

func (r *artifactRow) toModel() (*model.AuditArtifact, error) {
	var a model.AuditArtifact
	if err := fromJSON(r.Document, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
