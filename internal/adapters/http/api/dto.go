package api

import (
	"time"

	"github.com/okian/perfcal/internal/domain/model"
)

type createCycleRequest struct {
	Name            string    `json:"name" validate:"required"`
	Roles           []string  `json:"roles" validate:"omitempty,dive,oneof=self manager upward peer"`
	MinSubordinates int       `json:"min_subordinates" validate:"gte=0"`
	CloseDate       time.Time `json:"close_date"`
}

type advanceRequest struct {
	Status string `json:"status" validate:"required,oneof=active in_review completed archived"`
}

type employeeDTO struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Department string `json:"department"`
	ManagerID  string `json:"manager_id"`
}

type enrollRequest struct {
	Employees []employeeDTO `json:"employees" validate:"required,min=1,dive"`
}

type assignmentRequest struct {
	ID          string     `json:"id"`
	RaterID     string     `json:"rater_id" validate:"required"`
	EmployeeID  string     `json:"employee_id" validate:"required"`
	Role        string     `json:"role" validate:"required,oneof=self manager upward peer"`
	Status      string     `json:"status" validate:"required,oneof=pending completed declined"`
	Responses   []string   `json:"responses"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (a assignmentRequest) model(cycleID string) model.EvaluationAssignment {
	return model.EvaluationAssignment{
		ID:          a.ID,
		CycleID:     cycleID,
		RaterID:     a.RaterID,
		EmployeeID:  a.EmployeeID,
		Role:        model.RaterRole(a.Role),
		Status:      model.AssignmentStatus(a.Status),
		Responses:   a.Responses,
		CompletedAt: a.CompletedAt,
	}
}

// Factor ranges are checked by the potential engine so the error names the factor.
type potentialRequest struct {
	Aspiration int  `json:"aspiration"`
	Ability    int  `json:"ability"`
	Engagement int  `json:"engagement"`
	Reassess   bool `json:"reassess"`
}

type panelistDTO struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

type createSessionRequest struct {
	CycleID        string        `json:"cycle_id" validate:"required"`
	Name           string        `json:"name" validate:"required"`
	Panelists      []panelistDTO `json:"panelists" validate:"dive"`
	Department     string        `json:"department"`
	ManagerID      string        `json:"manager_id"`
	RatingIDs      []string      `json:"rating_ids" validate:"dive,required"`
	ScheduledAt    *time.Time    `json:"scheduled_at"`
	RequireSignOff *bool         `json:"require_sign_off"`
}

type rosterRequest struct {
	RatingIDs []string `json:"rating_ids" validate:"required,min=1,dive,required"`
}

type adjustRequest struct {
	RatingID      string   `json:"rating_id" validate:"required"`
	FinalScore    *float64 `json:"final_score" validate:"required"`
	Justification string   `json:"justification" validate:"required"`
}

type revertRequest struct {
	Justification string `json:"justification" validate:"required"`
}

type closeResponse struct {
	Session  *model.CalibrationSession `json:"session"`
	Artifact *model.AuditArtifact      `json:"artifact"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	ID    string `json:"id"`
}
