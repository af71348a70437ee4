// Package model contains the domain entities shared by the rating engine,
// the calibration workflow and the adapters that persist them.
package model

import "time"

// RaterRole is the relationship of an evaluator to the evaluated employee.
type RaterRole string

// Rater roles.
const (
	RoleSelf    RaterRole = "self"
	RoleManager RaterRole = "manager"
	RoleUpward  RaterRole = "upward"
	RolePeer    RaterRole = "peer"
)

// RaterRoles lists every known role in a stable order.
var RaterRoles = []RaterRole{RoleSelf, RoleManager, RoleUpward, RolePeer}

// Valid reports whether r is a known role.
func (r RaterRole) Valid() bool {
	switch r {
	case RoleSelf, RoleManager, RoleUpward, RolePeer:
		return true
	}
	return false
}

// CycleStatus is the lifecycle state of a review cycle.
type CycleStatus string

// Cycle statuses, in lifecycle order.
const (
	CycleDraft     CycleStatus = "draft"
	CycleActive    CycleStatus = "active"
	CycleInReview  CycleStatus = "in_review"
	CycleCompleted CycleStatus = "completed"
	CycleArchived  CycleStatus = "archived"
)

var cycleOrder = []CycleStatus{CycleDraft, CycleActive, CycleInReview, CycleCompleted, CycleArchived}

// Next returns the status that follows s, or false when s is terminal or unknown.
func (s CycleStatus) Next() (CycleStatus, bool) {
	for i, st := range cycleOrder {
		if st == s && i+1 < len(cycleOrder) {
			return cycleOrder[i+1], true
		}
	}
	return "", false
}

// Cycle is a bounded review period.
type Cycle struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	Name            string      `json:"name"`
	Status          CycleStatus `json:"status"`
	Roles           []RaterRole `json:"roles"`
	MinSubordinates int         `json:"min_subordinates"`
	CloseDate       time.Time   `json:"close_date"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Participates reports whether role is configured for the cycle. A cycle with
// no explicit roles accepts all of them.
func (c Cycle) Participates(role RaterRole) bool {
	if len(c.Roles) == 0 {
		return role.Valid()
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Archived reports whether the cycle is read-only.
func (c Cycle) Archived() bool { return c.Status == CycleArchived }

// AssignmentStatus is the completion state of an evaluation assignment.
type AssignmentStatus string

// Assignment statuses.
const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentDeclined  AssignmentStatus = "declined"
)

// EvaluationAssignment pairs one rater with one employee for one role.
// Responses hold the raw answers as stored by the survey system.
type EvaluationAssignment struct {
	ID          string           `json:"id"`
	CycleID     string           `json:"cycle_id"`
	RaterID     string           `json:"rater_id"`
	EmployeeID  string           `json:"employee_id"`
	Role        RaterRole        `json:"role"`
	Status      AssignmentStatus `json:"status"`
	Responses   []string         `json:"responses"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Employee is the snapshot of org data taken when an employee is enrolled in a cycle.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	ManagerID  string `json:"manager_id"`
}
