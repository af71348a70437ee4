package model

import "time"

// ArtifactRow is one adjustment entry as captured in an audit artifact.
type ArtifactRow struct {
	Seq           int            `json:"seq" yaml:"seq"`
	Kind          AdjustmentKind `json:"kind" yaml:"kind"`
	RatingID      string         `json:"rating_id" yaml:"rating_id"`
	EmployeeID    string         `json:"employee_id" yaml:"employee_id"`
	EmployeeName  string         `json:"employee_name" yaml:"employee_name"`
	OriginalScore *float64       `json:"original_score" yaml:"original_score"`
	OriginalLevel string         `json:"original_level" yaml:"original_level"`
	FinalScore    *float64       `json:"final_score" yaml:"final_score"`
	FinalLevel    string         `json:"final_level" yaml:"final_level"`
	Justification string         `json:"justification" yaml:"justification"`
	Truncated     bool           `json:"truncated" yaml:"truncated"`
	AuthorID      string         `json:"author_id" yaml:"author_id"`
	At            time.Time      `json:"at" yaml:"at"`
}

// AuditArtifact is the immutable snapshot produced when a session closes.
type AuditArtifact struct {
	ID              string        `json:"id" yaml:"id"`
	Version         int           `json:"version" yaml:"version"`
	SessionID       string        `json:"session_id" yaml:"session_id"`
	SessionName     string        `json:"session_name" yaml:"session_name"`
	CycleID         string        `json:"cycle_id" yaml:"cycle_id"`
	TenantID        string        `json:"tenant_id" yaml:"tenant_id"`
	FacilitatorID   string        `json:"facilitator_id" yaml:"facilitator_id"`
	Panelists       []Panelist    `json:"panelists" yaml:"panelists"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty" yaml:"scheduled_at,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at" yaml:"generated_at"`
	Rows            []ArtifactRow `json:"rows" yaml:"rows"`
	BonusFactor     *float64      `json:"bonus_factor" yaml:"bonus_factor"`
	ContentDigest   string        `json:"content_digest" yaml:"content_digest"`
	VerificationURL string        `json:"verification_url" yaml:"verification_url"`
}
