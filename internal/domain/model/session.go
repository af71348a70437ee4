package model

import "time"

// SessionStatus is the calibration session state.
type SessionStatus string

// Session states. Closed and Cancelled are terminal.
const (
	SessionDraft      SessionStatus = "draft"
	SessionInProgress SessionStatus = "in_progress"
	SessionClosed     SessionStatus = "closed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s SessionStatus) Terminal() bool { return s == SessionClosed || s == SessionCancelled }

// Open reports whether the session still holds its roster for review.
func (s SessionStatus) Open() bool { return s == SessionDraft || s == SessionInProgress }

// Panelist is a reviewer seated on a calibration panel.
type Panelist struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Required    bool       `json:"required" yaml:"required"`
	SignedOffAt *time.Time `json:"signed_off_at,omitempty" yaml:"signed_off_at,omitempty"`
}

// CalibrationSession groups ratings for a facilitated review.
type CalibrationSession struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	CycleID        string        `json:"cycle_id"`
	Name           string        `json:"name"`
	Status         SessionStatus `json:"status"`
	FacilitatorID  string        `json:"facilitator_id"`
	Panelists      []Panelist    `json:"panelists"`
	RatingIDs      []string      `json:"rating_ids"`
	RequireSignOff bool          `json:"require_sign_off"`
	Version        int           `json:"version"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// InRoster reports whether ratingID is under review in the session.
func (s *CalibrationSession) InRoster(ratingID string) bool {
	for _, id := range s.RatingIDs {
		if id == ratingID {
			return true
		}
	}
	return false
}

// Panelist returns the seated panelist with the given id.
func (s *CalibrationSession) Panelist(id string) (*Panelist, bool) {
	for i := range s.Panelists {
		if s.Panelists[i].ID == id {
			return &s.Panelists[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (s *CalibrationSession) Clone() *CalibrationSession {
	c := *s
	c.RatingIDs = append([]string(nil), s.RatingIDs...)
	c.Panelists = make([]Panelist, len(s.Panelists))
	for i, p := range s.Panelists {
		if p.SignedOffAt != nil {
			t := *p.SignedOffAt
			p.SignedOffAt = &t
		}
		c.Panelists[i] = p
	}
	return &c
}

// AdjustmentKind distinguishes applied scores from compensating reverts.
type AdjustmentKind string

// Adjustment kinds.
const (
	AdjustmentApply  AdjustmentKind = "apply"
	AdjustmentRevert AdjustmentKind = "revert"
)

// CalibrationAdjustment is one append-only audit entry. Original is the
// effective value the author saw; Final is what the entry leaves behind
// (nil for reverts).
type CalibrationAdjustment struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	Seq           int            `json:"seq"`
	Kind          AdjustmentKind `json:"kind"`
	RevertsID     string         `json:"reverts_id,omitempty"`
	RatingID      string         `json:"rating_id"`
	EmployeeID    string         `json:"employee_id"`
	OriginalScore *float64       `json:"original_score"`
	OriginalLevel string         `json:"original_level,omitempty"`
	FinalScore    *float64       `json:"final_score"`
	FinalLevel    string         `json:"final_level,omitempty"`
	Justification string         `json:"justification"`
	AuthorID      string         `json:"author_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Actor is the caller identity. Role flags are trusted as supplied by the
// authentication layer in front of the engine.
type Actor struct {
	ID          string `json:"id"`
	Facilitator bool   `json:"facilitator"`
	Panelist    bool   `json:"panelist"`
}
