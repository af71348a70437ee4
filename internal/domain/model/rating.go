package model

import "time"

// Position is a nine-box grid cell identifier.
type Position string

// Nine-box positions. Unclassified is used when either axis is missing.
const (
	PositionStar                Position = "star"
	PositionHighPotential       Position = "high_potential"
	PositionEnigma              Position = "enigma"
	PositionHighPerformer       Position = "high_performer"
	PositionCorePlayer          Position = "core_player"
	PositionInconsistent        Position = "inconsistent"
	PositionTrustedProfessional Position = "trusted_professional"
	PositionEffective           Position = "effective"
	PositionRisk                Position = "risk"
	PositionUnclassified        Position = "unclassified"
)

// Positions lists the nine classified positions, high performance and high potential first.
var Positions = []Position{
	PositionStar, PositionHighPerformer, PositionTrustedProfessional,
	PositionHighPotential, PositionCorePlayer, PositionEffective,
	PositionEnigma, PositionInconsistent, PositionRisk,
}

// PotentialFactors are the AAE inputs, each in 1..3.
type PotentialFactors struct {
	Aspiration int `json:"aspiration"`
	Ability    int `json:"ability"`
	Engagement int `json:"engagement"`
}

// Rating is the per-employee, per-cycle aggregate.
//
// FinalScore, when set, takes precedence over CalculatedScore everywhere
// downstream. NineBoxPosition is a cache refreshed on every write; readers
// re-classify from scores instead of trusting it.
type Rating struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	CycleID      string `json:"cycle_id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Department   string `json:"department"`
	ManagerID    string `json:"manager_id"`

	CalculatedScore *float64              `json:"calculated_score"`
	CalculatedLevel string                `json:"calculated_level,omitempty"`
	RoleScores      map[RaterRole]float64 `json:"role_scores,omitempty"`
	FinalScore      *float64              `json:"final_score"`
	FinalLevel      string                `json:"final_level,omitempty"`

	Potential       *PotentialFactors `json:"potential,omitempty"`
	PotentialScore  *float64          `json:"potential_score"`
	NineBoxPosition Position          `json:"nine_box_position"`

	Version      int        `json:"version"`
	CalculatedAt *time.Time `json:"calculated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EffectiveScore returns the authoritative score: final when present, else calculated.
func (r *Rating) EffectiveScore() *float64 {
	if r.FinalScore != nil {
		return r.FinalScore
	}
	return r.CalculatedScore
}

// EffectiveLevel mirrors EffectiveScore for the level label.
func (r *Rating) EffectiveLevel() string {
	if r.FinalScore != nil {
		return r.FinalLevel
	}
	return r.CalculatedLevel
}

// Pending reports whether no performance score exists yet.
func (r *Rating) Pending() bool { return r.EffectiveScore() == nil }

// Clone returns a deep copy.
func (r *Rating) Clone() *Rating {
	c := *r
	c.CalculatedScore = cloneFloat(r.CalculatedScore)
	c.FinalScore = cloneFloat(r.FinalScore)
	c.PotentialScore = cloneFloat(r.PotentialScore)
	if r.Potential != nil {
		p := *r.Potential
		c.Potential = &p
	}
	if r.RoleScores != nil {
		c.RoleScores = make(map[RaterRole]float64, len(r.RoleScores))
		for k, v := range r.RoleScores {
			c.RoleScores[k] = v
		}
	}
	if r.CalculatedAt != nil {
		t := *r.CalculatedAt
		c.CalculatedAt = &t
	}
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
