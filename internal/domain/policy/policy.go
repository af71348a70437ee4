// Package policy holds the per-tenant configuration value consumed by every
// engine call: rater weights, score bands, nine-box thresholds, the bonus table
// and justification rules. A Policy is passed explicitly so one engine can serve
// tenants with different settings concurrently.
package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/perfcal/internal/domain/model"
)

// Default policy values.
const (
	defaultMinJustification = 10
	defaultDisplayLimit     = 280
)

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the closed interval.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Band maps scores from Min (inclusive) up to the next band's Min (exclusive)
// onto Label. The last band is closed at the scale maximum.
type Band struct {
	Label string  `json:"label" yaml:"label"`
	Min   float64 `json:"min" yaml:"min"`
}

// Thresholds bins one nine-box axis: below Medium is low, below High is
// medium, the rest is high. Boundaries belong to the higher bin.
type Thresholds struct {
	Medium float64 `json:"medium" yaml:"medium"`
	High   float64 `json:"high" yaml:"high"`
}

// Policy is the validated tenant configuration.
type Policy struct {
	Scale                     Range                       `json:"scale" yaml:"scale"`
	ResponseScale             Range                       `json:"response_scale" yaml:"response_scale"`
	Weights                   map[model.RaterRole]float64 `json:"weights" yaml:"weights"`
	Bands                     []Band                      `json:"bands" yaml:"bands"`
	Performance               Thresholds                  `json:"performance" yaml:"performance"`
	Potential                 Thresholds                  `json:"potential" yaml:"potential"`
	Bonus                     map[model.Position]float64  `json:"bonus" yaml:"bonus"`
	MinJustification          int                         `json:"min_justification" yaml:"min_justification"`
	JustificationDisplayLimit int                         `json:"justification_display_limit" yaml:"justification_display_limit"`
	RequireSignOff            bool                        `json:"require_sign_off" yaml:"require_sign_off"`
}

// Default returns the out-of-the-box policy: a manager-heavy 0..5 scale with
// five bands and 3.0/4.0 nine-box cut points on both axes.
func Default() Policy {
	return Policy{
		Scale:         Range{Min: 0, Max: 5},
		ResponseScale: Range{Min: 1, Max: 5},
		Weights: map[model.RaterRole]float64{
			model.RoleSelf:    0.2,
			model.RoleManager: 0.6,
			model.RoleUpward:  0.2,
			model.RolePeer:    0.2,
		},
		Bands: []Band{
			{Label: "needs_improvement", Min: 0},
			{Label: "below_expectations", Min: 1.5},
			{Label: "meets_expectations", Min: 2.5},
			{Label: "exceeds_expectations", Min: 3.5},
			{Label: "exceptional", Min: 4.5},
		},
		Performance: Thresholds{Medium: 3.0, High: 4.0},
		Potential:   Thresholds{Medium: 3.0, High: 4.0},
		Bonus: map[model.Position]float64{
			model.PositionStar:                1.5,
			model.PositionHighPerformer:       1.3,
			model.PositionHighPotential:       1.2,
			model.PositionTrustedProfessional: 1.1,
			model.PositionCorePlayer:          1.0,
			model.PositionEnigma:              0.8,
			model.PositionEffective:           0.8,
			model.PositionInconsistent:        0.5,
			model.PositionRisk:                0,
		},
		MinJustification:          defaultMinJustification,
		JustificationDisplayLimit: defaultDisplayLimit,
	}
}

// Validate rejects configuration that cannot be used as-is. Nothing is clamped.
func (p Policy) Validate() error {
	if !finite(p.Scale.Min) || !finite(p.Scale.Max) || p.Scale.Min >= p.Scale.Max {
		return model.Invalid("scale", p.Scale, "min must be below max")
	}
	if !finite(p.ResponseScale.Min) || !finite(p.ResponseScale.Max) || p.ResponseScale.Min >= p.ResponseScale.Max {
		return model.Invalid("response_scale", p.ResponseScale, "min must be below max")
	}
	if err := p.validateWeights(); err != nil {
		return err
	}
	if err := p.validateBands(); err != nil {
		return err
	}
	if err := validateThresholds("performance", p.Performance, p.Scale); err != nil {
		return err
	}
	if err := validateThresholds("potential", p.Potential, p.Scale); err != nil {
		return err
	}
	for _, pos := range model.Positions {
		v, ok := p.Bonus[pos]
		if !ok {
			return model.Invalid("bonus", pos, "missing multiplier for position")
		}
		if !finite(v) || v < 0 {
			return model.Invalid("bonus."+string(pos), v, "multiplier must be a non-negative number")
		}
	}
	for pos := range p.Bonus {
		if pos == model.PositionUnclassified || !known(pos) {
			return model.Invalid("bonus", pos, "unknown position")
		}
	}
	if p.MinJustification < 1 {
		return model.Invalid("min_justification", p.MinJustification, "must be at least 1")
	}
	if p.JustificationDisplayLimit < p.MinJustification {
		return model.Invalid("justification_display_limit", p.JustificationDisplayLimit, "must not be below min_justification")
	}
	return nil
}

func (p Policy) validateWeights() error {
	if len(p.Weights) == 0 {
		return model.Invalid("weights", nil, "at least one rater role must be weighted")
	}
	var sum float64
	for role, w := range p.Weights {
		if !role.Valid() {
			return model.Invalid("weights", role, "unknown rater role")
		}
		if !finite(w) || w < 0 {
			return model.Invalid("weights."+string(role), w, "weight must be a non-negative number")
		}
		sum += w
	}
	if sum <= 0 || !finite(sum) {
		return model.Invalid("weights", sum, "weights must sum to a positive number")
	}
	return nil
}

func (p Policy) validateBands() error {
	if len(p.Bands) == 0 {
		return model.Invalid("bands", nil, "at least one band is required")
	}
	if p.Bands[0].Min != p.Scale.Min {
		return model.Invalid("bands[0].min", p.Bands[0].Min, fmt.Sprintf("first band must start at scale minimum %v", p.Scale.Min))
	}
	seen := make(map[string]struct{}, len(p.Bands))
	for i, b := range p.Bands {
		if b.Label == "" {
			return model.Invalid(fmt.Sprintf("bands[%d].label", i), nil, "label is required")
		}
		if _, dup := seen[b.Label]; dup {
			return model.Invalid(fmt.Sprintf("bands[%d].label", i), b.Label, "duplicate label")
		}
		seen[b.Label] = struct{}{}
		if !finite(b.Min) || b.Min >= p.Scale.Max {
			return model.Invalid(fmt.Sprintf("bands[%d].min", i), b.Min, "must be below the scale maximum")
		}
		if i > 0 && b.Min <= p.Bands[i-1].Min {
			return model.Invalid(fmt.Sprintf("bands[%d].min", i), b.Min, "band boundaries must be strictly increasing")
		}
	}
	return nil
}

func validateThresholds(field string, t Thresholds, scale Range) error {
	if !finite(t.Medium) || !finite(t.High) {
		return model.Invalid(field, t, "thresholds must be numbers")
	}
	if t.Medium >= t.High {
		return model.Invalid(field, t, "medium threshold must be strictly below high")
	}
	if t.Medium <= scale.Min || t.High > scale.Max {
		return model.Invalid(field, t, "thresholds must lie inside the scale")
	}
	return nil
}

// Roles returns the weighted roles in a stable order.
func (p Policy) Roles() []model.RaterRole {
	out := make([]model.RaterRole, 0, len(p.Weights))
	for r := range p.Weights {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func known(pos model.Position) bool {
	for _, p := range model.Positions {
		if p == pos {
			return true
		}
	}
	return false
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
