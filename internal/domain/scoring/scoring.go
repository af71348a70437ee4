// Package scoring aggregates multi-rater evaluation responses into one
// calculated score and level per employee per cycle.
package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
)

// Input bundles what the aggregator needs for one employee.
type Input struct {
	Cycle       model.Cycle
	EmployeeID  string
	Assignments []model.EvaluationAssignment
}

// Result is the aggregate for one employee.
type Result struct {
	Score            float64
	Level            string
	RoleScores       map[model.RaterRole]float64
	EffectiveWeights map[model.RaterRole]float64
	Counted          int
}

// roleData accumulates pooled item responses for one rater role.
type roleData struct {
	sum         float64
	items       int
	assignments int
}

// Aggregate computes the calculated score and level. It returns a
// DataIncompleteError when no role has usable data; callers treat that as
// the pending state, not a failure.
func Aggregate(p policy.Policy, in Input) (Result, error) {
	roles := make(map[model.RaterRole]*roleData)
	for _, a := range in.Assignments {
		if a.Status != model.AssignmentCompleted || !in.Cycle.Participates(a.Role) {
			continue
		}
		if a.EmployeeID != "" && in.EmployeeID != "" && a.EmployeeID != in.EmployeeID {
			continue
		}
		values, err := parseResponses(p.ResponseScale, a)
		if err != nil {
			return Result{}, err
		}
		if len(values) == 0 {
			// no usable answers: zero weight, not a zero score
			continue
		}
		d := roles[a.Role]
		if d == nil {
			d = &roleData{}
			roles[a.Role] = d
		}
		for _, v := range values {
			d.sum += v
		}
		d.items += len(values)
		d.assignments++
	}

	if d, ok := roles[model.RoleUpward]; ok && d.assignments < in.Cycle.MinSubordinates {
		delete(roles, model.RoleUpward)
	}

	roleScores := make(map[model.RaterRole]float64, len(roles))
	present := make([]model.RaterRole, 0, len(roles))
	counted := 0
	for role, d := range roles {
		roleScores[role] = d.sum / float64(d.items)
		present = append(present, role)
		counted += d.assignments
	}

	weights, err := EffectiveWeights(p, present)
	if err != nil {
		return Result{}, model.Incomplete("rating", in.EmployeeID, "completed evaluations")
	}

	var score float64
	for role, w := range weights {
		score += w * roleScores[role]
	}
	score = Round1(score)

	level, err := LevelFor(p, score)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Score:            score,
		Level:            level,
		RoleScores:       roleScores,
		EffectiveWeights: weights,
		Counted:          counted,
	}, nil
}

// EffectiveWeights re-normalizes the configured weights over the roles that
// have data so that missing roles do not depress the result. The returned
// weights sum to 1. Roles without a configured weight get zero.
func EffectiveWeights(p policy.Policy, present []model.RaterRole) (map[model.RaterRole]float64, error) {
	var total float64
	for _, r := range present {
		total += p.Weights[r]
	}
	if total <= 0 {
		return nil, model.Incomplete("weights", "", "weighted role with data")
	}
	out := make(map[model.RaterRole]float64, len(present))
	for _, r := range present {
		if w := p.Weights[r]; w > 0 {
			out[r] = w / total
		}
	}
	return out, nil
}

// parseResponses extracts the numeric answers of an assignment. Non-numeric
// answers such as comments or "N/A" are skipped; numbers outside the
// response scale are rejected.
func parseResponses(scale policy.Range, a model.EvaluationAssignment) ([]float64, error) {
	values := make([]float64, 0, len(a.Responses))
	for i, raw := range a.Responses {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !scale.Contains(v) {
			return nil, model.Invalid("assignment "+a.ID+" response["+strconv.Itoa(i)+"]", v, "outside the response scale")
		}
		values = append(values, v)
	}
	return values, nil
}

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
