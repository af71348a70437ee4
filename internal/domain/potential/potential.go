// Package potential derives a potential score from the three AAE factors
// (aspiration, ability, engagement) on the same 1..5 scale as performance.
package potential

import (
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/scoring"
)

// Factor bounds.
const (
	minFactor = 1
	maxFactor = 3
)

// Score averages the factors and rescales [1,3] onto [1,5]. All three
// factors are required; it holds no state, so equal inputs give equal output.
func Score(f *model.PotentialFactors) (float64, error) {
	if f == nil {
		return 0, model.Invalid("potential", nil, "aspiration, ability and engagement are required")
	}
	for _, c := range []struct {
		name  string
		value int
	}{
		{"aspiration", f.Aspiration},
		{"ability", f.Ability},
		{"engagement", f.Engagement},
	} {
		if c.value < minFactor || c.value > maxFactor {
			return 0, model.Invalid(c.name, c.value, "factor must be 1, 2 or 3")
		}
	}
	avg := float64(f.Aspiration+f.Ability+f.Engagement) / 3
	return scoring.Round1(1 + (avg-1)*2), nil
}
