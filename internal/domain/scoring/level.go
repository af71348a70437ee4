package scoring

import (
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
)

// LevelFor maps score onto the policy's band table. Bands include their lower
// bound and exclude the next band's; the top band also includes the scale maximum.
func LevelFor(p policy.Policy, score float64) (string, error) {
	if !p.Scale.Contains(score) {
		return "", model.Invalid("score", score, "outside the rating scale")
	}
	level := p.Bands[0].Label
	for _, b := range p.Bands {
		if score < b.Min {
			break
		}
		level = b.Label
	}
	return level, nil
}
