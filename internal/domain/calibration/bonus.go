package calibration

import (
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/ninebox"
	"github.com/okian/perfcal/internal/domain/policy"
)

// BonusFactor is the mean bonus multiplier over the classified members of a
// roster. Unclassified members are reported but do not dilute the mean; nil
// means nobody was classified.
type BonusFactor struct {
	Factor       *float64 `json:"factor"`
	Classified   int      `json:"classified"`
	Unclassified int      `json:"unclassified"`
}

// Bonus computes the factor for ratings as currently scored.
func Bonus(p policy.Policy, c *ninebox.Classifier, ratings []*model.Rating) BonusFactor {
	var (
		out BonusFactor
		sum float64
	)
	for _, r := range ratings {
		pos := c.ClassifyRating(p, r)
		if pos == model.PositionUnclassified {
			out.Unclassified++
			continue
		}
		sum += p.Bonus[pos]
		out.Classified++
	}
	if out.Classified > 0 {
		out.Factor = model.Float(sum / float64(out.Classified))
	}
	return out
}
