// Package ninebox places employees on the 3x3 performance by potential grid.
package ninebox

import (
	"sort"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
)

// Bin is one third of an axis.
type Bin int

// Axis bins.
const (
	Low Bin = iota
	Medium
	High
)

func (b Bin) String() string {
	switch b {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "unknown"
}

// Cell addresses a grid position by performance and potential bin.
type Cell struct {
	Performance Bin
	Potential   Bin
}

// Table maps every cell onto a named position.
type Table map[Cell]model.Position

// DefaultTable is the standard grid naming.
func DefaultTable() Table {
	return Table{
		{High, High}:     model.PositionStar,
		{Medium, High}:   model.PositionHighPotential,
		{Low, High}:      model.PositionEnigma,
		{High, Medium}:   model.PositionHighPerformer,
		{Medium, Medium}: model.PositionCorePlayer,
		{Low, Medium}:    model.PositionInconsistent,
		{High, Low}:      model.PositionTrustedProfessional,
		{Medium, Low}:    model.PositionEffective,
		{Low, Low}:       model.PositionRisk,
	}
}

// Classifier bins both axes and looks the cell up in its table.
type Classifier struct {
	table Table
}

// New creates a classifier with the default table unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{table: DefaultTable()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BinOf places v on an axis. A value equal to a threshold goes to the higher bin.
func BinOf(t policy.Thresholds, v float64) Bin {
	switch {
	case v >= t.High:
		return High
	case v >= t.Medium:
		return Medium
	default:
		return Low
	}
}

// Classify returns the grid position for a performance and potential score.
// A nil axis yields PositionUnclassified.
func (c *Classifier) Classify(p policy.Policy, performance, potential *float64) model.Position {
	if performance == nil || potential == nil {
		return model.PositionUnclassified
	}
	cell := Cell{
		Performance: BinOf(p.Performance, *performance),
		Potential:   BinOf(p.Potential, *potential),
	}
	if pos, ok := c.table[cell]; ok {
		return pos
	}
	return model.PositionUnclassified
}

// ClassifyRating classifies the rating's effective score and potential.
func (c *Classifier) ClassifyRating(p policy.Policy, r *model.Rating) model.Position {
	return c.Classify(p, r.EffectiveScore(), r.PotentialScore)
}

// Member is one rating placed on the grid.
type Member struct {
	RatingID       string         `json:"rating_id"`
	EmployeeID     string         `json:"employee_id"`
	EmployeeName   string         `json:"employee_name"`
	Score          *float64       `json:"score"`
	Level          string         `json:"level,omitempty"`
	PotentialScore *float64       `json:"potential_score"`
	Position       model.Position `json:"position"`
}

// Grid is the aggregate view of a set of ratings. Unclassified members stay
// visible but are not counted in Counts.
type Grid struct {
	Counts       map[model.Position]int `json:"counts"`
	Members      []Member               `json:"members"`
	Unclassified []Member               `json:"unclassified"`
	Classified   int                    `json:"classified"`
}

// Summarize re-classifies every rating from its current scores.
func (c *Classifier) Summarize(p policy.Policy, ratings []model.Rating) Grid {
	g := Grid{
		Counts:       make(map[model.Position]int, len(model.Positions)),
		Members:      []Member{},
		Unclassified: []Member{},
	}
	for _, pos := range model.Positions {
		g.Counts[pos] = 0
	}
	for i := range ratings {
		r := &ratings[i]
		m := Member{
			RatingID:       r.ID,
			EmployeeID:     r.EmployeeID,
			EmployeeName:   r.EmployeeName,
			Score:          r.EffectiveScore(),
			Level:          r.EffectiveLevel(),
			PotentialScore: r.PotentialScore,
			Position:       c.ClassifyRating(p, r),
		}
		if m.Position == model.PositionUnclassified {
			g.Unclassified = append(g.Unclassified, m)
			continue
		}
		g.Counts[m.Position]++
		g.Classified++
		g.Members = append(g.Members, m)
	}
	sort.SliceStable(g.Members, func(i, j int) bool { return g.Members[i].EmployeeID < g.Members[j].EmployeeID })
	sort.SliceStable(g.Unclassified, func(i, j int) bool { return g.Unclassified[i].EmployeeID < g.Unclassified[j].EmployeeID })
	return g
}
