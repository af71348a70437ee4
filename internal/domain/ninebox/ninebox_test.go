package ninebox_test

import (
	"testing"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/ninebox"
	"github.com/okian/perfcal/internal/domain/policy"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given the default classifier and policy", t, func() {
		c := ninebox.New()
		p := policy.Default()

		Convey("When both axes are high", func() {
			So(c.Classify(p, model.Float(4.5), model.Float(4.2)), ShouldEqual, model.PositionStar)
		})

		Convey("When both axes are low", func() {
			So(c.Classify(p, model.Float(2.0), model.Float(1.0)), ShouldEqual, model.PositionRisk)
		})

		Convey("When a value sits exactly on a boundary", func() {
			Convey("Then it belongs to the higher bin", func() {
				So(c.Classify(p, model.Float(4.0), model.Float(3.0)), ShouldEqual, model.PositionHighPerformer)
				So(c.Classify(p, model.Float(3.0), model.Float(4.0)), ShouldEqual, model.PositionHighPotential)
				So(c.Classify(p, model.Float(2.9), model.Float(3.0)), ShouldEqual, model.PositionInconsistent)
			})
		})

		Convey("When either axis is missing", func() {
			Convey("Then the result is unclassified rather than a guess", func() {
				So(c.Classify(p, nil, model.Float(3.0)), ShouldEqual, model.PositionUnclassified)
				So(c.Classify(p, model.Float(3.0), nil), ShouldEqual, model.PositionUnclassified)
			})
		})

		Convey("When sweeping the whole scale", func() {
			Convey("Then every pair maps to exactly one of the nine positions, repeatably", func() {
				nine := map[model.Position]bool{}
				for _, pos := range model.Positions {
					nine[pos] = true
				}
				seen := map[model.Position]bool{}
				for perf := 0; perf <= 50; perf++ {
					for pot := 10; pot <= 50; pot++ {
						a := model.Float(float64(perf) / 10)
						b := model.Float(float64(pot) / 10)
						got := c.Classify(p, a, b)
						So(nine[got], ShouldBeTrue)
						So(c.Classify(p, a, b), ShouldEqual, got)
						seen[got] = true
					}
				}
				So(len(seen), ShouldEqual, 9)
			})
		})

		Convey("When a custom table renames a cell", func() {
			table := ninebox.DefaultTable()
			table[ninebox.Cell{Performance: ninebox.Low, Potential: ninebox.Low}] = model.PositionEffective
			custom := ninebox.New(ninebox.WithTable(table))

			Convey("Then binning is unchanged and only the label differs", func() {
				So(custom.Classify(p, model.Float(1), model.Float(1)), ShouldEqual, model.PositionEffective)
				So(custom.Classify(p, model.Float(4.5), model.Float(4.5)), ShouldEqual, model.PositionStar)
			})
		})

		Convey("When tenant thresholds differ", func() {
			strict := policy.Default()
			strict.Performance = policy.Thresholds{Medium: 3.5, High: 4.5}

			Convey("Then the same score lands in a different bin", func() {
				So(c.Classify(strict, model.Float(4.2), model.Float(4.2)), ShouldEqual, model.PositionHighPotential)
				So(c.Classify(p, model.Float(4.2), model.Float(4.2)), ShouldEqual, model.PositionStar)
			})
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given ratings with and without both axes", t, func() {
		c := ninebox.New()
		p := policy.Default()
		ratings := []model.Rating{
			{ID: "r-1", EmployeeID: "e-1", CalculatedScore: model.Float(4.4), PotentialScore: model.Float(4.6)},
			{ID: "r-2", EmployeeID: "e-2", CalculatedScore: model.Float(3.2), FinalScore: model.Float(4.1), PotentialScore: model.Float(4.0)},
			{ID: "r-3", EmployeeID: "e-3", CalculatedScore: model.Float(2.0)},
			{ID: "r-4", EmployeeID: "e-4"},
		}

		g := c.Summarize(p, ratings)

		Convey("Then counts exclude unclassified members", func() {
			So(g.Classified, ShouldEqual, 2)
			So(g.Counts[model.PositionStar], ShouldEqual, 2)
			So(len(g.Unclassified), ShouldEqual, 2)
		})

		Convey("Then final scores take precedence over calculated ones", func() {
			So(g.Members[1].RatingID, ShouldEqual, "r-2")
			So(*g.Members[1].Score, ShouldEqual, 4.1)
		})
	})
}
