package scoring_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
	scoring "github.com/okian/perfcal/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func completed(id string, role model.RaterRole, responses ...string) model.EvaluationAssignment {
	return model.EvaluationAssignment{
		ID:         id,
		EmployeeID: "emp-1",
		Role:       role,
		Status:     model.AssignmentCompleted,
		Responses:  responses,
	}
}

func TestAggregate(t *testing.T) {
	Convey("Given the default policy and an open cycle", t, func() {
		p := policy.Default()
		cycle := model.Cycle{ID: "cyc-1", Status: model.CycleActive}

		Convey("When self, manager and upward evaluations are complete", func() {
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      cycle,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-self", model.RoleSelf, "4", "4"),
					completed("a-mgr", model.RoleManager, "3", "4"),
					completed("a-up", model.RoleUpward, "4.5"),
				},
			})

			Convey("Then the weighted score is 3.8 in the exceeds band", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 3.8)
				So(res.Level, ShouldEqual, "exceeds_expectations")
				So(res.RoleScores[model.RoleManager], ShouldEqual, 3.5)
				So(res.Counted, ShouldEqual, 3)
			})
		})

		Convey("When the upward role is missing", func() {
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      cycle,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-self", model.RoleSelf, "5"),
					completed("a-mgr", model.RoleManager, "3"),
				},
			})

			Convey("Then remaining weights are re-normalized instead of depressing the score", func() {
				So(err, ShouldBeNil)
				// 0.25*5 + 0.75*3 = 3.5
				So(res.Score, ShouldEqual, 3.5)
				So(res.EffectiveWeights[model.RoleSelf], ShouldAlmostEqual, 0.25, 1e-9)
				So(res.EffectiveWeights[model.RoleManager], ShouldAlmostEqual, 0.75, 1e-9)
			})
		})

		Convey("When an assignment has no numeric answers", func() {
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      cycle,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-mgr", model.RoleManager, "4"),
					completed("a-self", model.RoleSelf, "N/A", "great year"),
				},
			})

			Convey("Then it contributes zero weight rather than a zero score", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 4.0)
				So(res.RoleScores, ShouldNotContainKey, model.RoleSelf)
			})
		})

		Convey("When only pending and declined assignments exist", func() {
			pending := completed("a-1", model.RoleManager, "4")
			pending.Status = model.AssignmentPending
			declined := completed("a-2", model.RoleSelf, "4")
			declined.Status = model.AssignmentDeclined

			_, err := scoring.Aggregate(p, scoring.Input{
				Cycle:       cycle,
				EmployeeID:  "emp-1",
				Assignments: []model.EvaluationAssignment{pending, declined},
			})

			Convey("Then the result is the soft incomplete error", func() {
				So(errors.Is(err, model.ErrDataIncomplete), ShouldBeTrue)
			})
		})

		Convey("When a response is outside the response scale", func() {
			_, err := scoring.Aggregate(p, scoring.Input{
				Cycle:       cycle,
				EmployeeID:  "emp-1",
				Assignments: []model.EvaluationAssignment{completed("a-mgr", model.RoleManager, "7")},
			})

			Convey("Then a validation error names the assignment", func() {
				var verr *model.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Field, ShouldContainSubstring, "a-mgr")
			})
		})

		Convey("When the cycle only runs manager reviews", func() {
			managerOnly := cycle
			managerOnly.Roles = []model.RaterRole{model.RoleManager}
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      managerOnly,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-self", model.RoleSelf, "1"),
					completed("a-mgr", model.RoleManager, "4"),
				},
			})

			Convey("Then non-participating roles are ignored", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 4.0)
			})
		})

		Convey("When fewer upward raters answered than the anonymity floor", func() {
			floor := cycle
			floor.MinSubordinates = 3
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      floor,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-mgr", model.RoleManager, "3"),
					completed("a-up-1", model.RoleUpward, "5"),
					completed("a-up-2", model.RoleUpward, "5"),
				},
			})

			Convey("Then the upward role is left out", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 3.0)
				So(res.RoleScores, ShouldNotContainKey, model.RoleUpward)
			})
		})

		Convey("When several peers answer", func() {
			res, err := scoring.Aggregate(p, scoring.Input{
				Cycle:      cycle,
				EmployeeID: "emp-1",
				Assignments: []model.EvaluationAssignment{
					completed("a-p1", model.RolePeer, "2", "3"),
					completed("a-p2", model.RolePeer, "4"),
				},
			})

			Convey("Then the role score is the mean of pooled item responses", func() {
				So(err, ShouldBeNil)
				So(res.RoleScores[model.RolePeer], ShouldEqual, 3.0)
			})
		})
	})
}

func TestEffectiveWeights(t *testing.T) {
	Convey("Given weight configurations and every subset of present roles", t, func() {
		configs := []map[model.RaterRole]float64{
			{model.RoleSelf: 0.2, model.RoleManager: 0.6, model.RoleUpward: 0.2, model.RolePeer: 0.2},
			{model.RoleSelf: 1, model.RoleManager: 3, model.RoleUpward: 0.5, model.RolePeer: 0.25},
			{model.RoleSelf: 0.1, model.RoleManager: 0.1, model.RoleUpward: 0.1, model.RolePeer: 0.7},
		}

		Convey("Then the effective weights always sum to one", func() {
			for _, w := range configs {
				p := policy.Default()
				p.Weights = w
				for mask := 1; mask < 1<<len(model.RaterRoles); mask++ {
					var present []model.RaterRole
					for i, r := range model.RaterRoles {
						if mask&(1<<i) != 0 {
							present = append(present, r)
						}
					}
					eff, err := scoring.EffectiveWeights(p, present)
					So(err, ShouldBeNil)
					var sum float64
					for _, v := range eff {
						sum += v
					}
					So(math.Abs(sum-1), ShouldBeLessThan, 1e-9)
				}
			}
		})

		Convey("And roles whose weights are all zero yield an incomplete result", func() {
			p := policy.Default()
			p.Weights = map[model.RaterRole]float64{model.RoleManager: 1, model.RolePeer: 0}
			_, err := scoring.EffectiveWeights(p, []model.RaterRole{model.RolePeer})
			So(errors.Is(err, model.ErrDataIncomplete), ShouldBeTrue)
		})
	})
}

func TestLevelFor(t *testing.T) {
	Convey("Given the default band table", t, func() {
		p := policy.Default()

		Convey("Then lower bounds are inclusive", func() {
			level, err := scoring.LevelFor(p, 3.5)
			So(err, ShouldBeNil)
			So(level, ShouldEqual, "exceeds_expectations")
		})

		Convey("Then upper bounds are exclusive", func() {
			level, err := scoring.LevelFor(p, 3.4)
			So(err, ShouldBeNil)
			So(level, ShouldEqual, "meets_expectations")
		})

		Convey("Then the top band is closed at the scale maximum", func() {
			level, err := scoring.LevelFor(p, 5)
			So(err, ShouldBeNil)
			So(level, ShouldEqual, "exceptional")
		})

		Convey("Then the scale minimum falls in the first band", func() {
			level, err := scoring.LevelFor(p, 0)
			So(err, ShouldBeNil)
			So(level, ShouldEqual, "needs_improvement")
		})

		Convey("Then scores outside the scale are rejected", func() {
			_, err := scoring.LevelFor(p, 5.1)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestRound1(t *testing.T) {
	Convey("Given values needing one-decimal rounding", t, func() {
		So(scoring.Round1(3.8000000000000003), ShouldEqual, 3.8)
		So(scoring.Round1(3.6666666), ShouldEqual, 3.7)
		So(scoring.Round1(2.25), ShouldEqual, 2.3)
	})
}
