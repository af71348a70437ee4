package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/model"
)

var at = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type factory struct {
	name string
	open func(t *testing.T) repository.Store
}

func stores() []factory {
	return []factory{
		{"memory", func(t *testing.T) repository.Store { return repository.NewMemStore() }},
		{"sqlite", func(t *testing.T) repository.Store {
			db, err := repository.OpenSQLite(":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			s, err := repository.NewGormStore(context.Background(), db)
			if err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return s
		}},
	}
}

func seed(ctx context.Context, s repository.Store) error {
	return s.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateCycle(&model.Cycle{
			ID: "cyc-1", TenantID: "acme", Name: "H1", Status: model.CycleActive,
			Roles: []model.RaterRole{model.RoleSelf, model.RoleManager}, CloseDate: at, CreatedAt: at, UpdatedAt: at,
		}); err != nil {
			return err
		}
		for _, r := range []*model.Rating{
			{ID: "rat-1", TenantID: "acme", CycleID: "cyc-1", EmployeeID: "emp-1", EmployeeName: "Ada", Department: "eng", ManagerID: "mgr-1", CreatedAt: at, UpdatedAt: at},
			{ID: "rat-2", TenantID: "acme", CycleID: "cyc-1", EmployeeID: "emp-2", EmployeeName: "Grace", Department: "eng", ManagerID: "mgr-2", CreatedAt: at, UpdatedAt: at},
			{ID: "rat-3", TenantID: "acme", CycleID: "cyc-1", EmployeeID: "emp-3", EmployeeName: "Linus", Department: "ops", ManagerID: "mgr-1", CreatedAt: at, UpdatedAt: at},
		} {
			if err := tx.CreateRating(r); err != nil {
				return err
			}
		}
		return nil
	})
}

var equateEmpty = cmpopts.EquateEmpty()

func TestStoreContract(t *testing.T) {
	for _, f := range stores() {
		Convey("Given a seeded "+f.name+" store", t, func() {
			ctx := context.Background()
			s := f.open(t)
			Reset(func() { _ = s.Close() })
			So(seed(ctx, s), ShouldBeNil)

			Convey("Cycles round-trip", func() {
				var c *model.Cycle
				So(s.View(ctx, func(tx repository.Tx) (err error) {
					c, err = tx.Cycle("cyc-1")
					return err
				}), ShouldBeNil)
				So(c.Roles, ShouldResemble, []model.RaterRole{model.RoleSelf, model.RoleManager})
				So(c.CloseDate.Equal(at), ShouldBeTrue)
			})

			Convey("Enrolling the same employee twice is an integrity error", func() {
				err := s.WithinTx(ctx, func(tx repository.Tx) error {
					return tx.CreateRating(&model.Rating{ID: "rat-9", CycleID: "cyc-1", EmployeeID: "emp-1"})
				})
				So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)
			})

			Convey("Missing rows are not found", func() {
				err := s.View(ctx, func(tx repository.Tx) error {
					_, err := tx.Rating("nope")
					return err
				})
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("Reads are copies until written back", func() {
				So(s.WithinTx(ctx, func(tx repository.Tx) error {
					r, err := tx.Rating("rat-1")
					if err != nil {
						return err
					}
					r.FinalScore = model.Float(5)
					return nil
				}), ShouldBeNil)
				So(s.View(ctx, func(tx repository.Tx) error {
					r, err := tx.Rating("rat-1")
					So(r.FinalScore, ShouldBeNil)
					return err
				}), ShouldBeNil)
			})

			Convey("Rating updates bump the version and reject stale writers", func() {
				var stale *model.Rating
				So(s.WithinTx(ctx, func(tx repository.Tx) error {
					r, err := tx.LockRating("rat-1")
					if err != nil {
						return err
					}
					stale = r.Clone()
					r.CalculatedScore = model.Float(3.8)
					r.CalculatedLevel = "exceeds_expectations"
					r.RoleScores = map[model.RaterRole]float64{model.RoleSelf: 4, model.RoleManager: 3.5}
					r.Potential = &model.PotentialFactors{Aspiration: 3, Ability: 2, Engagement: 3}
					r.PotentialScore = model.Float(4.3)
					r.NineBoxPosition = model.PositionHighPerformer
					if err := tx.UpdateRating(r); err != nil {
						return err
					}
					So(r.Version, ShouldEqual, 1)
					return nil
				}), ShouldBeNil)

				err := s.WithinTx(ctx, func(tx repository.Tx) error { return tx.UpdateRating(stale) })
				So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)

				So(s.View(ctx, func(tx repository.Tx) error {
					r, err := tx.RatingByEmployee("cyc-1", "emp-1")
					if err != nil {
						return err
					}
					So(*r.CalculatedScore, ShouldEqual, 3.8)
					So(r.RoleScores[model.RoleManager], ShouldEqual, 3.5)
					So(r.Potential.Ability, ShouldEqual, 2)
					So(r.Version, ShouldEqual, 1)
					return nil
				}), ShouldBeNil)
			})

			Convey("A failed transaction leaves no trace", func() {
				boom := errors.New("boom")
				err := s.WithinTx(ctx, func(tx repository.Tx) error {
					r, _ := tx.Rating("rat-2")
					r.CalculatedScore = model.Float(4.9)
					if err := tx.UpdateRating(r); err != nil {
						return err
					}
					if err := tx.CreateSession(&model.CalibrationSession{ID: "ses-x", CycleID: "cyc-1", Status: model.SessionDraft}); err != nil {
						return err
					}
					return boom
				})
				So(errors.Is(err, boom), ShouldBeTrue)
				So(s.View(ctx, func(tx repository.Tx) error {
					r, _ := tx.Rating("rat-2")
					So(r.CalculatedScore, ShouldBeNil)
					So(r.Version, ShouldEqual, 0)
					_, err := tx.Session("ses-x")
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
					top, err := tx.TopRatings("cyc-1", 10)
					So(top, ShouldBeEmpty)
					return err
				}), ShouldBeNil)
			})

			Convey("Read-only transactions refuse writes", func() {
				err := s.View(ctx, func(tx repository.Tx) error {
					return tx.UpsertAssignment(&model.EvaluationAssignment{ID: "a-1"})
				})
				So(errors.Is(err, repository.ErrReadOnly), ShouldBeTrue)
			})

			Convey("Filters select by department, manager and ids", func() {
				So(s.View(ctx, func(tx repository.Tx) error {
					eng, _ := tx.Ratings(repository.RatingFilter{CycleID: "cyc-1", Department: "eng"})
					So(ids(eng), ShouldResemble, []string{"rat-1", "rat-2"})
					mgr, _ := tx.Ratings(repository.RatingFilter{CycleID: "cyc-1", ManagerID: "mgr-1"})
					So(ids(mgr), ShouldResemble, []string{"rat-1", "rat-3"})
					some, err := tx.Ratings(repository.RatingFilter{CycleID: "cyc-1", IDs: []string{"rat-3", "rat-2"}})
					So(ids(some), ShouldResemble, []string{"rat-2", "rat-3"})
					return err
				}), ShouldBeNil)
			})

			Convey("Ranking orders by effective score and skips pending ratings", func() {
				So(s.WithinTx(ctx, func(tx repository.Tx) error {
					for id, v := range map[string]float64{"rat-1": 3.5, "rat-2": 3.5} {
						r, _ := tx.Rating(id)
						r.CalculatedScore = model.Float(v)
						if err := tx.UpdateRating(r); err != nil {
							return err
						}
					}
					r, _ := tx.Rating("rat-2")
					r.FinalScore = model.Float(4.4)
					return tx.UpdateRating(r)
				}), ShouldBeNil)
				So(s.View(ctx, func(tx repository.Tx) error {
					top, err := tx.TopRatings("cyc-1", 10)
					So(top, ShouldResemble, []repository.Ranked{
						{Rank: 1, RatingID: "rat-2", EmployeeID: "emp-2", EmployeeName: "Grace", Score: 4.4},
						{Rank: 2, RatingID: "rat-1", EmployeeID: "emp-1", EmployeeName: "Ada", Score: 3.5},
					})
					_, limitErr := tx.TopRatings("cyc-1", 0)
					So(errors.Is(limitErr, repository.ErrInvalidLimit), ShouldBeTrue)
					return err
				}), ShouldBeNil)
			})

			Convey("Assignments upsert by id", func() {
				a := &model.EvaluationAssignment{ID: "a-1", CycleID: "cyc-1", RaterID: "emp-2", EmployeeID: "emp-1",
					Role: model.RoleSelf, Status: model.AssignmentPending}
				So(s.WithinTx(ctx, func(tx repository.Tx) error { return tx.UpsertAssignment(a) }), ShouldBeNil)
				done := at
				a.Status, a.Responses, a.CompletedAt = model.AssignmentCompleted, []string{"4", "N/A"}, &done
				So(s.WithinTx(ctx, func(tx repository.Tx) error { return tx.UpsertAssignment(a) }), ShouldBeNil)
				So(s.View(ctx, func(tx repository.Tx) error {
					list, err := tx.Assignments("cyc-1", "emp-1")
					So(list, ShouldHaveLength, 1)
					So(list[0].Status, ShouldEqual, model.AssignmentCompleted)
					So(list[0].Responses, ShouldResemble, []string{"4", "N/A"})
					return err
				}), ShouldBeNil)
				So(s.View(ctx, func(tx repository.Tx) error {
					got, err := tx.Assignment("a-1")
					So(err, ShouldBeNil)
					So(got.CycleID, ShouldEqual, "cyc-1")
					So(got.Role, ShouldEqual, model.RoleSelf)
					_, err = tx.Assignment("a-404")
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
					return nil
				}), ShouldBeNil)
			})

			Convey("Sessions, adjustments and artifacts", func() {
				sess := &model.CalibrationSession{
					ID: "ses-1", TenantID: "acme", CycleID: "cyc-1", Name: "Eng", Status: model.SessionDraft,
					FacilitatorID: "fac-1", Panelists: []model.Panelist{{ID: "pan-1", Required: true}},
					RatingIDs: []string{"rat-1", "rat-2"}, CreatedAt: at, UpdatedAt: at,
				}
				So(s.WithinTx(ctx, func(tx repository.Tx) error { return tx.CreateSession(sess) }), ShouldBeNil)

				Convey("Open sessions are listed until they close", func() {
					So(s.WithinTx(ctx, func(tx repository.Tx) error {
						open, err := tx.OpenSessions("cyc-1")
						So(open, ShouldHaveLength, 1)
						So(cmp.Diff(sess, open[0], equateEmpty), ShouldBeEmpty)
						if err != nil {
							return err
						}
						got, err := tx.LockSession("ses-1")
						if err != nil {
							return err
						}
						got.Status = model.SessionClosed
						return tx.UpdateSession(got)
					}), ShouldBeNil)
					So(s.View(ctx, func(tx repository.Tx) error {
						open, err := tx.OpenSessions("cyc-1")
						So(open, ShouldBeEmpty)
						return err
					}), ShouldBeNil)

					err := s.WithinTx(ctx, func(tx repository.Tx) error { return tx.UpdateSession(sess) })
					So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)
				})

				Convey("Adjustments get consecutive sequence numbers", func() {
					So(s.WithinTx(ctx, func(tx repository.Tx) error {
						for _, id := range []string{"adj-1", "adj-2"} {
							a := &model.CalibrationAdjustment{ID: id, SessionID: "ses-1", Kind: model.AdjustmentApply,
								RatingID: "rat-1", EmployeeID: "emp-1", FinalScore: model.Float(4), Justification: "strong half", AuthorID: "fac-1", CreatedAt: at}
							if err := tx.AppendAdjustment(a); err != nil {
								return err
							}
						}
						return nil
					}), ShouldBeNil)
					So(s.View(ctx, func(tx repository.Tx) error {
						list, err := tx.Adjustments("ses-1")
						So(list, ShouldHaveLength, 2)
						So(list[0].Seq, ShouldEqual, 1)
						So(list[1].Seq, ShouldEqual, 2)
						So(list[0].OriginalScore, ShouldBeNil)
						So(*list[1].FinalScore, ShouldEqual, 4)
						one, _ := tx.Adjustment("adj-2")
						So(one.Seq, ShouldEqual, 2)
						yes, _ := tx.RatingAdjusted("rat-1")
						no, _ := tx.RatingAdjusted("rat-2")
						So(yes, ShouldBeTrue)
						So(no, ShouldBeFalse)
						return err
					}), ShouldBeNil)
				})

				Convey("Artifact versions never overwrite", func() {
					art := &model.AuditArtifact{ID: "art-1", Version: 1, SessionID: "ses-1", GeneratedAt: at,
						Rows:        []model.ArtifactRow{{Seq: 1, RatingID: "rat-1", FinalScore: model.Float(4), At: at}},
						BonusFactor: model.Float(1.2), ContentDigest: "d1"}
					So(s.WithinTx(ctx, func(tx repository.Tx) error { return tx.SaveArtifact(art) }), ShouldBeNil)

					dup := *art
					dup.ID = "art-2"
					err := s.WithinTx(ctx, func(tx repository.Tx) error { return tx.SaveArtifact(&dup) })
					So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)

					dup.Version = 2
					So(s.WithinTx(ctx, func(tx repository.Tx) error { return tx.SaveArtifact(&dup) }), ShouldBeNil)
					So(s.View(ctx, func(tx repository.Tx) error {
						list, err := tx.Artifacts("ses-1")
						So(list, ShouldHaveLength, 2)
						So(list[1].ID, ShouldEqual, "art-2")
						got, _ := tx.Artifact("art-1")
						So(cmp.Diff(art, got, equateEmpty), ShouldBeEmpty)
						return err
					}), ShouldBeNil)
				})
			})
		})
	}
}

func TestMemStoreClose(t *testing.T) {
	Convey("A closed memory store refuses transactions", t, func() {
		s := repository.NewMemStore()
		So(s.Close(), ShouldBeNil)
		err := s.WithinTx(context.Background(), func(tx repository.Tx) error { return nil })
		So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
	})
}

func TestOpen(t *testing.T) {
	Convey("Open selects a driver by name", t, func() {
		ctx := context.Background()
		s, err := repository.Open(ctx, "memory", "")
		So(err, ShouldBeNil)
		So(s, ShouldHaveSameTypeAs, &repository.MemStore{})

		s, err = repository.Open(ctx, "sqlite", ":memory:")
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		_, err = repository.Open(ctx, "oracle", "")
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
	})
}

func ids(rs []*model.Rating) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
