package audit_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/model"
)

var (
	started = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	closed  = started.Add(2 * time.Hour)
	genAt   = closed.Add(123456789 * time.Nanosecond)
)

func closedSession() *model.CalibrationSession {
	signed := closed.Add(-time.Minute)
	return &model.CalibrationSession{
		ID:            "ses-1",
		TenantID:      "acme",
		CycleID:       "cyc-1",
		Name:          "Engineering H1",
		Status:        model.SessionClosed,
		FacilitatorID: "fac-1",
		Panelists:     []model.Panelist{{ID: "pan-1", Name: "Ada", Required: true, SignedOffAt: &signed}},
		RatingIDs:     []string{"rat-1"},
		StartedAt:     &started,
		ClosedAt:      &closed,
	}
}

func entries() []model.CalibrationAdjustment {
	return []model.CalibrationAdjustment{
		{
			ID: "adj-2", SessionID: "ses-1", Seq: 2, Kind: model.AdjustmentRevert, RevertsID: "adj-1",
			RatingID: "rat-1", EmployeeID: "emp-1", OriginalScore: model.Float(4.2), OriginalLevel: "exceeds_expectations",
			Justification: "entered against wrong person", AuthorID: "fac-1", CreatedAt: started.Add(20 * time.Minute),
		},
		{
			ID: "adj-1", SessionID: "ses-1", Seq: 1, Kind: model.AdjustmentApply,
			RatingID: "rat-1", EmployeeID: "emp-1", OriginalScore: model.Float(3.8), OriginalLevel: "exceeds_expectations",
			FinalScore: model.Float(4.2), FinalLevel: "exceeds_expectations",
			Justification: strings.Repeat("á", 300), AuthorID: "pan-1", CreatedAt: started.Add(10 * time.Minute),
		},
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a closed session with an apply and a revert", t, func() {
		g := audit.New(audit.WithBaseURL("https://verify.example.com/a/"))
		a, err := g.Generate(audit.Input{
			Session:      closedSession(),
			Entries:      entries(),
			Names:        map[string]string{"rat-1": "Grace Hopper"},
			BonusFactor:  model.Float(1.3),
			Version:      1,
			DisplayLimit: 280,
			GeneratedAt:  genAt,
		})
		So(err, ShouldBeNil)

		Convey("Rows follow sequence order", func() {
			So(a.Rows, ShouldHaveLength, 2)
			So(a.Rows[0].Seq, ShouldEqual, 1)
			So(a.Rows[1].Kind, ShouldEqual, model.AdjustmentRevert)
			So(a.Rows[0].EmployeeName, ShouldEqual, "Grace Hopper")
		})

		Convey("Long justifications are cut to the display limit and flagged", func() {
			So([]rune(a.Rows[0].Justification), ShouldHaveLength, 280)
			So(strings.HasSuffix(a.Rows[0].Justification, "…"), ShouldBeTrue)
			So(a.Rows[0].Truncated, ShouldBeTrue)
			So(a.Rows[1].Truncated, ShouldBeFalse)
		})

		Convey("The identifier and link derive from session and time", func() {
			So(a.ID, ShouldEqual, audit.ID("ses-1", genAt))
			So(a.ID, ShouldHaveLength, 64)
			So(a.VerificationURL, ShouldEqual, "https://verify.example.com/a/"+a.ID)
		})

		Convey("Verification passes on the untouched artifact", func() {
			So(audit.Verify(a), ShouldBeNil)
		})

		Convey("Any edit to the content fails verification", func() {
			a.Rows[0].FinalScore = model.Float(5)
			err := audit.Verify(a)
			So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)
		})

		Convey("A swapped identifier fails verification", func() {
			a.ID = audit.ID("ses-2", genAt)
			So(errors.Is(audit.Verify(a), model.ErrIntegrity), ShouldBeTrue)
		})

		Convey("A later generation gets a different identifier", func() {
			b, err := g.Generate(audit.Input{
				Session: closedSession(), Entries: entries(), Version: 2, DisplayLimit: 280,
				GeneratedAt: genAt.Add(time.Second),
			})
			So(err, ShouldBeNil)
			So(b.ID, ShouldNotEqual, a.ID)
			So(b.Version, ShouldEqual, 2)
		})

		Convey("JSON and YAML renderings parse back and still verify", func() {
			for _, f := range []audit.Format{audit.FormatJSON, audit.FormatYAML} {
				doc, err := audit.Render(a, f)
				So(err, ShouldBeNil)
				back, err := audit.Parse(doc, f)
				So(err, ShouldBeNil)
				So(cmp.Diff(a, back), ShouldBeEmpty)
				So(audit.Verify(back), ShouldBeNil)
			}
		})

		Convey("An unknown format is rejected", func() {
			_, err := audit.Render(a, "pdf")
			So(errors.Is(err, audit.ErrUnknownFormat), ShouldBeTrue)
		})
	})

	Convey("Given a session that is still in progress", t, func() {
		s := closedSession()
		s.Status = model.SessionInProgress
		_, err := audit.New().Generate(audit.Input{Session: s, Version: 1, GeneratedAt: genAt})
		So(errors.Is(err, audit.ErrSessionNotClosed), ShouldBeTrue)
	})
}
