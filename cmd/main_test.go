package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/perfcal/internal/config"
	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/logger"
)

// run executes the root command with args and returns its combined output.
func run(args ...string) (string, error) {
	verifyFlags.format = ""
	policyFlags.tenant = ""
	serveFlags.addr = ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func artifact() *model.AuditArtifact {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	a, err := audit.New().Generate(audit.Input{
		Session: &model.CalibrationSession{
			ID: "ses-1", TenantID: "acme", CycleID: "cyc-1", Name: "Ops H1",
			Status: model.SessionClosed, FacilitatorID: "fac-1",
			RatingIDs: []string{"rat-1"}, StartedAt: &start, ClosedAt: &end,
		},
		Entries: []model.CalibrationAdjustment{{
			ID: "adj-1", SessionID: "ses-1", Seq: 1, Kind: model.AdjustmentApply,
			RatingID: "rat-1", EmployeeID: "emp-1",
			OriginalScore: model.Float(3.1), OriginalLevel: "meets_expectations",
			FinalScore: model.Float(3.6), FinalLevel: "exceeds_expectations",
			Justification: "led the incident review programme", AuthorID: "fac-1",
			CreatedAt: start.Add(10 * time.Minute),
		}},
		Names:        map[string]string{"rat-1": "Linus"},
		Version:      1,
		DisplayLimit: 280,
		GeneratedAt:  end,
	})
	if err != nil {
		panic(err)
	}
	return a
}

func writeArtifact(dir, name string, a *model.AuditArtifact, f audit.Format) string {
	data, err := audit.Render(a, f)
	if err != nil {
		panic(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		panic(err)
	}
	return path
}

func TestVerifyCommand(t *testing.T) {
	convey.Convey("Given exported artifacts", t, func() {
		dir := t.TempDir()
		a := artifact()

		convey.Convey("When a JSON export is untouched", func() {
			out, err := run("verify", writeArtifact(dir, "a.json", a, audit.FormatJSON))

			convey.Convey("Then it verifies", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "artifact "+a.ID+" verified")
				convey.So(out, convey.ShouldContainSubstring, "1 rows")
			})
		})

		convey.Convey("When a YAML export is untouched", func() {
			out, err := run("verify", writeArtifact(dir, "a.yml", a, audit.FormatYAML))
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "verified")
		})

		convey.Convey("When the format flag disagrees with the extension", func() {
			path := writeArtifact(dir, "a.txt", a, audit.FormatYAML)
			_, err := run("verify", "--format", "yaml", path)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When a row was edited after export", func() {
			a.Rows[0].FinalScore = model.Float(4.9)
			_, err := run("verify", writeArtifact(dir, "b.json", a, audit.FormatJSON))

			convey.Convey("Then the digest mismatch is reported", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "digest")
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := run("verify", filepath.Join(dir, "missing.json"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestPolicyCheckCommand(t *testing.T) {
	convey.Convey("Given a tenant override in the environment", t, func() {
		_ = os.Setenv("PERFCAL_TENANTS__ACME__MIN_JUSTIFICATION", "20")
		defer func() { _ = os.Unsetenv("PERFCAL_TENANTS__ACME__MIN_JUSTIFICATION") }()

		convey.Convey("When checking without a tenant", func() {
			out, err := run("policy", "check")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "default + 1 tenant override(s)")
			convey.So(out, convey.ShouldContainSubstring, "  acme")
		})

		convey.Convey("When printing the resolved tenant policy", func() {
			out, err := run("policy", "check", "--tenant", "acme")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "min_justification: 20")
			convey.So(out, convey.ShouldContainSubstring, "star: 1.5")
		})

		convey.Convey("When the override is invalid", func() {
			_ = os.Setenv("PERFCAL_TENANTS__ACME__MIN_JUSTIFICATION", "400")
			_, err := run("policy", "check")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestBuild(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		for _, store := range []config.StoreConfig{
			{Driver: "memory"},
			{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true},
		} {
			convey.Convey("When the server is built on the "+store.Driver+" store", func() {
				cfg.Store = store
				srv, stop, err := build(ctx, cfg, logger.Discard())
				convey.So(err, convey.ShouldBeNil)
				defer stop()
				convey.So(srv.Addr, convey.ShouldEqual, ":9080")

				convey.Convey("Then the API answers", func() {
					rec := httptest.NewRecorder()
					srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
					convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

					rec = httptest.NewRecorder()
					srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
					convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

					req := httptest.NewRequest(http.MethodPost, "/cycles", strings.NewReader(`{"name":"FY26"}`))
					req.Header.Set("X-Tenant-ID", "acme")
					rec = httptest.NewRecorder()
					srv.Handler.ServeHTTP(rec, req)
					convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)
				})
			})
		}

		convey.Convey("When the store driver is unknown", func() {
			cfg.Store = config.StoreConfig{Driver: "mongo"}
			_, _, err := build(ctx, cfg, logger.Discard())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
