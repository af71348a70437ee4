package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/perfcal/internal/config"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.Store.Driver, convey.ShouldEqual, "memory")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.MaxRankingLimit, convey.ShouldEqual, 1000)
			convey.So(cfg.IdempotencySize, convey.ShouldEqual, 10_000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When the address is empty", func() {
			cfg.Addr = ""
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a database driver has no DSN", func() {
			cfg.Store.Driver = "postgres"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.Store.DSN = "postgres://localhost/perfcal"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.Store.Driver = "mongo"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the log format is unknown", func() {
			cfg.LogFormat = "xml"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When sizes are not positive", func() {
			cfg.WorkerCount = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.WorkerCount = 1
			cfg.MaxRankingLimit = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.MaxRankingLimit = 1
			cfg.IdempotencySize = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a tenant policy is invalid", func() {
			cfg.Tenants = map[string]config.PolicyConfig{
				"acme": {Performance: config.ThresholdConfig{Medium: 4, High: 3}},
			}
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			var ve *model.ValidationError
			convey.So(errors.As(err, &ve), convey.ShouldBeTrue)
			convey.So(ve.Field, convey.ShouldEqual, "performance")
		})
	})
}

func TestConfig_Policies(t *testing.T) {
	convey.Convey("Given policy overrides", t, func() {
		ctx := context.Background()
		on := true
		cfg := config.New(ctx)
		cfg.Policy = config.PolicyConfig{MinJustification: 15}
		cfg.Tenants = map[string]config.PolicyConfig{
			"acme": {
				Bonus:          map[string]float64{"star": 2},
				RequireSignOff: &on,
				Weights:        map[string]float64{"manager": 1},
			},
		}

		p, err := cfg.Policies()
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the default carries the global override", func() {
			def, err := p.Policy(ctx, "other")
			convey.So(err, convey.ShouldBeNil)
			convey.So(def.MinJustification, convey.ShouldEqual, 15)
			convey.So(def.RequireSignOff, convey.ShouldBeFalse)
			convey.So(def.Bonus[model.PositionStar], convey.ShouldEqual, 1.5)
		})

		convey.Convey("Then a tenant layers on top of the default", func() {
			acme, err := p.Policy(ctx, "acme")
			convey.So(err, convey.ShouldBeNil)
			convey.So(acme.MinJustification, convey.ShouldEqual, 15)
			convey.So(acme.RequireSignOff, convey.ShouldBeTrue)
			convey.So(acme.Bonus[model.PositionStar], convey.ShouldEqual, 2.0)
			convey.So(acme.Bonus[model.PositionRisk], convey.ShouldEqual, 0.0)
			convey.So(acme.Weights, convey.ShouldResemble, map[model.RaterRole]float64{model.RoleManager: 1})
			convey.So(acme.Bands, convey.ShouldResemble, policy.Default().Bands)
		})
	})
}
