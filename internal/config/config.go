// Package config defines process configuration and how it is loaded.
//
// Conventions:
// - New(ctx) returns a Config populated with defaults.
// - Load layers .env, an optional YAML file and PERFCAL_ env vars on top.
// - Errors returned by this package wrap ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	Store StoreConfig `koanf:"store"`

	// WorkerCount sets the number of recalculation workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxRankingLimit caps GET /cycles/{id}/ranking?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// IdempotencySize bounds the adjustment idempotency cache.
	IdempotencySize int `koanf:"idempotency_size"`

	// VerificationBaseURL prefixes the verification URL of audit artifacts.
	VerificationBaseURL string `koanf:"verification_base_url"`

	// Policy overrides fields of the built-in default policy.
	Policy PolicyConfig `koanf:"policy"`

	// Tenants overrides fields of the default policy per tenant ID.
	Tenants map[string]PolicyConfig `koanf:"tenants"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	// AutoMigrate creates the schema on startup for gorm-backed drivers.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// RangeConfig is a closed numeric interval. Both zero means unset.
type RangeConfig struct {
	Min float64 `koanf:"min"`
	Max float64 `koanf:"max"`
}

// BandConfig is one score band.
type BandConfig struct {
	Label string  `koanf:"label"`
	Min   float64 `koanf:"min"`
}

// ThresholdConfig bins one nine-box axis. Both zero means unset.
type ThresholdConfig struct {
	Medium float64 `koanf:"medium"`
	High   float64 `koanf:"high"`
}

// PolicyConfig is a partial policy. Zero fields keep the base value.
type PolicyConfig struct {
	Scale                     RangeConfig        `koanf:"scale"`
	ResponseScale             RangeConfig        `koanf:"response_scale"`
	Weights                   map[string]float64 `koanf:"weights"`
	Bands                     []BandConfig       `koanf:"bands"`
	Performance               ThresholdConfig    `koanf:"performance"`
	Potential                 ThresholdConfig    `koanf:"potential"`
	Bonus                     map[string]float64 `koanf:"bonus"`
	MinJustification          int                `koanf:"min_justification"`
	JustificationDisplayLimit int                `koanf:"justification_display_limit"`
	RequireSignOff            *bool              `koanf:"require_sign_off"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		Store:           StoreConfig{Driver: "memory", AutoMigrate: true},
		WorkerCount:     runtime.NumCPU() * 2,
		MaxRankingLimit: 1000,
		IdempotencySize: 10_000,
	}
}

// Validate checks the process settings and every policy.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.Store.Driver {
	case "memory", "":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.MaxRankingLimit < 1 {
		return fmt.Errorf("%w: max_ranking_limit must be positive", ErrInvalidConfig)
	}
	if c.IdempotencySize < 1 {
		return fmt.Errorf("%w: idempotency_size must be positive", ErrInvalidConfig)
	}
	_, err := c.Policies()
	return err
}

// Policies builds the tenant policy provider. The default policy is the
// built-in one with Policy applied; each tenant starts from that default.
func (c *Config) Policies() (*policy.Static, error) {
	def := c.Policy.apply(policy.Default())
	tenants := make(map[string]policy.Policy, len(c.Tenants))
	for id, pc := range c.Tenants {
		tenants[id] = pc.apply(def)
	}
	p, err := policy.NewStatic(def, tenants)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

func (pc PolicyConfig) apply(base policy.Policy) policy.Policy {
	out := base
	if pc.Scale != (RangeConfig{}) {
		out.Scale = policy.Range{Min: pc.Scale.Min, Max: pc.Scale.Max}
	}
	if pc.ResponseScale != (RangeConfig{}) {
		out.ResponseScale = policy.Range{Min: pc.ResponseScale.Min, Max: pc.ResponseScale.Max}
	}
	if len(pc.Weights) > 0 {
		out.Weights = make(map[model.RaterRole]float64, len(pc.Weights))
		for role, w := range pc.Weights {
			out.Weights[model.RaterRole(role)] = w
		}
	}
	if len(pc.Bands) > 0 {
		out.Bands = make([]policy.Band, len(pc.Bands))
		for i, b := range pc.Bands {
			out.Bands[i] = policy.Band{Label: b.Label, Min: b.Min}
		}
	}
	if pc.Performance != (ThresholdConfig{}) {
		out.Performance = policy.Thresholds{Medium: pc.Performance.Medium, High: pc.Performance.High}
	}
	if pc.Potential != (ThresholdConfig{}) {
		out.Potential = policy.Thresholds{Medium: pc.Potential.Medium, High: pc.Potential.High}
	}
	if len(pc.Bonus) > 0 {
		// Bonus entries merge so a tenant can change one multiplier.
		bonus := make(map[model.Position]float64, len(base.Bonus)+len(pc.Bonus))
		for pos, v := range base.Bonus {
			bonus[pos] = v
		}
		for pos, v := range pc.Bonus {
			bonus[model.Position(pos)] = v
		}
		out.Bonus = bonus
	}
	if pc.MinJustification != 0 {
		out.MinJustification = pc.MinJustification
	}
	if pc.JustificationDisplayLimit != 0 {
		out.JustificationDisplayLimit = pc.JustificationDisplayLimit
	}
	if pc.RequireSignOff != nil {
		out.RequireSignOff = *pc.RequireSignOff
	}
	return out
}
