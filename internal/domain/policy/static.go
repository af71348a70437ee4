package policy

import (
	"context"
	"fmt"
)

// Provider resolves the policy for a tenant.
type Provider interface {
	Policy(ctx context.Context, tenantID string) (Policy, error)
}

// Static serves a default policy plus fixed per-tenant overrides.
type Static struct {
	def     Policy
	tenants map[string]Policy
}

// NewStatic validates every policy up front so an invalid tenant setup is
// rejected at load time rather than on first use.
func NewStatic(def Policy, tenants map[string]Policy) (*Static, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	cp := make(map[string]Policy, len(tenants))
	for id, p := range tenants {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("tenant %s policy: %w", id, err)
		}
		cp[id] = p
	}
	return &Static{def: def, tenants: cp}, nil
}

// Policy returns the tenant override or the default.
func (s *Static) Policy(_ context.Context, tenantID string) (Policy, error) {
	if p, ok := s.tenants[tenantID]; ok {
		return p, nil
	}
	return s.def, nil
}
