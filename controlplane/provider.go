package controlplane

import (
	"context"

	"github.com/aponysus/callscope/policy"
)

// Provider supplies configuration snapshots.
type Provider interface {
	// Snapshot returns the current configuration. Implementations return
	// normalized snapshots; callers must not mutate them.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Snapshot, error)

func (f ProviderFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	if f == nil {
		return Snapshot{}, ErrProviderUnavailable
	}
	return f(ctx)
}

// StaticProvider is an in-process Provider backed by a fixed configuration.
type StaticProvider struct {
	Config Snapshot
}

func (p *StaticProvider) Snapshot(_ context.Context) (Snapshot, error) {
	if p == nil {
		return *DefaultSnapshot(), nil
	}
	s := p.Config
	if s.Source == "" || s.Source == policy.PolicySourceUnknown {
		s.Source = policy.PolicySourceStatic
	}
	return s.Normalize()
}
