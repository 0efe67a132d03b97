package controlplane

import (
	"fmt"
	"strings"
	"time"

	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/expression"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

const (
	DefaultMetricPrefix  = "callscope"
	DefaultMaxTextLength = 2048
	DefaultMaxMetricIDs  = 5000
	DefaultEnvironment   = "dev"
	DefaultApplication   = "unknown"
)

// Component is the per-log-point switch and expression overrides.
type Component struct {
	Enabled  bool
	Defaults classify.Defaults
}

// Snapshot is an immutable view of the engine configuration. Readers obtain
// it from a Store and never mutate it.
type Snapshot struct {
	Application   string
	Environment   string
	MetricPrefix  string
	MaxTextLength int
	// MaxMetricIDs caps the number of distinct metric identifiers.
	MaxMetricIDs int
	// LogLevel is the sink level name ("info" when blank).
	LogLevel string

	// Defaults are the global classification expressions.
	Defaults classify.Defaults
	// Components holds per-log-point overrides. Missing log points are
	// enabled and use Defaults.
	Components map[observe.LogPoint]Component

	Policies policy.Set

	Version  uint64
	Source   policy.PolicySource
	LoadedAt time.Time

	resolved map[observe.LogPoint]classify.Defaults
}

// DefaultSnapshot returns a normalized snapshot with built-in defaults.
func DefaultSnapshot() *Snapshot {
	s, err := Snapshot{Source: policy.PolicySourceDefault}.Normalize()
	if err != nil {
		panic(fmt.Sprintf("controlplane: default snapshot invalid: %v", err))
	}
	return &s
}

// Normalize fills defaults, normalizes policies and precomputes the
// per-log-point classification defaults.
func (s Snapshot) Normalize() (Snapshot, error) {
	out := s
	if strings.TrimSpace(out.Application) == "" {
		out.Application = DefaultApplication
	}
	if strings.TrimSpace(out.Environment) == "" {
		out.Environment = DefaultEnvironment
	}
	if strings.TrimSpace(out.MetricPrefix) == "" {
		out.MetricPrefix = DefaultMetricPrefix
	}
	if out.MaxTextLength <= 0 {
		out.MaxTextLength = DefaultMaxTextLength
	}
	if out.MaxMetricIDs <= 0 {
		out.MaxMetricIDs = DefaultMaxMetricIDs
	}
	if strings.TrimSpace(out.LogLevel) == "" {
		out.LogLevel = "info"
	}

	def := classify.DefaultDefaults()
	if strings.TrimSpace(out.Defaults.BoolExpr) == "" {
		out.Defaults.BoolExpr = def.BoolExpr
	}
	if strings.TrimSpace(out.Defaults.CodeExpr) == "" {
		out.Defaults.CodeExpr = def.CodeExpr
	}
	if strings.TrimSpace(out.Defaults.MsgExpr) == "" {
		out.Defaults.MsgExpr = def.MsgExpr
	}

	set, err := out.Policies.Normalize()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	out.Policies = set

	out.resolved = make(map[observe.LogPoint]classify.Defaults, len(out.Components))
	components := make(map[observe.LogPoint]Component, len(out.Components))
	for lp, c := range out.Components {
		components[lp] = c
		out.resolved[lp] = classify.Defaults{
			BoolExpr: mergeExpr(out.Defaults.BoolExpr, c.Defaults.BoolExpr),
			CodeExpr: mergeExpr(out.Defaults.CodeExpr, c.Defaults.CodeExpr),
			MsgExpr:  mergeExpr(out.Defaults.MsgExpr, c.Defaults.MsgExpr),
		}
	}
	out.Components = components
	return out, nil
}

func mergeExpr(global, component string) string {
	spec := expression.Merge(global, component)
	spec.Append = false
	return spec.String()
}

// Enabled reports whether calls at lp are classified and dispatched.
func (s *Snapshot) Enabled(lp observe.LogPoint) bool {
	if s == nil {
		return true
	}
	if c, ok := s.Components[lp]; ok {
		return c.Enabled
	}
	return true
}

// DefaultsFor returns the classification defaults for lp: the component
// expressions merged over the global ones.
func (s *Snapshot) DefaultsFor(lp observe.LogPoint) classify.Defaults {
	if s == nil {
		return classify.DefaultDefaults()
	}
	if d, ok := s.resolved[lp]; ok {
		return d
	}
	if c, ok := s.Components[lp]; ok {
		return classify.Defaults{
			BoolExpr: mergeExpr(s.Defaults.BoolExpr, c.Defaults.BoolExpr),
			CodeExpr: mergeExpr(s.Defaults.CodeExpr, c.Defaults.CodeExpr),
			MsgExpr:  mergeExpr(s.Defaults.MsgExpr, c.Defaults.MsgExpr),
		}
	}
	return s.Defaults
}

// Policy returns the output policy for lp.
func (s *Snapshot) Policy(lp observe.LogPoint) policy.Entry {
	if s == nil {
		return policy.DefaultEntry()
	}
	return s.Policies.For(lp)
}

// IsProduction reports whether the environment names a production profile.
func (s *Snapshot) IsProduction() bool {
	if s == nil {
		return false
	}
	return IsProduction(s.Environment)
}

// IsProduction reports whether env is "prod" or "production".
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}
