// Package config loads callscope configuration from an optional YAML file and
// CALLSCOPE_ environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

// DefaultEnvPrefix prefixes environment overrides. "__" separates nested
// keys: CALLSCOPE_POLICY__DEFAULT__DIGEST=on_fail.
const DefaultEnvPrefix = "CALLSCOPE_"

type Config struct {
	Application   string `koanf:"application"`
	Environment   string `koanf:"environment"`
	MetricPrefix  string `koanf:"metric_prefix"`
	LogLevel      string `koanf:"log_level"`
	MaxTextLength int    `koanf:"max_text_length"`
	MaxMetricIDs  int    `koanf:"max_metric_ids"`

	Classify ClassifyConfig `koanf:"classify"`
	Policy   PolicyConfig   `koanf:"policy"`
}

type ClassifyConfig struct {
	BoolExpr   string                     `koanf:"bool_expr"`
	CodeExpr   string                     `koanf:"code_expr"`
	MsgExpr    string                     `koanf:"msg_expr"`
	Components map[string]ComponentConfig `koanf:"components"`
}

// ComponentConfig configures one log point. Enabled defaults to true.
type ComponentConfig struct {
	Enabled  *bool  `koanf:"enabled"`
	BoolExpr string `koanf:"bool_expr"`
	CodeExpr string `koanf:"code_expr"`
	MsgExpr  string `koanf:"msg_expr"`
}

type PolicyConfig struct {
	Default   EntryConfig            `koanf:"default"`
	LogPoints map[string]EntryConfig `koanf:"log_points"`
	Exclude   ExcludeConfig          `koanf:"exclude"`
}

type EntryConfig struct {
	Digest        string        `koanf:"digest"`
	Detail        string        `koanf:"detail"`
	SlowThreshold time.Duration `koanf:"slow_threshold"`
	SlowMode      string        `koanf:"slow_mode"`
}

type ExcludeConfig struct {
	LogPoints []string `koanf:"log_points"`
	Services  []string `koanf:"services"`
	Actions   []string `koanf:"actions"`
}

type loadOptions struct {
	path      string
	envPrefix string
	skipEnv   bool
}

// Option configures Load.
type Option func(*loadOptions)

// WithFile loads path before environment overrides. A missing file is not an
// error.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithoutEnv disables environment overrides.
func WithoutEnv() Option {
	return func(o *loadOptions) { o.skipEnv = true }
}

// Load reads the file (if any), applies environment overrides and defaults,
// validates the merged document against the embedded schema and binds it.
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	k := koanf.New(".")

	if o.path != "" {
		if err := k.Load(file.Provider(o.path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", o.path, err)
			}
		}
	}

	if !o.skipEnv {
		prefix := o.envPrefix
		if err := k.Load(env.Provider(prefix, ".", func(s string) string {
			return strings.Replace(strings.ToLower(strings.TrimPrefix(s, prefix)), "__", ".", -1)
		}), nil); err != nil {
			return nil, err
		}
	}

	// Default values
	if !k.Exists("max_text_length") {
		k.Set("max_text_length", controlplane.DefaultMaxTextLength)
	}
	if !k.Exists("max_metric_ids") {
		k.Set("max_metric_ids", controlplane.DefaultMaxMetricIDs)
	}
	if !k.Exists("metric_prefix") {
		k.Set("metric_prefix", controlplane.DefaultMetricPrefix)
	}

	if err := Validate(k.Raw()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	// An explicit zero threshold on a log point disables slow detection
	// there instead of inheriting the default.
	for name, e := range cfg.Policy.LogPoints {
		if e.SlowThreshold == 0 && k.Exists("policy.log_points."+name+".slow_threshold") {
			e.SlowThreshold = policy.SlowDisabled
			cfg.Policy.LogPoints[name] = e
		}
	}
	return &cfg, nil
}

// Snapshot converts the configuration into a normalized control-plane
// snapshot.
func (c *Config) Snapshot() (controlplane.Snapshot, error) {
	if c == nil {
		return *controlplane.DefaultSnapshot(), nil
	}

	s := controlplane.Snapshot{
		Application:   c.Application,
		Environment:   c.Environment,
		MetricPrefix:  c.MetricPrefix,
		MaxTextLength: c.MaxTextLength,
		MaxMetricIDs:  c.MaxMetricIDs,
		LogLevel:      c.LogLevel,
		Defaults: classify.Defaults{
			BoolExpr: c.Classify.BoolExpr,
			CodeExpr: c.Classify.CodeExpr,
			MsgExpr:  c.Classify.MsgExpr,
		},
		Policies: policy.Set{
			Default: c.Policy.Default.entry(),
			Exclude: policy.Exclusions{
				LogPoints: c.Policy.Exclude.LogPoints,
				Services:  c.Policy.Exclude.Services,
				Actions:   c.Policy.Exclude.Actions,
			},
		},
	}

	if len(c.Classify.Components) > 0 {
		s.Components = make(map[observe.LogPoint]controlplane.Component, len(c.Classify.Components))
		for name, comp := range c.Classify.Components {
			enabled := true
			if comp.Enabled != nil {
				enabled = *comp.Enabled
			}
			s.Components[observe.LogPoint(name)] = controlplane.Component{
				Enabled: enabled,
				Defaults: classify.Defaults{
					BoolExpr: comp.BoolExpr,
					CodeExpr: comp.CodeExpr,
					MsgExpr:  comp.MsgExpr,
				},
			}
		}
	}

	if len(c.Policy.LogPoints) > 0 {
		s.Policies.LogPoints = make(map[observe.LogPoint]policy.Entry, len(c.Policy.LogPoints))
		for name, e := range c.Policy.LogPoints {
			s.Policies.LogPoints[observe.LogPoint(name)] = e.entry()
		}
	}

	n, err := s.Normalize()
	if err != nil {
		return controlplane.Snapshot{}, err
	}
	return n, nil
}

func (e EntryConfig) entry() policy.Entry {
	return policy.Entry{
		Digest:        policy.OutputLevel(e.Digest),
		Detail:        policy.OutputLevel(e.Detail),
		SlowThreshold: e.SlowThreshold,
		SlowMode:      policy.SlowMode(e.SlowMode),
	}
}

// SnapshotLoader returns a controlplane.LoadFunc that loads the file at the
// path it is given, plus environment overrides per opts.
func SnapshotLoader(opts ...Option) controlplane.LoadFunc {
	return func(_ context.Context, path string) (controlplane.Snapshot, error) {
		cfg, err := Load(append(append([]Option{}, opts...), WithFile(path))...)
		if err != nil {
			return controlplane.Snapshot{}, err
		}
		return cfg.Snapshot()
	}
}

// String renders the top-level settings for startup logs.
func (c *Config) String() string {
	if c == nil {
		return "<nil>"
	}
	return "application=" + c.Application +
		" environment=" + c.Environment +
		" metric_prefix=" + c.MetricPrefix +
		" max_text_length=" + strconv.Itoa(c.MaxTextLength) +
		" max_metric_ids=" + strconv.Itoa(c.MaxMetricIDs)
}
