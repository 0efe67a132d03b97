package callscope

import (
	"strings"

	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

// Site describes one instrumented call site. Build it once at registration
// time with NewSite and reuse it for every call.
type Site struct {
	LogPoint observe.LogPoint
	Service  string
	Action   string

	// Rule overrides the classification defaults for this site. When zero,
	// RuleName is looked up in the engine's rule registry, and when that is
	// blank too the built-in rule for LogPoint is used.
	Rule     classify.Rule
	RuleName string

	// Tags is a flat key/value template list, see tags.Builder.Build.
	Tags []string
}

// SiteOption configures a Site.
type SiteOption func(*Site)

// NewSite returns a site for lp. key is "service.action" (see policy.ParseKey).
func NewSite(lp observe.LogPoint, key string, opts ...SiteOption) Site {
	k := policy.ParseKey(key)
	s := Site{LogPoint: lp, Service: k.Service, Action: k.Action}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// Key returns the site's service/action key.
func (s Site) Key() policy.Key {
	return policy.Key{Service: s.Service, Action: s.Action}
}

func WithRule(rule classify.Rule) SiteOption {
	return func(s *Site) { s.Rule = rule }
}

// WithRuleName selects a rule registered in the engine's registry.
func WithRuleName(name string) SiteOption {
	return func(s *Site) { s.RuleName = strings.TrimSpace(name) }
}

func WithStrategy(st classify.Strategy) SiteOption {
	return func(s *Site) { s.Rule.Strategy = st }
}

// WithBoolExpr sets the success expression. A leading "+" extends the
// defaults instead of replacing them.
func WithBoolExpr(expr string) SiteOption {
	return func(s *Site) { s.Rule.BoolExpr = expr }
}

func WithCodeExpr(expr string) SiteOption {
	return func(s *Site) { s.Rule.CodeExpr = expr }
}

func WithMsgExpr(expr string) SiteOption {
	return func(s *Site) { s.Rule.MsgExpr = expr }
}

// WithTags appends tag templates, e.g. WithTags("tenant", "{tenantId}").
func WithTags(templates ...string) SiteOption {
	return func(s *Site) { s.Tags = append(s.Tags, templates...) }
}

func (s Site) rule(reg *classify.Registry) classify.Rule {
	if !s.Rule.IsZero() {
		return s.Rule
	}
	if s.RuleName != "" {
		if rule, ok := reg.Get(s.RuleName); ok {
			return rule
		}
	}
	return classify.AutoRule(reg, s.LogPoint)
}
