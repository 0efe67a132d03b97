package policy

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/aponysus/callscope/observe"
)

// Exclusions suppress log printing for matching calls. Patterns are globs
// ("*" matches any run of characters).
type Exclusions struct {
	LogPoints []string `json:"log_points,omitempty" koanf:"log_points"`
	Services  []string `json:"services,omitempty" koanf:"services"`
	Actions   []string `json:"actions,omitempty" koanf:"actions"`

	compiled *compiledExclusions
}

type compiledExclusions struct {
	logPoints []glob.Glob
	services  []glob.Glob
	actions   []glob.Glob
}

// IsZero reports whether no pattern is configured.
func (e Exclusions) IsZero() bool {
	return len(e.LogPoints) == 0 && len(e.Services) == 0 && len(e.Actions) == 0
}

// Merge returns the union of e and other, keeping order and dropping
// duplicates.
func (e Exclusions) Merge(other Exclusions) Exclusions {
	return Exclusions{
		LogPoints: union(e.LogPoints, other.LogPoints),
		Services:  union(e.Services, other.Services),
		Actions:   union(e.Actions, other.Actions),
	}
}

// Match reports whether a call at lp for key is excluded. Action patterns
// match the bare action or "service.action".
func (e Exclusions) Match(lp observe.LogPoint, key Key) bool {
	if e.IsZero() {
		return false
	}
	c := e.compiled
	if c == nil {
		compiled, err := compileExclusions(e)
		if err != nil {
			return false
		}
		c = compiled
	}
	if matchAny(c.logPoints, lp.String()) {
		return true
	}
	if key.Service != "" && matchAny(c.services, key.Service) {
		return true
	}
	if key.Action != "" && (matchAny(c.actions, key.Action) || matchAny(c.actions, key.String())) {
		return true
	}
	return false
}

func (e Exclusions) compile() (Exclusions, error) {
	c, err := compileExclusions(e)
	if err != nil {
		return Exclusions{}, err
	}
	e.compiled = c
	return e, nil
}

func compileExclusions(e Exclusions) (*compiledExclusions, error) {
	var (
		c   compiledExclusions
		err error
	)
	if c.logPoints, err = compileAll("exclude.log_points", e.LogPoints); err != nil {
		return nil, err
	}
	if c.services, err = compileAll("exclude.services", e.Services); err != nil {
		return nil, err
	}
	if c.actions, err = compileAll("exclude.actions", e.Actions); err != nil {
		return nil, err
	}
	return &c, nil
}

func compileAll(field string, patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, &NormalizeError{Field: field, Value: p, Err: err}
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
