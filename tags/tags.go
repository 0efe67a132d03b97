// Package tags resolves user tag templates into concrete metric tags.
package tags

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/aponysus/callscope/internal"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/selector"
)

// Sentinel replaces placeholders that resolve to nothing.
const Sentinel = "00"

var placeholder = regexp.MustCompile(`^\$?\{([^{}]+)\}$`)

// Sources are the request-side values placeholders are looked up in, in
// field order.
type Sources struct {
	// Args are the call arguments. Only the first is consulted.
	Args    []any
	Query   url.Values
	Body    url.Values
	Headers http.Header
}

// Builder resolves templates. The zero value is not usable; use NewBuilder.
type Builder struct {
	eval *selector.Evaluator
}

// NewBuilder returns a Builder that navigates arguments with eval, or with a
// fresh evaluator when eval is nil.
func NewBuilder(eval *selector.Evaluator) *Builder {
	if eval == nil {
		eval = selector.NewEvaluator()
	}
	return &Builder{eval: eval}
}

// Build resolves a flat key/value template list into tags. Elements written as
// {name} or ${name} are looked up in src; other elements pass through. A
// trailing key without a value gets Sentinel.
func (b *Builder) Build(templates []string, src Sources) []observe.Tag {
	if len(templates) == 0 {
		return nil
	}
	out := make([]observe.Tag, 0, (len(templates)+1)/2)
	for i := 0; i < len(templates); i += 2 {
		key := b.Resolve(templates[i], src)
		value := Sentinel
		if i+1 < len(templates) {
			value = b.Resolve(templates[i+1], src)
		}
		out = append(out, observe.Tag{Key: key, Value: value})
	}
	return out
}

// Resolve resolves a single template element.
func (b *Builder) Resolve(element string, src Sources) string {
	m := placeholder.FindStringSubmatch(strings.TrimSpace(element))
	if m == nil {
		return element
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return Sentinel
	}
	for _, lookup := range []func(string, Sources) string{b.fromArgs, fromQuery, fromBody, fromHeaders} {
		if v := strings.TrimSpace(lookup(name, src)); v != "" {
			return v
		}
	}
	return Sentinel
}

func (b *Builder) fromArgs(name string, src Sources) string {
	if len(src.Args) == 0 {
		return ""
	}
	p := b.eval.EvaluateString(src.Args[0], "$."+name)
	if !p.Found {
		return ""
	}
	return internal.Stringify(p.Value)
}

func fromQuery(name string, src Sources) string {
	return src.Query.Get(name)
}

func fromBody(name string, src Sources) string {
	return src.Body.Get(name)
}

func fromHeaders(name string, src Sources) string {
	h := src.Headers
	if h == nil {
		return ""
	}
	for _, key := range []string{name, strings.ToLower(name), strings.ToUpper(name)} {
		if vs := h[key]; len(vs) > 0 && strings.TrimSpace(vs[0]) != "" {
			return vs[0]
		}
	}
	return h.Get(name)
}

var defaultBuilder = NewBuilder(nil)

// Build resolves templates with a shared default Builder.
func Build(templates []string, src Sources) []observe.Tag {
	return defaultBuilder.Build(templates, src)
}

// HasPlaceholder reports whether any element is a placeholder.
func HasPlaceholder(templates []string) bool {
	for _, t := range templates {
		if placeholder.MatchString(strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}
