// Package selector resolves path and accessor selectors against call results.
//
// Two forms are understood:
//
//	$.data.items[0].id    path into the JSON projection of the value
//	isSuccess()           zero-argument accessor on the value
//
// Either form may carry an expected literal after "=" or "==".
package selector

import (
	"errors"
	"strings"
)

// Kind distinguishes path selectors from accessor selectors.
type Kind int

const (
	KindPath Kind = iota
	KindAccessor
)

func (k Kind) String() string {
	switch k {
	case KindAccessor:
		return "accessor"
	default:
		return "path"
	}
}

// ErrEmptySelector is returned by Parse for blank input.
var ErrEmptySelector = errors.New("selector: empty selector")

// Selector is a parsed candidate.
type Selector struct {
	Kind Kind

	// Expr is the path or accessor text without the expectation.
	Expr string

	// Name is the accessor name for KindAccessor selectors.
	Name string

	Expect    string
	HasExpect bool
}

// Parsed is the result of evaluating one selector.
//
// Found=false means Value must be ignored. Found=true with a nil Value means
// the path exists and holds null.
type Parsed struct {
	Found     bool
	Value     any
	Expect    string
	HasExpect bool
}

// Parse splits raw into its expression and optional expected literal. The
// literal may be wrapped in single or double quotes.
func Parse(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Selector{}, ErrEmptySelector
	}

	var sel Selector
	if i := indexOutside(s, "=="); i >= 0 {
		sel.Expect, sel.HasExpect = unquote(s[i+2:]), true
		s = strings.TrimSpace(s[:i])
	} else if i := indexOutside(s, "="); i >= 0 {
		sel.Expect, sel.HasExpect = unquote(s[i+1:]), true
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return Selector{}, ErrEmptySelector
	}

	sel.Expr = s
	open, close := strings.Index(s, "("), strings.LastIndex(s, ")")
	if open >= 0 && close > open {
		sel.Kind = KindAccessor
		name := strings.TrimSpace(s[:open])
		name = strings.TrimPrefix(name, "$.")
		sel.Name = strings.TrimSpace(name)
		if sel.Name == "" {
			return Selector{}, ErrEmptySelector
		}
	}
	return sel, nil
}

// MustParse is Parse that panics on error. Use it for constant selectors.
func MustParse(raw string) Selector {
	sel, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return sel
}

func (s Selector) String() string {
	if !s.HasExpect {
		return s.Expr
	}
	return s.Expr + "=" + s.Expect
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func indexOutside(s, sub string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			continue
		case ch == '\'' || ch == '"':
			quote = ch
			continue
		case ch == '[' || ch == '(':
			depth++
			continue
		case ch == ']' || ch == ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 && strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}
