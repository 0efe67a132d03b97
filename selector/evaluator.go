package selector

import (
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/aponysus/callscope/internal"
)

// Evaluator resolves selectors against values. It is safe for concurrent use.
type Evaluator struct {
	resolver AccessorResolver
	getters  *Getters
	logger   *slog.Logger

	cacheSize int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithAccessorResolver replaces the default accessor chain.
func WithAccessorResolver(r AccessorResolver) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithGetters sets the getter registry consulted by the default chain.
func WithGetters(g *Getters) Option {
	return func(e *Evaluator) {
		if g != nil {
			e.getters = g
		}
	}
}

// WithLogger sets the debug logger for swallowed evaluation errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCacheSize bounds the reflective lookup cache of the default chain.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		e.cacheSize = n
	}
}

// NewEvaluator returns an Evaluator. Without WithAccessorResolver, accessors
// resolve through the Accessor interface, registered getters, string-keyed
// maps and finally reflection, in that order.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.getters == nil {
		e.getters = NewGetters()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.resolver == nil {
		e.resolver = ChainResolver{
			InterfaceResolver{},
			e.getters,
			MapResolver{},
			NewReflectResolver(e.cacheSize),
		}
	}
	return e
}

// Getters returns the getter registry used by the default chain.
func (e *Evaluator) Getters() *Getters {
	if e == nil {
		return nil
	}
	return e.getters
}

// Evaluate resolves sel against value. It never panics; failures report
// Found=false.
func (e *Evaluator) Evaluate(value any, sel Selector) (p Parsed) {
	p = Parsed{Expect: sel.Expect, HasExpect: sel.HasExpect}
	defer func() {
		if r := recover(); r != nil {
			e.debug("selector panic", sel, fmt.Errorf("%v", r))
			p = Parsed{Expect: sel.Expect, HasExpect: sel.HasExpect}
		}
	}()

	if internal.IsEmpty(value) {
		return p
	}

	switch sel.Kind {
	case KindAccessor:
		v, ok := e.resolveAccessor(value, sel.Name)
		if !ok {
			return p
		}
		p.Found, p.Value = true, v
		return p
	default:
		v, ok, err := e.resolvePath(value, sel.Expr)
		if err != nil {
			e.debug("selector path failed", sel, err)
			return p
		}
		p.Found, p.Value = ok, v
		return p
	}
}

// EvaluateString parses raw and evaluates it. Parse errors report
// Found=false.
func (e *Evaluator) EvaluateString(value any, raw string) Parsed {
	sel, err := Parse(raw)
	if err != nil {
		e.debug("selector parse failed", Selector{Expr: raw}, err)
		return Parsed{}
	}
	return e.Evaluate(value, sel)
}

func (e *Evaluator) resolveAccessor(value any, name string) (any, bool) {
	r := e.resolver
	if r == nil {
		r = ChainResolver{InterfaceResolver{}, MapResolver{}}
	}
	return r.ResolveAccessor(value, name)
}

func (e *Evaluator) resolvePath(value any, expr string) (any, bool, error) {
	segs, err := segments(expr)
	if err != nil {
		return nil, false, err
	}
	if len(segs) == 0 {
		return value, true, nil
	}

	doc, ok, err := project(value)
	if err != nil || !ok {
		return nil, false, err
	}
	res := gjson.GetBytes(doc, gjsonPath(segs))
	if !res.Exists() {
		return nil, false, nil
	}
	return resultValue(res), true, nil
}

func (e *Evaluator) debug(msg string, sel Selector, err error) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Debug(msg, slog.String("selector", sel.String()), slog.Any("error", err))
}
