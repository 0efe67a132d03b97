package classify

import (
	"log/slog"
	"strings"

	"github.com/aponysus/callscope/expression"
	"github.com/aponysus/callscope/internal"
	"github.com/aponysus/callscope/selector"
)

// Classifier derives success, code and message for a finished call.
// It is safe for concurrent use.
type Classifier struct {
	eval    *selector.Evaluator
	specs   *expression.Cache
	mappers []ErrorMapper
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithEvaluator sets the selector evaluator.
func WithEvaluator(e *selector.Evaluator) Option {
	return func(c *Classifier) {
		if e != nil {
			c.eval = e
		}
	}
}

// WithSpecCache sets the cache for merged expression lists.
func WithSpecCache(cache *expression.Cache) Option {
	return func(c *Classifier) {
		if cache != nil {
			c.specs = cache
		}
	}
}

// WithErrorMapper adds a transport-specific error mapper. Mappers run in
// registration order before the built-in taxonomy.
func WithErrorMapper(m ErrorMapper) Option {
	return func(c *Classifier) {
		if m != nil {
			c.mappers = append(c.mappers, m)
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.eval == nil {
		c.eval = selector.NewEvaluator(selector.WithLogger(c.logger))
	}
	if c.specs == nil {
		c.specs = expression.NewCache(0)
	}
	return c
}

// Classify derives the outcome of a call that returned resp and err.
//
// An error short-circuits to the taxonomy. Otherwise the bool expression
// (rule merged over defaults) and the strategy decide success, and the code
// and message expressions fill in the rest, falling back to the SUCCESS and
// FAILED sentinels. Classify is pure: identical inputs give identical outputs.
func (c *Classifier) Classify(resp any, err error, rule Rule, defaults Defaults) Outcome {
	if c == nil {
		c = defaultClassifier
	}
	if err != nil {
		kind := c.kindOf(err)
		return Outcome{
			Success:   false,
			Code:      kind.Code(),
			Message:   kind.Message(),
			ErrorKind: kind,
		}
	}

	var out Outcome
	switch rule.Strategy {
	case StrategyIfNotNull:
		out.Success = !internal.IsTypedNil(resp)
	case StrategyIfNotEmpty:
		out.Success = !internal.IsEmpty(resp)
	case StrategyIfNotException:
		out.Success = true
	case StrategyIfSuccess:
		out.Success, out.Determined = c.evalBool(resp, c.specs.Merge(defaults.BoolExpr, rule.BoolExpr))
		out.Success = out.Success && out.Determined
	default:
		out.Success, out.Determined = c.evalBool(resp, c.specs.Merge(defaults.BoolExpr, rule.BoolExpr))
		if !out.Determined {
			out.Success = true
		}
	}

	out.Code = c.evalText(resp, c.specs.Merge(defaults.CodeExpr, rule.CodeExpr))
	out.Message = c.evalText(resp, c.specs.Merge(defaults.MsgExpr, rule.MsgExpr))
	if out.Code == "" {
		out.Code = sentinel(out.Success)
	}
	if out.Message == "" {
		out.Message = sentinel(out.Success)
	}
	return out
}

// Kind maps err onto the taxonomy using the classifier's mappers.
func (c *Classifier) Kind(err error) ErrorKind {
	if c == nil {
		return KindOf(err)
	}
	return c.kindOf(err)
}

func (c *Classifier) kindOf(err error) ErrorKind {
	for _, m := range c.mappers {
		if kind, ok := m(err); ok && kind != ErrorKindNone {
			return kind
		}
	}
	return KindOf(err)
}

// evalBool walks the candidates in order. The first compatible true result
// wins; otherwise the first compatible result, then the first incompatible
// one. determined is false when no candidate was found.
func (c *Classifier) evalBool(resp any, spec expression.Spec) (value, determined bool) {
	var (
		fallback, fallbackSet bool
		last, lastSet         bool
	)
	for _, raw := range spec.Candidates() {
		sel, err := selector.Parse(raw)
		if err != nil {
			c.logger.Debug("classify: bad bool candidate", slog.String("candidate", raw), slog.Any("error", err))
			continue
		}
		p := c.eval.Evaluate(resp, sel)
		if !p.Found {
			continue
		}
		result, compatible := judge(p)
		switch {
		case compatible && result:
			return true, true
		case compatible:
			if !fallbackSet {
				fallback, fallbackSet = result, true
			}
		default:
			if !lastSet {
				last, lastSet = result, true
			}
		}
	}
	switch {
	case fallbackSet:
		return fallback, true
	case lastSet:
		return last, true
	default:
		return false, false
	}
}

// evalText returns the first found, non-blank candidate value. Expected
// literals are ignored.
func (c *Classifier) evalText(resp any, spec expression.Spec) string {
	for _, raw := range spec.Candidates() {
		sel, err := selector.Parse(raw)
		if err != nil {
			continue
		}
		sel.Expect, sel.HasExpect = "", false
		p := c.eval.Evaluate(resp, sel)
		if !p.Found {
			continue
		}
		if s := strings.TrimSpace(internal.Stringify(p.Value)); s != "" {
			return s
		}
	}
	return ""
}

func sentinel(success bool) string {
	if success {
		return SentinelSuccess
	}
	return SentinelFailed
}

var defaultClassifier = NewClassifier()

// Classify classifies with a shared default Classifier.
func Classify(resp any, err error, rule Rule, defaults Defaults) Outcome {
	return defaultClassifier.Classify(resp, err, rule, defaults)
}
