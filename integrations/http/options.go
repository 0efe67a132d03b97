// Package http instruments net/http clients and servers: Transport reports
// outbound calls at the http_client log point and Middleware reports inbound
// requests at the http_server log point.
package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/observe"
)

const (
	// DefaultTraceHeader carries the trace id between services.
	DefaultTraceHeader = "X-Trace-Id"
	// DefaultMaxBody bounds the response bytes captured for classification.
	DefaultMaxBody = 64 << 10
	// DefaultService names inbound requests when no service is configured.
	DefaultService = "http"
)

type config struct {
	engine      *callscope.Engine
	keyFunc     func(*http.Request) callscope.Key
	service     string
	rule        classify.Rule
	tags        []string
	maxBody     int64
	traceHeader string
}

// Option configures Transport and Middleware.
type Option func(*config)

// WithEngine selects the engine. The default engine is used otherwise.
func WithEngine(e *callscope.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithKeyFunc overrides how a request maps to a service/action key.
func WithKeyFunc(fn func(*http.Request) callscope.Key) Option {
	return func(c *config) { c.keyFunc = fn }
}

// WithService names the service for inbound requests.
func WithService(name string) Option {
	return func(c *config) { c.service = strings.TrimSpace(name) }
}

// WithRule overrides the built-in HTTP classification rule.
func WithRule(rule classify.Rule) Option {
	return func(c *config) { c.rule = rule }
}

// WithTags sets tag templates resolved against URL params, query, form body
// and headers.
func WithTags(templates ...string) Option {
	return func(c *config) { c.tags = append(c.tags, templates...) }
}

// WithMaxBody bounds the captured response body. Zero disables capture.
func WithMaxBody(n int64) Option {
	return func(c *config) { c.maxBody = n }
}

func WithTraceHeader(name string) Option {
	return func(c *config) { c.traceHeader = http.CanonicalHeaderKey(name) }
}

func newConfig(opts []Option) config {
	c := config{maxBody: DefaultMaxBody, traceHeader: DefaultTraceHeader}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func (c config) engineOrDefault() *callscope.Engine {
	if c.engine != nil {
		return c.engine
	}
	return callscope.Default()
}

func (c config) site(lp observe.LogPoint, key callscope.Key) callscope.Site {
	return callscope.Site{
		LogPoint: lp,
		Service:  key.Service,
		Action:   key.Action,
		Rule:     c.rule,
		Tags:     c.tags,
	}
}

// ClientKey is the default key for outbound requests: the host as service and
// "METHOD /path" as action.
func ClientKey(r *http.Request) callscope.Key {
	return callscope.Key{Service: r.URL.Host, Action: r.Method + " " + r.URL.Path}
}

// ServerKey returns the key for an inbound request. The action is the chi
// route pattern when the request was routed by chi, and the raw path
// otherwise.
func ServerKey(service string) func(*http.Request) callscope.Key {
	if service == "" {
		service = DefaultService
	}
	return func(r *http.Request) callscope.Key {
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		return callscope.Key{Service: service, Action: r.Method + " " + path}
	}
}

func urlParams(r *http.Request) map[string]any {
	out := map[string]any{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if i < len(rctx.URLParams.Values) && k != "*" {
				out[k] = rctx.URLParams.Values[i]
			}
		}
	}
	return out
}

func requestSummary(r *http.Request) map[string]any {
	return map[string]any{
		"method": r.Method,
		"url":    r.URL.String(),
	}
}

// BusinessRule classifies JSON APIs that report the outcome in the body as
// {"code":0} or {"success":true}. Responses without such a body fail.
func BusinessRule() classify.Rule {
	return classify.Rule{
		Strategy: classify.StrategyIfSuccess,
		BoolExpr: "$.body.code=0,$.body.success",
		CodeExpr: "$.body.code,$.body.errorCode,$.status",
		MsgExpr:  "$.body.message,$.body.msg,$.body.error",
	}
}
