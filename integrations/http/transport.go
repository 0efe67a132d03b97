package http

import (
	"net/http"
	"time"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/tags"
)

// Transport is an http.RoundTripper that reports every round trip at the
// http_client log point. Responses and errors are returned unchanged.
type Transport struct {
	base http.RoundTripper
	cfg  config
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	cfg := newConfig(opts)
	if cfg.keyFunc == nil {
		cfg.keyFunc = ClientKey
	}
	return &Transport{base: base, cfg: cfg}
}

// Client returns an *http.Client using t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req
	if id := observe.TraceID(ctx); id != "" && t.cfg.traceHeader != "" && req.Header.Get(t.cfg.traceHeader) == "" {
		out = req.Clone(ctx)
		out.Header.Set(t.cfg.traceHeader, id)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	cost := time.Since(start)

	call := callscope.Call{
		Start: start,
		Cost:  cost,
		Input: []any{requestSummary(req)},
		Err:   err,
		Sources: tags.Sources{
			Query:   req.URL.Query(),
			Headers: req.Header,
		},
	}
	if resp != nil {
		body, captured := peekBody(resp, t.cfg.maxBody)
		call.Output = exchange(resp.StatusCode, resp.Header, body, captured)
	}
	t.cfg.engineOrDefault().Complete(ctx, t.cfg.site(observe.LogPointHTTPClient, t.cfg.keyFunc(req)), call)
	return resp, err
}
