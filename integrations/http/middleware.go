package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/tags"
)

// ErrHandlerPanic wraps the value a handler panicked with. The request is
// still reported, then the panic continues up the stack.
var ErrHandlerPanic = errors.New("http: handler panicked")

// Middleware reports every request at the http_server log point. It reuses
// the caller's trace id header or generates one, and echoes it on the
// response. URL-encoded form bodies of known length up to the capture limit
// are parsed for tag lookup and replayed to the handler.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)
	if cfg.keyFunc == nil {
		cfg.keyFunc = ServerKey(cfg.service)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if cfg.traceHeader != "" {
				if id := r.Header.Get(cfg.traceHeader); id != "" {
					ctx = observe.WithTraceID(ctx, id)
				}
			}
			ctx, traceID := observe.EnsureTraceID(ctx)
			if cfg.traceHeader != "" {
				w.Header().Set(cfg.traceHeader, traceID)
			}
			r = r.WithContext(ctx)

			form := peekForm(r, cfg.maxBody)
			rw := &responseRecorder{ResponseWriter: w, status: http.StatusOK, limit: cfg.maxBody}
			start := time.Now()
			defer func() {
				v := recover()
				var err error
				if v != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, v)
					if !rw.wroteHeader {
						rw.status = http.StatusInternalServerError
					}
				}
				// Handlers that parsed the form themselves win over our copy.
				if r.PostForm != nil {
					form = r.PostForm
				}
				cfg.engineOrDefault().Complete(ctx, cfg.site(observe.LogPointHTTPServer, cfg.keyFunc(r)), callscope.Call{
					Start:  start,
					Cost:   time.Since(start),
					Err:    err,
					Input:  []any{requestSummary(r)},
					Output: exchange(rw.status, rw.Header(), rw.body.Bytes(), rw.captured()),
					Sources: tags.Sources{
						Args:    []any{urlParams(r)},
						Query:   r.URL.Query(),
						Body:    form,
						Headers: r.Header,
					},
				})
				if v != nil {
					panic(v)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// responseRecorder records the status and the first limit bytes of the body
// while passing everything through.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	limit       int64
	body        bytes.Buffer
	overflow    bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	if !r.overflow && r.limit > 0 {
		if int64(r.body.Len()+len(p)) <= r.limit {
			r.body.Write(p)
		} else {
			r.overflow = true
			r.body.Reset()
		}
	}
	return r.ResponseWriter.Write(p)
}

func (r *responseRecorder) captured() bool {
	return r.limit > 0 && !r.overflow
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("callscope: response writer does not support hijacking")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
