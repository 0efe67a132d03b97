// Package grpc instruments unary gRPC calls: the client interceptor reports
// at the rpc_client log point and the server interceptor at rpc_server.
package grpc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/tags"
)

// TraceMetadataKey carries the trace id in gRPC metadata.
const TraceMetadataKey = "x-trace-id"

// DefaultKeyFunc maps full method names to keys.
// "/pkg.Service/Method" -> {Service: "pkg.Service", Action: "Method"}
func DefaultKeyFunc(method string) callscope.Key {
	method = strings.TrimPrefix(method, "/")
	parts := strings.Split(method, "/")
	if len(parts) == 2 {
		return callscope.Key{Service: parts[0], Action: parts[1]}
	}
	return callscope.Key{Action: method}
}

type config struct {
	engine  *callscope.Engine
	keyFunc func(method string) callscope.Key
	rule    classify.Rule
	tags    []string
}

// Option configures the interceptors.
type Option func(*config)

// WithEngine selects the engine. The default engine is used otherwise.
func WithEngine(e *callscope.Engine) Option {
	return func(c *config) { c.engine = e }
}

func WithKeyFunc(fn func(method string) callscope.Key) Option {
	return func(c *config) { c.keyFunc = fn }
}

// WithRule overrides the built-in gRPC rule.
func WithRule(rule classify.Rule) Option {
	return func(c *config) { c.rule = rule }
}

// WithTags sets tag templates resolved against the request message and the
// call metadata.
func WithTags(templates ...string) Option {
	return func(c *config) { c.tags = append(c.tags, templates...) }
}

func newConfig(opts []Option) config {
	c := config{keyFunc: DefaultKeyFunc}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.keyFunc == nil {
		c.keyFunc = DefaultKeyFunc
	}
	return c
}

func (c config) complete(ctx context.Context, lp observe.LogPoint, method string, md metadata.MD, start time.Time, req, reply any, err error) {
	engine := c.engine
	if engine == nil {
		engine = callscope.Default()
	}
	key := c.keyFunc(method)
	engine.Complete(ctx, callscope.Site{
		LogPoint: lp,
		Service:  key.Service,
		Action:   key.Action,
		Rule:     c.rule,
		Tags:     c.tags,
	}, callscope.Call{
		Start:  start,
		Cost:   time.Since(start),
		Input:  []any{req},
		Output: reply,
		Err:    err,
		Sources: tags.Sources{
			Args:    []any{req},
			Headers: http.Header(md),
		},
	})
}

// UnaryClientInterceptor reports outbound unary calls and forwards the trace
// id in outgoing metadata.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		if id := observe.TraceID(ctx); id != "" {
			if md, ok := metadata.FromOutgoingContext(ctx); !ok || len(md.Get(TraceMetadataKey)) == 0 {
				ctx = metadata.AppendToOutgoingContext(ctx, TraceMetadataKey, id)
			}
		}
		md, _ := metadata.FromOutgoingContext(ctx)

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, callOpts...)
		cfg.complete(ctx, observe.LogPointRPCClient, method, md, start, req, reply, err)
		return err
	}
}

// UnaryServerInterceptor reports inbound unary calls. The caller's trace id
// is reused when present.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if ids := md.Get(TraceMetadataKey); len(ids) > 0 && ids[0] != "" {
			ctx = observe.WithTraceID(ctx, ids[0])
		}
		ctx, _ = observe.EnsureTraceID(ctx)

		method := ""
		if info != nil {
			method = info.FullMethod
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		cfg.complete(ctx, observe.LogPointRPCServer, method, md, start, req, resp, err)
		return resp, err
	}
}

// ErrorMapper maps gRPC status errors onto the taxonomy. Register it with
// callscope.WithErrorMapper. Errors without a status are left to the
// built-in taxonomy.
func ErrorMapper(err error) (classify.ErrorKind, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return classify.ErrorKindNone, false
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange:
		return classify.ErrorKindParam, true
	case codes.DeadlineExceeded:
		return classify.ErrorKindTimeout, true
	default:
		return classify.ErrorKindSystem, true
	}
}
