// Package callscope classifies instrumented calls and dispatches their
// metrics and log lines.
//
// A collaborator describes a call site once with NewSite, then either wraps
// the call with Do/DoValue or reports a measured call with Complete:
//
//	site := callscope.NewSite(observe.LogPointHTTPClient, "orders.GetOrder",
//		callscope.WithBoolExpr("+$.ok"))
//	order, err := callscope.DoValue(ctx, site, fetchOrder)
package callscope

import (
	"context"

	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

// Key is the structured service/action form of a call-site key.
type Key = policy.Key

// ParseKey parses "service.action" into a Key.
func ParseKey(s string) Key { return policy.ParseKey(s) }

// Complete classifies and dispatches a measured call using the default engine.
func Complete(ctx context.Context, site Site, call Call) *observe.Record {
	return Default().Complete(ctx, site, call)
}

// Do executes op at site using the default engine.
func Do(ctx context.Context, site Site, op Operation, input ...any) error {
	return Default().Do(ctx, site, op, input...)
}

// DoValue executes op at site using the default engine.
func DoValue[T any](ctx context.Context, site Site, op OperationValue[T], input ...any) (T, error) {
	return DoValueWith(ctx, Default(), site, op, input...)
}

// DoWithRecord executes op and also returns the finished record.
func DoWithRecord(ctx context.Context, site Site, op Operation, input ...any) (*observe.Record, error) {
	ctx, capture := observe.CaptureRecord(ctx)
	err := Default().Do(ctx, site, op, input...)
	return capture.Record(), err
}
