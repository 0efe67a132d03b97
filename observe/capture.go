package observe

import (
	"context"
	"sync/atomic"
)

// RecordCapture holds the finished record of a call.
//
// Record() returns nil until the call completes (or if capture is not used).
type RecordCapture struct {
	rec atomic.Pointer[Record]
}

// Record returns the captured record, or nil if not yet populated.
// It is thread-safe.
func (c *RecordCapture) Record() *Record {
	if c == nil {
		return nil
	}
	return c.rec.Load()
}

func (c *RecordCapture) store(rec *Record) {
	if c == nil || rec == nil {
		return
	}
	c.rec.Store(rec)
}

type recordCaptureKey struct{}

// CaptureRecord returns a derived context that requests record capture for the
// next instrumented call, plus a holder for retrieving the finished record.
func CaptureRecord(ctx context.Context) (context.Context, *RecordCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &RecordCapture{}
	return context.WithValue(ctx, recordCaptureKey{}, capture), capture
}

// RecordCaptureFromContext returns the capture (if requested).
func RecordCaptureFromContext(ctx context.Context) (*RecordCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	switch v := ctx.Value(recordCaptureKey{}).(type) {
	case *RecordCapture:
		return v, v != nil
	default:
		return nil, false
	}
}

type disabledRecordCapture struct{}

// WithoutRecordCapture disables capture in derived contexts so nested calls do
// not overwrite the outer call's record.
func WithoutRecordCapture(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, recordCaptureKey{}, disabledRecordCapture{})
}

// StoreRecordCapture publishes the finished record into the capture.
func StoreRecordCapture(capture *RecordCapture, rec *Record) {
	if capture == nil {
		return
	}
	capture.store(rec)
}
