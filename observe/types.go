package observe

import (
	"context"
	"time"
)

// LogPoint identifies where in the call graph an instrumented call happened.
// It selects the policy entry and names the metric family.
type LogPoint string

const (
	LogPointHTTPServer LogPoint = "http_server"
	LogPointHTTPClient LogPoint = "http_client"
	LogPointRPCServer  LogPoint = "rpc_server"
	LogPointRPCClient  LogPoint = "rpc_client"
	LogPointMQConsumer LogPoint = "mq_consumer"
	LogPointMQProducer LogPoint = "mq_producer"
	LogPointSQL        LogPoint = "sql"
	LogPointCache      LogPoint = "cache"
	LogPointJob        LogPoint = "job"
	LogPointCustom     LogPoint = "custom"
)

// LogPoints lists the built-in log points.
var LogPoints = []LogPoint{
	LogPointHTTPServer,
	LogPointHTTPClient,
	LogPointRPCServer,
	LogPointRPCClient,
	LogPointMQConsumer,
	LogPointMQProducer,
	LogPointSQL,
	LogPointCache,
	LogPointJob,
	LogPointCustom,
}

// IsEntrance reports whether the log point is a request entrance rather than
// an outbound call.
func (lp LogPoint) IsEntrance() bool {
	switch lp {
	case LogPointHTTPServer, LogPointRPCServer, LogPointMQConsumer, LogPointJob:
		return true
	default:
		return false
	}
}

func (lp LogPoint) String() string {
	if lp == "" {
		return string(LogPointCustom)
	}
	return string(lp)
}

// Tag is a single metric/log tag.
type Tag struct {
	Key   string
	Value string
}

// Record is the canonical description of one finished call.
//
// A collaborator creates it once per call, the classifier and tag builder fill
// in Success/MsgCode/MsgMessage/Tags, and the dispatcher consumes it exactly
// once. Records are not reused across calls.
type Record struct {
	LogPoint LogPoint
	Service  string
	Action   string

	Success    bool
	MsgCode    string
	MsgMessage string

	Start time.Time
	Cost  time.Duration

	// Err is the error returned by the call, if any.
	Err error

	Input  []any
	Output any

	Tags       []Tag
	HasUserTag bool
}

// Failed reports whether the call should be treated as a failure for output
// level decisions.
func (r *Record) Failed() bool {
	return r == nil || !r.Success || r.Err != nil
}

// Observer receives every record after it has been classified and dispatched.
type Observer interface {
	OnRecord(ctx context.Context, rec *Record)
}
