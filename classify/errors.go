package classify

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// ErrorKind is the taxonomy entry an error maps to.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindParam
	ErrorKindUnknownHost
	ErrorKindTimeout
	ErrorKindSystem
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindParam:
		return "param_error"
	case ErrorKindUnknownHost:
		return "unknown_host"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindSystem:
		return "system_error"
	default:
		return "none"
	}
}

// Code returns the normalized code recorded for the kind.
func (k ErrorKind) Code() string {
	switch k {
	case ErrorKindParam:
		return "PARAM_ERROR"
	case ErrorKindUnknownHost:
		return "UNKNOWN_HOST"
	case ErrorKindTimeout:
		return "TIMEOUT"
	case ErrorKindSystem:
		return "SYSTEM_ERROR"
	default:
		return ""
	}
}

// Message returns the normalized message recorded for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorKindParam:
		return "invalid parameter"
	case ErrorKindUnknownHost:
		return "unknown host"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindSystem:
		return "system error"
	default:
		return ""
	}
}

var (
	// ErrInvalidParam marks errors caused by invalid call arguments.
	ErrInvalidParam = errors.New("invalid parameter")
	// ErrUnknownHost marks errors caused by unresolvable hosts.
	ErrUnknownHost = errors.New("unknown host")
)

// ParamError reports an invalid argument to an instrumented call.
type ParamError struct {
	Field string
	Err   error
}

func (e *ParamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "invalid parameter"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorMapper lets a transport contribute taxonomy decisions for its own
// error types. ok=false defers to the next mapper and then to KindOf.
type ErrorMapper func(err error) (kind ErrorKind, ok bool)

// KindOf maps err onto the taxonomy. Precedence is param, unknown host,
// timeout, then system. A nil error maps to ErrorKindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case isParamError(err):
		return ErrorKindParam
	case isUnknownHost(err):
		return ErrorKindUnknownHost
	case isTimeout(err):
		return ErrorKindTimeout
	default:
		return ErrorKindSystem
	}
}

func isParamError(err error) bool {
	var pe *ParamError
	if errors.As(err, &pe) || errors.Is(err, ErrInvalidParam) {
		return true
	}
	var ip interface{ InvalidParam() bool }
	if errors.As(err, &ip) && ip.InvalidParam() {
		return true
	}
	if status, ok := httpStatusOf(err); ok {
		return status == 400 || status == 422
	}
	return false
}

func isUnknownHost(err error) bool {
	if errors.Is(err, ErrUnknownHost) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such host")
}

var timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	if status, ok := httpStatusOf(err); ok && (status == 408 || status == 504) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
