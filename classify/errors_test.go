package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "io" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type badArg struct{}

func (badArg) Error() string      { return "bad arg" }
func (badArg) InvalidParam() bool { return true }

type statusErr int

func (s statusErr) Error() string       { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ErrorKindNone},
		{name: "param_struct", err: &ParamError{Field: "id"}, want: ErrorKindParam},
		{name: "param_sentinel", err: fmt.Errorf("wrap: %w", ErrInvalidParam), want: ErrorKindParam},
		{name: "param_interface", err: badArg{}, want: ErrorKindParam},
		{name: "param_http_400", err: statusErr(400), want: ErrorKindParam},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}, want: ErrorKindUnknownHost},
		{name: "host_sentinel", err: ErrUnknownHost, want: ErrorKindUnknownHost},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorKindTimeout},
		{name: "os_deadline", err: os.ErrDeadlineExceeded, want: ErrorKindTimeout},
		{name: "timeout_iface", err: timeoutErr{}, want: ErrorKindTimeout},
		{name: "timeout_message", err: errors.New("read timed out"), want: ErrorKindTimeout},
		{name: "http_504", err: statusErr(504), want: ErrorKindTimeout},
		{name: "system", err: errors.New("boom"), want: ErrorKindSystem},
		{name: "http_500", err: statusErr(500), want: ErrorKindSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestKindOf_ParamBeatsTimeout(t *testing.T) {
	err := &ParamError{Field: "deadline", Err: context.DeadlineExceeded}
	if got := KindOf(err); got != ErrorKindParam {
		t.Fatalf("KindOf=%v, want %v", got, ErrorKindParam)
	}
}

func TestErrorKind_CodesAndMessages(t *testing.T) {
	cases := map[ErrorKind][2]string{
		ErrorKindParam:       {"PARAM_ERROR", "invalid parameter"},
		ErrorKindUnknownHost: {"UNKNOWN_HOST", "unknown host"},
		ErrorKindTimeout:     {"TIMEOUT", "timeout"},
		ErrorKindSystem:      {"SYSTEM_ERROR", "system error"},
		ErrorKindNone:        {"", ""},
	}
	for kind, want := range cases {
		if kind.Code() != want[0] || kind.Message() != want[1] {
			t.Fatalf("%v: code=%q msg=%q, want %q %q", kind, kind.Code(), kind.Message(), want[0], want[1])
		}
	}
}

func TestParamError(t *testing.T) {
	inner := errors.New("must be positive")
	err := &ParamError{Field: "size", Err: inner}
	if err.Error() != "invalid parameter size: must be positive" {
		t.Fatalf("Error()=%q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap to expose inner error")
	}

	var nilErr *ParamError
	if nilErr.Error() != "<nil>" || nilErr.Unwrap() != nil {
		t.Fatalf("nil receiver not handled")
	}
}
