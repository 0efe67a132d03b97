package policy

import (
	"errors"
	"testing"
)

func TestNormalizeError_Error(t *testing.T) {
	var err *NormalizeError
	if got := err.Error(); got != "<nil>" {
		t.Fatalf("nil error string=%q, want %q", got, "<nil>")
	}

	err = &NormalizeError{Field: "digest", Value: "bogus"}
	got := err.Error()
	if got == "" || got == "<nil>" {
		t.Fatalf("unexpected error string: %q", got)
	}

	inner := errors.New("bad glob")
	err = &NormalizeError{Field: "exclude.services", Value: "[", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap to expose inner error")
	}
}
