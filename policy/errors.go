package policy

import "fmt"

// NormalizeError indicates a fundamentally invalid policy configuration.
type NormalizeError struct {
	Field string
	Value string
	Err   error
}

func (e *NormalizeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("callscope: invalid policy config: %s=%q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("callscope: invalid policy config: %s=%q", e.Field, e.Value)
}

func (e *NormalizeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
