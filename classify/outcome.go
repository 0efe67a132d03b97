package classify

import (
	"fmt"
	"strings"
)

// Strategy decides how the success flag is derived once an exception has been
// ruled out.
type Strategy int

const (
	// StrategyUnset uses the bool expression and falls back to
	// StrategyIfNotException when it cannot determine a result.
	StrategyUnset Strategy = iota
	// StrategyIfSuccess uses the bool expression; undetermined means failure.
	StrategyIfSuccess
	// StrategyIfNotNull succeeds when the response is non-nil.
	StrategyIfNotNull
	// StrategyIfNotEmpty succeeds when the response is non-nil and non-empty.
	StrategyIfNotEmpty
	// StrategyIfNotException succeeds whenever no error was returned.
	StrategyIfNotException
)

var strategyNames = map[Strategy]string{
	StrategyUnset:          "",
	StrategyIfSuccess:      "if_success",
	StrategyIfNotNull:      "if_not_null",
	StrategyIfNotEmpty:     "if_not_empty",
	StrategyIfNotException: "if_not_exception",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		if name == "" {
			return "unset"
		}
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy accepts the snake_case names and the CamelCase forms
// ("IfNotNull"). Blank input yields StrategyUnset.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	switch key {
	case "", "unset":
		return StrategyUnset, nil
	case "ifsuccess":
		return StrategyIfSuccess, nil
	case "ifnotnull":
		return StrategyIfNotNull, nil
	case "ifnotempty":
		return StrategyIfNotEmpty, nil
	case "ifnotexception":
		return StrategyIfNotException, nil
	default:
		return StrategyUnset, fmt.Errorf("classify: unknown strategy %q", s)
	}
}

// Sentinel code and message used when no expression yields a value.
const (
	SentinelSuccess = "SUCCESS"
	SentinelFailed  = "FAILED"
)

// Outcome is the classification of a finished call.
type Outcome struct {
	Success bool
	Code    string
	Message string

	// ErrorKind is ErrorKindNone unless the call returned an error.
	ErrorKind ErrorKind

	// Determined reports whether the bool expression produced a result.
	Determined bool
}

// Rule is the per-call-site classification configuration. Blank expressions
// defer to the defaults; a leading "+" extends them.
type Rule struct {
	Strategy Strategy
	BoolExpr string
	CodeExpr string
	MsgExpr  string
}

// IsZero reports whether r carries no configuration.
func (r Rule) IsZero() bool {
	return r == Rule{}
}

// Defaults are the engine-wide expressions a Rule is merged against.
type Defaults struct {
	BoolExpr string
	CodeExpr string
	MsgExpr  string
}

// Default expressions used when configuration supplies none.
const (
	DefaultBoolExpr = "$.success,$.code=0,$.code=200"
	DefaultCodeExpr = "$.code,$.errorCode,$.status"
	DefaultMsgExpr  = "$.message,$.msg,$.errorMsg"
)

// DefaultDefaults returns the built-in global defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		BoolExpr: DefaultBoolExpr,
		CodeExpr: DefaultCodeExpr,
		MsgExpr:  DefaultMsgExpr,
	}
}
