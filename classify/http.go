package classify

import (
	"errors"

	"github.com/aponysus/callscope/expression"
)

// HTTPError is a classify-owned interface that lets errors carrying an HTTP
// status participate in the taxonomy without importing integration packages.
//
// 400 and 422 map to ErrorKindParam, 408 and 504 to ErrorKindTimeout.
type HTTPError interface {
	HTTPStatusCode() int
}

func httpStatusOf(err error) (int, bool) {
	var he HTTPError
	if !errors.As(err, &he) || he == nil {
		return 0, false
	}
	return he.HTTPStatusCode(), true
}

// HTTPSuccessExpr matches the 2xx statuses an HTTP exchange reports as success.
const HTTPSuccessExpr = "$.status=200,$.status=201,$.status=202,$.status=204"

// HTTPRule classifies the {"status","headers","body"} shape produced by the
// HTTP integration: the status decides success, the body supplies
// application codes and messages when present. Every list extends the
// configured defaults, which are tried after the HTTP candidates.
func HTTPRule() Rule {
	return Rule{
		Strategy: StrategyUnset,
		BoolExpr: expression.AppendMarker + HTTPSuccessExpr,
		CodeExpr: expression.AppendMarker + "$.body.code,$.body.errorCode,$.status",
		MsgExpr:  expression.AppendMarker + "$.body.message,$.body.msg,$.body.error",
	}
}
