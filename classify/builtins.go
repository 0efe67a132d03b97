package classify

// Built-in rule registry names.
const (
	RuleHTTP  = "http"
	RuleGRPC  = "grpc"
	RuleSQS   = "sqs"
	RuleSQL   = "sql"
	RuleCache = "cache"
	RuleJob   = "job"
)

// RegisterBuiltins registers the transport rules into reg.
//
// Only HTTP carries its own expressions, and it extends the defaults rather
// than replacing them. The other transports register the zero Rule, so they
// classify from the global and per-component defaults and fall back to
// success when those cannot decide and no error was returned.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(RuleHTTP, HTTPRule())
	reg.Register(RuleGRPC, Rule{})
	reg.Register(RuleSQS, Rule{})
	reg.Register(RuleSQL, Rule{})
	reg.Register(RuleCache, Rule{})
	reg.Register(RuleJob, Rule{})
}
