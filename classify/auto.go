package classify

import "github.com/aponysus/callscope/observe"

// RuleNameFor returns the built-in rule name conventionally used for lp, or ""
// when lp has no transport-specific rule.
func RuleNameFor(lp observe.LogPoint) string {
	switch lp {
	case observe.LogPointHTTPClient, observe.LogPointHTTPServer:
		return RuleHTTP
	case observe.LogPointRPCClient, observe.LogPointRPCServer:
		return RuleGRPC
	case observe.LogPointMQConsumer, observe.LogPointMQProducer:
		return RuleSQS
	case observe.LogPointSQL:
		return RuleSQL
	case observe.LogPointCache:
		return RuleCache
	case observe.LogPointJob:
		return RuleJob
	default:
		return ""
	}
}

// AutoRule resolves the rule for lp from reg, falling back to the zero Rule,
// which classifies purely from the defaults.
func AutoRule(reg *Registry, lp observe.LogPoint) Rule {
	if rule, ok := reg.Get(RuleNameFor(lp)); ok {
		return rule
	}
	return Rule{}
}
