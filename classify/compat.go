package classify

import (
	"strconv"
	"strings"

	"github.com/aponysus/callscope/internal"
	"github.com/aponysus/callscope/selector"
)

// judge reports the boolean a found candidate yields and whether the raw value
// is compatible with the candidate's expectation.
//
//	no literal:   bool or "true"/"false" usable; nil compatible and false;
//	              anything else incompatible
//	literal:      nil compatible iff literal is "null" (result true)
//	              number compatible iff literal is numeric (numeric equality)
//	              bool compatible iff literal is true/false (equality)
//	              string vs bool literal when the string is a bool (equality),
//	              otherwise compatible iff exactly equal
//	              other types compatible, compared as strings
func judge(p selector.Parsed) (result, compatible bool) {
	if !p.HasExpect {
		return judgeBare(p.Value)
	}

	expect := strings.TrimSpace(p.Expect)
	raw := p.Value

	if internal.IsTypedNil(raw) {
		if strings.EqualFold(expect, "null") {
			return true, true
		}
		return false, false
	}

	switch v := raw.(type) {
	case bool:
		want, ok := parseBoolLiteral(expect)
		if !ok {
			return false, false
		}
		return v == want, true
	case string:
		if want, ok := parseBoolLiteral(expect); ok {
			if got, ok := parseBoolLiteral(v); ok {
				return got == want, true
			}
		}
		if v == expect {
			return true, true
		}
		return false, false
	}

	if internal.IsNumeric(raw) {
		want, err := strconv.ParseFloat(expect, 64)
		if err != nil {
			return false, false
		}
		got, err := strconv.ParseFloat(internal.Stringify(raw), 64)
		if err != nil {
			return false, false
		}
		return got == want, true
	}

	return internal.Stringify(raw) == expect, true
}

func judgeBare(raw any) (result, compatible bool) {
	if internal.IsTypedNil(raw) {
		return false, true
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		if b, ok := parseBoolLiteral(v); ok {
			return b, true
		}
	}
	b, err := strconv.ParseBool(internal.Stringify(raw))
	return err == nil && b, false
}

func parseBoolLiteral(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	default:
		return false, false
	}
}
