package policy

import "strings"

// Key identifies a call site by service and action.
type Key struct {
	Service string
	Action  string
}

// ParseKey splits "service.action" at the first dot. Input without a usable
// service part is treated as a bare action.
func ParseKey(s string) Key {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}
	}
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return Key{Action: s}
	}
	svc := strings.TrimSpace(s[:i])
	action := strings.TrimSpace(s[i+1:])
	switch {
	case action == "":
		return Key{Action: s}
	case svc == "":
		return Key{Action: action}
	default:
		return Key{Service: svc, Action: action}
	}
}

func (k Key) String() string {
	switch {
	case k.Service == "":
		return k.Action
	case k.Action == "":
		return k.Service
	default:
		return k.Service + "." + k.Action
	}
}
