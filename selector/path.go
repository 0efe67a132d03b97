package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var errMalformedPath = errors.New("selector: malformed path")

// segments splits a path selector into object keys and array indexes.
// "$" yields no segments.
func segments(expr string) ([]string, error) {
	s := strings.TrimSpace(expr)
	switch {
	case s == "$":
		return nil, nil
	case strings.HasPrefix(s, "$"):
		s = s[1:]
	case strings.HasPrefix(s, "["):
	default:
		s = "." + s
	}

	var out []string
	for i := 0; i < len(s); {
		switch s[i] {
		case '.':
			j := i + 1
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			key := s[i+1 : j]
			if key == "" {
				return nil, fmt.Errorf("%w: empty key in %q", errMalformedPath, expr)
			}
			out = append(out, key)
			i = j
		case '[':
			end, key, err := bracket(s, i)
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", errMalformedPath, err, expr)
			}
			out = append(out, key)
			i = end
		default:
			return nil, fmt.Errorf("%w: unexpected %q in %q", errMalformedPath, s[i], expr)
		}
	}
	return out, nil
}

// bracket parses "[0]" or "['key']" starting at s[i] and returns the index
// just past the closing bracket.
func bracket(s string, i int) (int, string, error) {
	j := i + 1
	if j >= len(s) {
		return 0, "", errors.New("unterminated bracket")
	}
	if q := s[j]; q == '\'' || q == '"' {
		k := strings.IndexByte(s[j+1:], q)
		if k < 0 {
			return 0, "", errors.New("unterminated quote")
		}
		key := s[j+1 : j+1+k]
		end := j + 1 + k + 1
		if end >= len(s) || s[end] != ']' {
			return 0, "", errors.New("missing ]")
		}
		return end + 1, key, nil
	}
	k := strings.IndexByte(s[j:], ']')
	if k < 0 {
		return 0, "", errors.New("missing ]")
	}
	idx := strings.TrimSpace(s[j : j+k])
	if _, err := strconv.Atoi(idx); err != nil {
		return 0, "", fmt.Errorf("bad index %q", idx)
	}
	return j + k + 1, idx, nil
}

// gjsonPath joins segments into gjson syntax, escaping its metacharacters.
func gjsonPath(segs []string) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('.')
		}
		for j := 0; j < len(seg); j++ {
			switch ch := seg[j]; ch {
			case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', '{', '}', '[', ']', ',', ':', '"':
				b.WriteByte('\\')
				b.WriteByte(ch)
			default:
				b.WriteByte(ch)
			}
		}
	}
	return b.String()
}

// project returns the JSON document for v. ok is false when v is a plain
// string that is not a JSON object or array.
func project(v any) ([]byte, bool, error) {
	switch x := v.(type) {
	case json.RawMessage:
		return []byte(x), true, nil
	case []byte:
		if gjson.ValidBytes(x) {
			return x, true, nil
		}
		return nil, false, nil
	case string:
		t := strings.TrimSpace(x)
		if (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && gjson.Valid(t) {
			return []byte(t), true, nil
		}
		return nil, false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// resultValue converts a gjson result into a Go value. Numbers keep their
// literal text as json.Number so "0" and "0.0" stay distinguishable.
func resultValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.String:
		return res.Str
	default:
		return res.Value()
	}
}
