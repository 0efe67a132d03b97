package internal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// IsTypedNil reports whether v is nil or an interface holding a nil pointer,
// slice, map, func, chan or interface.
func IsTypedNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// IsEmpty reports whether v carries no usable content: nil, the literal string
// "null" (any case), a blank string, or an empty slice, map or array.
func IsEmpty(v any) bool {
	if IsTypedNil(v) {
		return true
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s == "" || strings.EqualFold(s, "null")
	case []byte:
		s := strings.TrimSpace(string(x))
		return s == "" || strings.EqualFold(s, "null")
	case json.RawMessage:
		s := strings.TrimSpace(string(x))
		return s == "" || strings.EqualFold(s, "null")
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.String:
		s := strings.TrimSpace(rv.String())
		return s == "" || strings.EqualFold(s, "null")
	default:
		return false
	}
}

// IsNumeric reports whether v holds a Go number or a json.Number.
func IsNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}

// Stringify renders v the way it should appear in codes, messages and tags.
// Integral floats print without a fractional part.
func Stringify(v any) string {
	if IsTypedNil(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case json.Number:
		return x.String()
	case json.RawMessage:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// Truncate shortens s to at most max bytes, cutting on a rune boundary and
// appending "...". A max of zero or less disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
