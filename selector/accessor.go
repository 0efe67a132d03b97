package selector

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Accessor is implemented by values that expose named zero-argument accessors
// without reflection.
type Accessor interface {
	Access(name string) (any, bool)
}

// AccessorResolver invokes a zero-argument accessor by name on a value.
// Resolvers report ok=false when the accessor does not exist.
type AccessorResolver interface {
	ResolveAccessor(value any, name string) (any, bool)
}

// AccessorResolverFunc adapts a function to AccessorResolver.
type AccessorResolverFunc func(value any, name string) (any, bool)

func (f AccessorResolverFunc) ResolveAccessor(value any, name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	return f(value, name)
}

// ChainResolver tries each resolver in order and returns the first hit.
type ChainResolver []AccessorResolver

func (c ChainResolver) ResolveAccessor(value any, name string) (any, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if v, ok := r.ResolveAccessor(value, name); ok {
			return v, true
		}
	}
	return nil, false
}

// InterfaceResolver resolves through the Accessor interface.
type InterfaceResolver struct{}

func (InterfaceResolver) ResolveAccessor(value any, name string) (any, bool) {
	if a, ok := value.(Accessor); ok && a != nil {
		return a.Access(name)
	}
	return nil, false
}

// Getters is a per-type registry of named accessor functions.
type Getters struct {
	mu sync.RWMutex
	m  map[reflect.Type]map[string]func(any) (any, bool)
}

func NewGetters() *Getters {
	return &Getters{m: make(map[reflect.Type]map[string]func(any) (any, bool))}
}

// RegisterGetter registers fn as accessor name for values of type T.
// Empty names and nil functions are ignored.
func RegisterGetter[T any](g *Getters, name string, fn func(T) (any, bool)) {
	if g == nil || fn == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t := reflect.TypeOf((*T)(nil)).Elem()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[reflect.Type]map[string]func(any) (any, bool))
	}
	byName := g.m[t]
	if byName == nil {
		byName = make(map[string]func(any) (any, bool))
		g.m[t] = byName
	}
	byName[name] = func(v any) (any, bool) {
		tv, ok := v.(T)
		if !ok {
			return nil, false
		}
		return fn(tv)
	}
}

func (g *Getters) ResolveAccessor(value any, name string) (any, bool) {
	if g == nil || value == nil {
		return nil, false
	}
	g.mu.RLock()
	fn := g.m[reflect.TypeOf(value)][name]
	g.mu.RUnlock()
	if fn == nil {
		return nil, false
	}
	return fn(value)
}

// MapResolver resolves accessors on string-keyed maps such as decoded JSON
// trees. "getCode" and "isOk" fall back to the keys "code" and "ok".
type MapResolver struct{}

func (MapResolver) ResolveAccessor(value any, name string) (any, bool) {
	if m, ok := value.(map[string]any); ok {
		for _, key := range accessorNames(name) {
			if v, ok := m[key]; ok {
				return v, true
			}
		}
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	for _, key := range accessorNames(name) {
		kv := reflect.ValueOf(key).Convert(rv.Type().Key())
		if v := rv.MapIndex(kv); v.IsValid() {
			return v.Interface(), true
		}
	}
	return nil, false
}

type memberKind int

const (
	memberNone memberKind = iota
	memberMethod
	memberField
)

type member struct {
	kind  memberKind
	index []int
}

type memberKey struct {
	t    reflect.Type
	name string
}

// ReflectResolver resolves accessors against exported methods and fields.
// Lookups are cached per type and name in a bounded LRU.
type ReflectResolver struct {
	cache *lru.Cache[memberKey, member]
}

// NewReflectResolver returns a resolver caching at most size lookups.
func NewReflectResolver(size int) *ReflectResolver {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[memberKey, member](size)
	if err != nil {
		return &ReflectResolver{}
	}
	return &ReflectResolver{cache: c}
}

func (r *ReflectResolver) ResolveAccessor(value any, name string) (any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	m := r.lookup(rv.Type(), name)

	switch m.kind {
	case memberMethod:
		return callAccessor(rv.Method(m.index[0]))
	case memberField:
		for rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return nil, false
			}
			rv = rv.Elem()
		}
		f, err := rv.FieldByIndexErr(m.index)
		if err != nil {
			return nil, false
		}
		return f.Interface(), true
	default:
		return nil, false
	}
}

func (r *ReflectResolver) lookup(t reflect.Type, name string) member {
	key := memberKey{t: t, name: name}
	if r != nil && r.cache != nil {
		if m, ok := r.cache.Get(key); ok {
			return m
		}
	}
	m := findMember(t, name)
	if r != nil && r.cache != nil {
		r.cache.Add(key, m)
	}
	return m
}

// Len returns the number of cached lookups.
func (r *ReflectResolver) Len() int {
	if r == nil || r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

func findMember(t reflect.Type, name string) member {
	names := methodNames(name)
	for _, n := range names {
		if m, ok := t.MethodByName(n); ok && isAccessorMethod(m.Type) {
			return member{kind: memberMethod, index: []int{m.Index}}
		}
	}

	st := t
	for st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return member{}
	}
	for _, n := range names {
		if f, ok := st.FieldByName(n); ok && f.IsExported() {
			return member{kind: memberField, index: f.Index}
		}
	}
	wanted := accessorNames(name)
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		for _, w := range wanted {
			if tag != "" && tag == w {
				return member{kind: memberField, index: f.Index}
			}
		}
	}
	return member{}
}

// isAccessorMethod accepts func(recv) T, func(recv) (T, error) and
// func(recv) (T, bool). Method types from reflect.Type include the receiver.
func isAccessorMethod(mt reflect.Type) bool {
	if mt.NumIn() != 1 {
		return false
	}
	switch mt.NumOut() {
	case 1:
		return true
	case 2:
		second := mt.Out(1)
		return second.Kind() == reflect.Bool || second.Implements(errorType)
	default:
		return false
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callAccessor(fn reflect.Value) (any, bool) {
	out := fn.Call(nil)
	switch len(out) {
	case 1:
		return out[0].Interface(), true
	case 2:
		if out[1].Kind() == reflect.Bool {
			if !out[1].Bool() {
				return nil, false
			}
		} else if !out[1].IsNil() {
			return nil, false
		}
		return out[0].Interface(), true
	default:
		return nil, false
	}
}

// accessorNames returns the map keys tried for an accessor name: the name
// itself, then the name without a get/is prefix with its first rune lowered.
func accessorNames(name string) []string {
	out := []string{name}
	if stripped, ok := stripAccessorPrefix(name); ok {
		out = append(out, lowerFirst(stripped))
	}
	return out
}

// methodNames returns the exported Go identifiers tried for an accessor name.
func methodNames(name string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	add(upperFirst(name))
	if stripped, ok := stripAccessorPrefix(name); ok {
		add(upperFirst(stripped))
	}
	add("Get" + upperFirst(name))
	add("Is" + upperFirst(name))
	return out
}

func stripAccessorPrefix(name string) (string, bool) {
	for _, prefix := range []string{"get", "is"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			r, _ := utf8.DecodeRuneInString(rest)
			if unicode.IsUpper(r) {
				return rest, true
			}
		}
	}
	return "", false
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
