package policy

import "time"

// Option mutates an Entry under construction.
type Option func(*Entry)

// New builds a normalized Entry from DefaultEntry and opts. If the result does
// not normalize, New returns DefaultEntry.
func New(opts ...Option) Entry {
	e := DefaultEntry()
	e.Meta.Source = PolicySourceStatic
	for _, opt := range opts {
		if opt != nil {
			opt(&e)
		}
	}
	n, err := e.Normalize()
	if err != nil {
		return DefaultEntry()
	}
	return n
}

func Digest(l OutputLevel) Option { return func(e *Entry) { e.Digest = l } }
func Detail(l OutputLevel) Option { return func(e *Entry) { e.Detail = l } }

// SlowAfter marks calls slower than d as slow and reports them per mode.
func SlowAfter(d time.Duration, mode SlowMode) Option {
	return func(e *Entry) {
		e.SlowThreshold = d
		e.SlowMode = mode
	}
}

func ExcludeLogPoints(patterns ...string) Option {
	return func(e *Entry) { e.Exclude.LogPoints = append(e.Exclude.LogPoints, patterns...) }
}

func ExcludeServices(patterns ...string) Option {
	return func(e *Entry) { e.Exclude.Services = append(e.Exclude.Services, patterns...) }
}

func ExcludeActions(patterns ...string) Option {
	return func(e *Entry) { e.Exclude.Actions = append(e.Exclude.Actions, patterns...) }
}

// Quiet prints digests only for failures and details only for errors.
func Quiet() Option {
	return func(e *Entry) {
		e.Digest = OutputOnFail
		e.Detail = OutputOnException
	}
}

// Verbose prints digest and detail lines for every call.
func Verbose() Option {
	return func(e *Entry) {
		e.Digest = OutputAlways
		e.Detail = OutputAlways
	}
}

// EntranceDefaults suits request entrances: full digests, failure details,
// and slow-call reporting after one second.
func EntranceDefaults() Option {
	return func(e *Entry) {
		e.Digest = OutputAlways
		e.Detail = OutputOnFail
		e.SlowThreshold = time.Second
		e.SlowMode = SlowBoth
	}
}
