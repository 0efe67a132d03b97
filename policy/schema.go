package policy

import (
	"strings"
	"time"

	"github.com/aponysus/callscope/observe"
)

// OutputLevel gates digest and detail log lines.
type OutputLevel string

const (
	OutputAlways      OutputLevel = "always"
	OutputOnFail      OutputLevel = "on_fail"
	OutputOnException OutputLevel = "on_exception"
	OutputNone        OutputLevel = "none"
)

// ParseOutputLevel accepts snake_case and camelCase forms ("onFail").
func ParseOutputLevel(s string) (OutputLevel, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "always":
		return OutputAlways, true
	case "onfail":
		return OutputOnFail, true
	case "onexception":
		return OutputOnException, true
	case "none":
		return OutputNone, true
	default:
		return "", false
	}
}

// Allows reports whether a line at this level is printed for a call that
// failed (success=false or error set) and/or returned an error.
func (l OutputLevel) Allows(failed, errored bool) bool {
	switch l {
	case OutputAlways:
		return true
	case OutputOnFail:
		return failed || errored
	case OutputOnException:
		return errored
	default:
		return false
	}
}

// SlowMode selects what a slow call emits.
type SlowMode string

const (
	SlowBoth        SlowMode = "both"
	SlowOnlyMetrics SlowMode = "only_metrics"
	SlowOnlyLog     SlowMode = "only_log"
	SlowNone        SlowMode = "none"
)

// ParseSlowMode accepts snake_case and camelCase forms ("onlyMetrics").
func ParseSlowMode(s string) (SlowMode, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "both":
		return SlowBoth, true
	case "onlymetrics":
		return SlowOnlyMetrics, true
	case "onlylog":
		return SlowOnlyLog, true
	case "none":
		return SlowNone, true
	default:
		return "", false
	}
}

func (m SlowMode) Metrics() bool { return m == SlowBoth || m == SlowOnlyMetrics }
func (m SlowMode) Log() bool     { return m == SlowBoth || m == SlowOnlyLog }

type PolicySource string

const (
	PolicySourceUnknown PolicySource = "unknown"
	PolicySourceStatic  PolicySource = "static"
	PolicySourceFile    PolicySource = "file"
	PolicySourceDefault PolicySource = "default"
)

type NormalizationInfo struct {
	Changed       bool     `json:"-"`
	ChangedFields []string `json:"-"`
}

type Metadata struct {
	Source        PolicySource      `json:"-"`
	Normalization NormalizationInfo `json:"-"`
}

// Entry is the output policy of one log point.
type Entry struct {
	Digest OutputLevel `json:"digest" koanf:"digest"`
	Detail OutputLevel `json:"detail" koanf:"detail"`

	// SlowThreshold marks calls slower than it as slow. <= 0 disables; in a
	// per-log-point entry 0 means "inherit" and SlowDisabled opts out.
	SlowThreshold time.Duration `json:"slow_threshold" koanf:"slow_threshold"`
	SlowMode      SlowMode      `json:"slow_mode" koanf:"slow_mode"`

	Exclude Exclusions `json:"exclude,omitempty" koanf:"exclude"`

	Meta Metadata `json:"-" koanf:"-"`
}

// SlowDisabled turns slow detection off for a log point even when the
// default entry sets a threshold.
const SlowDisabled time.Duration = -1

// IsSlow reports whether cost crosses the threshold.
func (e Entry) IsSlow(cost time.Duration) bool {
	return e.SlowThreshold > 0 && cost > e.SlowThreshold
}

func DefaultEntry() Entry {
	return Entry{
		Digest:        OutputAlways,
		Detail:        OutputOnFail,
		SlowThreshold: 0,
		SlowMode:      SlowBoth,
		Meta: Metadata{
			Source: PolicySourceDefault,
		},
	}
}

// Normalize fills blank levels and modes with defaults, canonicalizes
// spellings and compiles exclusion globs. Unknown levels, modes or broken
// globs return a *NormalizeError.
func (e Entry) Normalize() (Entry, error) {
	normalized := e
	norm := &normalized.Meta.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	level := func(field string, cur OutputLevel, def OutputLevel) (OutputLevel, error) {
		if strings.TrimSpace(string(cur)) == "" {
			markChanged(field)
			return def, nil
		}
		l, ok := ParseOutputLevel(string(cur))
		if !ok {
			return "", &NormalizeError{Field: field, Value: string(cur)}
		}
		if l != cur {
			markChanged(field)
		}
		return l, nil
	}

	var err error
	if normalized.Digest, err = level("digest", normalized.Digest, OutputAlways); err != nil {
		return Entry{}, err
	}
	if normalized.Detail, err = level("detail", normalized.Detail, OutputOnFail); err != nil {
		return Entry{}, err
	}

	if strings.TrimSpace(string(normalized.SlowMode)) == "" {
		normalized.SlowMode = SlowBoth
		markChanged("slow_mode")
	} else {
		m, ok := ParseSlowMode(string(normalized.SlowMode))
		if !ok {
			return Entry{}, &NormalizeError{Field: "slow_mode", Value: string(normalized.SlowMode)}
		}
		if m != normalized.SlowMode {
			normalized.SlowMode = m
			markChanged("slow_mode")
		}
	}

	if normalized.Exclude, err = normalized.Exclude.compile(); err != nil {
		return Entry{}, err
	}
	return normalized, nil
}

// Set is the complete output policy: a default entry, per-log-point
// overrides and global exclusions.
type Set struct {
	Default   Entry                      `json:"default" koanf:"default"`
	LogPoints map[observe.LogPoint]Entry `json:"log_points,omitempty" koanf:"log_points"`
	Exclude   Exclusions                 `json:"exclude,omitempty" koanf:"exclude"`

	Meta Metadata `json:"-" koanf:"-"`
}

func DefaultSet() Set {
	return Set{Default: DefaultEntry(), Meta: Metadata{Source: PolicySourceDefault}}
}

// Normalize normalizes every entry. Blank fields of per-log-point entries
// inherit from Default, and the global exclusions are merged into each entry.
func (s Set) Normalize() (Set, error) {
	out := Set{Meta: s.Meta, Exclude: s.Exclude}

	def := s.Default
	def.Exclude = def.Exclude.Merge(s.Exclude)
	d, err := def.Normalize()
	if err != nil {
		return Set{}, err
	}
	out.Default = d
	if d.Meta.Normalization.Changed {
		out.Meta.Normalization.Changed = true
	}

	if len(s.LogPoints) > 0 {
		out.LogPoints = make(map[observe.LogPoint]Entry, len(s.LogPoints))
	}
	for lp, e := range s.LogPoints {
		merged := inherit(e, s.Default)
		merged.Exclude = e.Exclude.Merge(s.Default.Exclude).Merge(s.Exclude)
		n, err := merged.Normalize()
		if err != nil {
			if ne, ok := err.(*NormalizeError); ok {
				ne.Field = "log_points." + string(lp) + "." + ne.Field
			}
			return Set{}, err
		}
		out.LogPoints[lp] = n
	}
	return out, nil
}

// For returns the entry that applies to lp.
func (s Set) For(lp observe.LogPoint) Entry {
	if e, ok := s.LogPoints[lp]; ok {
		return e
	}
	return s.Default
}

func inherit(e, def Entry) Entry {
	if strings.TrimSpace(string(e.Digest)) == "" {
		e.Digest = def.Digest
	}
	if strings.TrimSpace(string(e.Detail)) == "" {
		e.Detail = def.Detail
	}
	if e.SlowThreshold == 0 {
		e.SlowThreshold = def.SlowThreshold
	}
	if strings.TrimSpace(string(e.SlowMode)) == "" {
		e.SlowMode = def.SlowMode
	}
	return e
}
