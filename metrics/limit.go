package metrics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aponysus/callscope/observe"
)

// ErrCardinalityExceeded is returned once the identifier ceiling is reached
// and a measurement would create a new identifier.
var ErrCardinalityExceeded = errors.New("callscope: metric identifier ceiling exceeded")

// IDSet tracks admitted metric identifiers (name plus tag pairs) against a
// ceiling. One IDSet may back several Limiters to enforce a single ceiling
// across engines in a process.
type IDSet struct {
	max int64

	count atomic.Int64
	seen  sync.Map // identifier -> struct{}
}

// NewIDSet returns a set admitting at most max identifiers. max <= 0 means
// unlimited.
func NewIDSet(max int) *IDSet {
	return &IDSet{max: int64(max)}
}

// Admit reports whether the identifier is known or fits under the ceiling,
// recording it in the latter case.
func (s *IDSet) Admit(name string, tags []observe.Tag) bool {
	id := identifier(name, tags)
	if _, ok := s.seen.Load(id); ok {
		return true
	}
	if s.max > 0 {
		if n := s.count.Add(1); n > s.max {
			s.count.Add(-1)
			return false
		}
	} else {
		s.count.Add(1)
	}
	if _, loaded := s.seen.LoadOrStore(id, struct{}{}); loaded {
		s.count.Add(-1)
	}
	return true
}

// Len returns the number of admitted identifiers.
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return int(s.count.Load())
}

// Exceeded reports whether the ceiling has been reached.
func (s *IDSet) Exceeded() bool {
	return s != nil && s.max > 0 && s.count.Load() >= s.max
}

// Limiter caps the number of distinct metric identifiers forwarded to the
// wrapped recorder. Identifiers admitted before the ceiling was reached keep
// recording.
type Limiter struct {
	next Recorder
	ids  *IDSet
}

// NewLimiter wraps next with its own ceiling of max identifiers. max <= 0
// means unlimited.
func NewLimiter(next Recorder, max int) *Limiter {
	return NewSharedLimiter(next, NewIDSet(max))
}

// NewSharedLimiter wraps next with the ceiling held by ids. A nil ids is
// unlimited.
func NewSharedLimiter(next Recorder, ids *IDSet) *Limiter {
	if next == nil {
		next = Noop{}
	}
	if ids == nil {
		ids = NewIDSet(0)
	}
	return &Limiter{next: next, ids: ids}
}

// Record forwards m when its identifier is known or fits under the ceiling.
func (l *Limiter) Record(ctx context.Context, m Measurement) error {
	if l == nil {
		return nil
	}
	if !l.ids.Admit(m.Name, m.Tags) {
		return ErrCardinalityExceeded
	}
	return l.next.Record(ctx, m)
}

// Len returns the number of admitted identifiers.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	return l.ids.Len()
}

// Exceeded reports whether the ceiling has been reached.
func (l *Limiter) Exceeded() bool {
	return l != nil && l.ids.Exceeded()
}

func identifier(name string, tags []observe.Tag) string {
	pairs := make([]string, 0, len(tags))
	for _, t := range uniqueTags(tags) {
		pairs = append(pairs, t.Key+"="+t.Value)
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}
