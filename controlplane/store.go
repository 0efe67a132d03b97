package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the active Snapshot. Readers see either the old or the new
// snapshot in full; updates replace the pointer and never mutate in place.
type Store struct {
	cur     atomic.Pointer[Snapshot]
	version atomic.Uint64

	mu        sync.Mutex
	listeners []func(*Snapshot)
	nowFn     func() time.Time
}

// NewStore returns a Store serving initial, or DefaultSnapshot when initial
// is nil.
func NewStore(initial *Snapshot) (*Store, error) {
	s := &Store{}
	if initial == nil {
		s.cur.Store(DefaultSnapshot())
		return s, nil
	}
	if err := s.Update(*initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the active snapshot. It never returns nil.
func (s *Store) Load() *Snapshot {
	if s == nil {
		return DefaultSnapshot()
	}
	if cur := s.cur.Load(); cur != nil {
		return cur
	}
	return DefaultSnapshot()
}

// Update normalizes next and makes it the active snapshot. On error the
// previous snapshot stays active and the error wraps ErrInvalidConfig.
func (s *Store) Update(next Snapshot) error {
	if s == nil {
		return ErrProviderUnavailable
	}
	n, err := next.Normalize()
	if err != nil {
		if !errors.Is(err, ErrInvalidConfig) {
			err = fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return err
	}
	n.Version = s.version.Add(1)
	n.LoadedAt = s.now()
	s.cur.Store(&n)

	s.mu.Lock()
	listeners := append([]func(*Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(&n)
	}
	return nil
}

// Refresh pulls a snapshot from p and applies it.
func (s *Store) Refresh(ctx context.Context, p Provider) error {
	if p == nil {
		return ErrProviderUnavailable
	}
	next, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	return s.Update(next)
}

// OnUpdate registers fn to run after every successful Update.
func (s *Store) OnUpdate(fn func(*Snapshot)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}
