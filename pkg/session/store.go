package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/zhaopengme/telemvc/pkg/logger"
	"github.com/zhaopengme/telemvc/pkg/update"
)

// ErrCreationFailed wraps errors and panics raised by a state factory.
var ErrCreationFailed = errors.New("session creation failed")

type Lifecycle uint8

const (
	Active Lifecycle = iota
	Expiring
	Removed
)

func (l Lifecycle) String() string {
	switch l {
	case Active:
		return "active"
	case Expiring:
		return "expiring"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Destroyer is implemented by states that release resources when their
// record expires or is invalidated.
type Destroyer interface {
	Destroy()
}

type record[T any] struct {
	state      T
	created    time.Time
	lastAccess time.Time
	lifecycle  Lifecycle
}

// slot serializes every transition of one key. A slot removed from the map
// is marked detached; callers holding a stale pointer retry.
type slot[T any] struct {
	mu       sync.Mutex
	rec      *record[T]
	detached bool
}

// Store keeps one state per session key with a sliding TTL. At most one live
// record exists per key, and an expired record is destroyed before its
// replacement becomes visible.
type Store[T any] struct {
	mu    sync.Mutex
	slots map[update.SessionKey]*slot[T]

	ttl       time.Duration
	now       func() time.Time
	onDestroy func(update.SessionKey, T)
	live      atomic.Int64
}

type Option[T any] func(*Store[T])

// WithClock overrides the time source used for TTL checks.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// WithDestroyHook registers a callback run exactly once per record when it
// leaves the store.
func WithDestroyHook[T any](fn func(key update.SessionKey, state T)) Option[T] {
	return func(s *Store[T]) { s.onDestroy = fn }
}

func NewStore[T any](ttl time.Duration, opts ...Option[T]) (*Store[T], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	s := &Store[T]{
		slots: make(map[update.SessionKey]*slot[T]),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store[T]) TTL() time.Duration { return s.ttl }

// GetOrCreate returns the live state for key, refreshing its access time, or
// builds a new one with factory. Concurrent callers for the same key share a
// single factory invocation.
func (s *Store[T]) GetOrCreate(key update.SessionKey, factory func() (T, error)) (T, error) {
	for {
		sl := s.slotFor(key)
		sl.mu.Lock()
		if sl.detached {
			sl.mu.Unlock()
			continue
		}
		state, err := s.getOrCreateLocked(key, sl, factory)
		sl.mu.Unlock()
		return state, err
	}
}

func (s *Store[T]) slotFor(key update.SessionKey) *slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot[T]{}
		s.slots[key] = sl
	}
	return sl
}

func (s *Store[T]) getOrCreateLocked(key update.SessionKey, sl *slot[T], factory func() (T, error)) (T, error) {
	now := s.now()
	if r := sl.rec; r != nil {
		if r.lifecycle == Active && now.Sub(r.lastAccess) < s.ttl {
			r.lastAccess = now
			return r.state, nil
		}
		s.expireLocked(key, sl)
	}

	state, err := callFactory(factory)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: key %s: %w", ErrCreationFailed, key, err)
	}

	sl.rec = &record[T]{state: state, created: now, lastAccess: now, lifecycle: Active}
	s.live.Add(1)
	logger.DebugCF("session", "Session created", map[string]interface{}{
		"session_key": string(key),
	})
	return state, nil
}

func callFactory[T any](factory func() (T, error)) (state T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panic: %v", r)
		}
	}()
	return factory()
}

// expireLocked moves the slot's record through EXPIRING to REMOVED, running
// the destroy hooks in between. The caller holds sl.mu.
func (s *Store[T]) expireLocked(key update.SessionKey, sl *slot[T]) {
	r := sl.rec
	if r == nil || r.lifecycle != Active {
		return
	}
	r.lifecycle = Expiring
	s.destroy(key, r.state)
	r.lifecycle = Removed
	sl.rec = nil
	s.live.Add(-1)

	logger.DebugCF("session", "Session removed", map[string]interface{}{
		"session_key": string(key),
		"age_ms":      s.now().Sub(r.created).Milliseconds(),
	})
}

func (s *Store[T]) destroy(key update.SessionKey, state T) {
	if d, ok := any(state).(Destroyer); ok {
		s.guard(key, "Session destroy panicked", d.Destroy)
	}
	if s.onDestroy != nil {
		s.guard(key, "Destroy hook panicked", func() { s.onDestroy(key, state) })
	}
}

// guard runs fn, logging instead of propagating a panic.
func (s *Store[T]) guard(key update.SessionKey, msg string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("session", msg, map[string]interface{}{
				"session_key": string(key),
				"panic":       fmt.Sprint(r),
			})
		}
	}()
	fn()
}

// Invalidate destroys the record for key, if any. It reports whether a live
// record was removed.
func (s *Store[T]) Invalidate(key update.SessionKey) bool {
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.detached {
		return false
	}
	removed := sl.rec != nil
	s.expireLocked(key, sl)
	s.detachLocked(key, sl)
	return removed
}

// detachLocked drops an empty slot from the map. The caller holds sl.mu.
func (s *Store[T]) detachLocked(key update.SessionKey, sl *slot[T]) {
	if sl.rec != nil {
		return
	}
	s.mu.Lock()
	if s.slots[key] == sl {
		delete(s.slots, key)
	}
	s.mu.Unlock()
	sl.detached = true
}

// Sweep destroys every record past its TTL and returns how many were
// removed. Keys busy in another call are skipped; they are checked again on
// their next access.
func (s *Store[T]) Sweep() int {
	type entry struct {
		key update.SessionKey
		sl  *slot[T]
	}
	s.mu.Lock()
	entries := make([]entry, 0, len(s.slots))
	for k, sl := range s.slots {
		entries = append(entries, entry{k, sl})
	}
	s.mu.Unlock()

	removed := 0
	for _, e := range entries {
		if !e.sl.mu.TryLock() {
			continue
		}
		if !e.sl.detached {
			if r := e.sl.rec; r != nil && s.now().Sub(r.lastAccess) >= s.ttl {
				s.expireLocked(e.key, e.sl)
				removed++
			}
			s.detachLocked(e.key, e.sl)
		}
		e.sl.mu.Unlock()
	}
	return removed
}

// Close destroys every live record.
func (s *Store[T]) Close() {
	s.mu.Lock()
	keys := make([]update.SessionKey, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		s.Invalidate(k)
	}
}

// Len returns the number of live records.
func (s *Store[T]) Len() int {
	return int(s.live.Load())
}

// RunSweeper calls Sweep on the given cron schedule until ctx is done.
func (s *Store[T]) RunSweeper(ctx context.Context, schedule string) error {
	if !gronx.New().IsValid(schedule) {
		return fmt.Errorf("invalid sweep schedule %q", schedule)
	}
	logger.InfoCF("session", "Session sweeper started", map[string]interface{}{
		"schedule": schedule,
		"ttl":      s.ttl.String(),
	})

	for {
		next, err := gronx.NextTickAfter(schedule, time.Now(), false)
		if err != nil {
			return fmt.Errorf("next sweep tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if n := s.Sweep(); n > 0 {
			logger.InfoCF("session", "Expired sessions swept", map[string]interface{}{
				"removed": n,
				"live":    s.Len(),
			})
		}
	}
}
