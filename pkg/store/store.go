// Package store holds the latest known value of each broker data domain.
// A Store is written only through Write or an Attempt's Settle, and every
// write is ordered by its completion time: a result that completed before
// the currently stored one is discarded.
package store

import (
	"sync"
	"time"
)

// Result is the outcome of one fetch attempt, either a value or an error reason
type Result[T any] struct {
	Value       T
	Err         string
	CompletedAt time.Time
	failed      bool
}

// Ok makes a successful result
func Ok[T any](value T, completedAt time.Time) Result[T] {
	return Result[T]{Value: value, CompletedAt: completedAt}
}

// Fail makes a failed result with a human-readable reason
func Fail[T any](reason string, completedAt time.Time) Result[T] {
	return Result[T]{Err: reason, CompletedAt: completedAt, failed: true}
}

// Failed reports whether the result carries an error
func (r Result[T]) Failed() bool { return r.failed }

// Entry is a consistent snapshot of a store
type Entry[T any] struct {
	Value         *T         `json:"value"`
	IsLoading     bool       `json:"loading"`
	Error         string     `json:"error,omitempty"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	Version       uint64     `json:"version"`
}

// HasValue reports whether at least one successful result was applied
func (e Entry[T]) HasValue() bool { return e.Value != nil }

// Change is sent to watchers after an applied write or a loading transition
type Change struct {
	Domain  string    `json:"domain"`
	Version uint64    `json:"version"`
	Loading bool      `json:"loading"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"updatedAt"`
	Closed  bool      `json:"closed,omitempty"` // the store was dropped, its watch channels are closed
}

// Store keeps the latest value of one domain. It is safe for concurrent use.
type Store[T any] struct {
	name string

	mu            sync.RWMutex
	value         T
	hasValue      bool
	err           string
	pending       int
	lastUpdatedAt time.Time
	lastAttemptAt time.Time
	version       uint64

	watchMu  sync.Mutex
	watchers map[int]chan Change
	nextID   int
	closed   bool
}

// New makes an empty store for the named domain
func New[T any](name string) *Store[T] {
	return &Store[T]{name: name, watchers: map[int]chan Change{}}
}

// Name returns the domain name
func (s *Store[T]) Name() string { return s.name }

// Read returns a snapshot of the store
func (s *Store[T]) Read() Entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Version returns a counter bumped by every applied write
func (s *Store[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Write applies a result without touching the loading state.
// Returns false if the result is older than the stored one and was discarded.
func (s *Store[T]) Write(res Result[T]) bool {
	return s.write(res, false)
}

// Begin marks the store as loading and returns the attempt owning that mark.
// The mark is released by the attempt's Settle, whether or not the result is applied.
func (s *Store[T]) Begin() *Attempt[T] {
	s.mu.Lock()
	s.pending++
	change := s.change()
	s.mu.Unlock()
	s.notify(change)
	return &Attempt[T]{store: s}
}

func (s *Store[T]) write(res Result[T], release bool) bool {
	s.mu.Lock()
	if release && s.pending > 0 {
		s.pending--
	}

	stale := res.CompletedAt.Before(s.lastUpdatedAt) || (res.failed && res.CompletedAt.Before(s.lastAttemptAt))
	if stale {
		change := s.change()
		s.mu.Unlock()
		if release {
			s.notify(change) // loading may have flipped
		}
		return false
	}

	if res.failed {
		s.err = res.Err
		s.lastAttemptAt = res.CompletedAt
	} else {
		s.value = res.Value
		s.hasValue = true
		s.lastUpdatedAt = res.CompletedAt
		// a newer failure stays visible
		if !res.CompletedAt.Before(s.lastAttemptAt) {
			s.err = ""
			s.lastAttemptAt = res.CompletedAt
		}
	}
	s.version++
	change := s.change()
	s.mu.Unlock()

	s.notify(change)
	return true
}

// Current returns the change describing the present state, for watchers joining late
func (s *Store[T]) Current() Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.change()
}

// Watch subscribes to store changes. Slow watchers only see the latest pending change.
// The returned func unsubscribes and closes the channel.
func (s *Store[T]) Watch() (<-chan Change, func()) {
	ch := make(chan Change, 1)
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch

	return ch, func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}
}

// Close closes all watch channels. Later watches get a closed channel.
func (s *Store[T]) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

func (s *Store[T]) notify(c Change) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- c:
			continue
		default:
		}
		// coalesce: drop the stale pending change and push the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}

// change and snapshot must be called with s.mu held
func (s *Store[T]) change() Change {
	return Change{Domain: s.name, Version: s.version, Loading: s.pending > 0, Error: s.err, At: s.lastUpdatedAt}
}

func (s *Store[T]) snapshot() Entry[T] {
	e := Entry[T]{IsLoading: s.pending > 0, Error: s.err, Version: s.version}
	if s.hasValue {
		v := s.value
		e.Value = &v
	}
	if !s.lastUpdatedAt.IsZero() {
		t := s.lastUpdatedAt
		e.LastUpdatedAt = &t
	}
	if !s.lastAttemptAt.IsZero() {
		t := s.lastAttemptAt
		e.LastAttemptAt = &t
	}
	return e
}

// Attempt owns one loading mark on a store
type Attempt[T any] struct {
	store *Store[T]
	once  sync.Once
	ok    bool
}

// Settle writes the attempt's result and releases its loading mark.
// Only the first call has an effect.
func (a *Attempt[T]) Settle(res Result[T]) bool {
	a.once.Do(func() { a.ok = a.store.write(res, true) })
	return a.ok
}
