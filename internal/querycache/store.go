// Package querycache holds the per-conversation message cache. Every write
// replaces the stored collection with a new value; readers never observe a
// collection being modified in place.
package querycache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/pages"
	"go.uber.org/zap"
)

// ErrFetchCancelled is returned when a fetch result arrives after Cancel was
// called for its key. The result is dropped.
var ErrFetchCancelled = errors.New("fetch cancelled")

// Collection is the cached message history of one conversation.
type Collection = pages.Collection[openphone.Message]

// Key identifies a conversation: a local phone number and the remote participant.
type Key struct {
	PhoneNumberID string
	Participant   string
}

func (k Key) String() string {
	return "messages/" + k.PhoneNumberID + "/" + k.Participant
}

// State is a point-in-time view of one cache entry.
type State struct {
	Data       *Collection
	IsLoading  bool
	IsFetching bool
	IsError    bool
	Err        error
	Stale      bool
	UpdatedAt  time.Time
}

type entry struct {
	data      *Collection
	gen       uint64
	fetches   map[uint64]context.CancelFunc
	err       error
	stale     bool
	updatedAt time.Time
}

// Store maps conversation keys to collections.
type Store struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	nextFetch uint64
	bus       *bus.Bus
	logger    *zap.Logger

	onInvalidate []func(Key)
}

// New creates an empty store. Changes are announced on b when it is non-nil.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[Key]*entry),
		bus:     b,
		logger:  logger,
	}
}

// entryLocked returns the entry for key, creating it. Caller holds s.mu.
func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{fetches: make(map[uint64]context.CancelFunc)}
		s.entries[key] = e
	}
	return e
}

// Get returns the current collection for key, or nil.
func (s *Store) Get(key Key) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.data
	}
	return nil
}

// Set replaces the collection for key. A nil collection clears the entry's data.
func (s *Store) Set(key Key, c *Collection) {
	s.mu.Lock()
	s.writeLocked(key, c)
	s.mu.Unlock()
	s.publish(bus.QueryUpdated, Change{Key: key, Data: c})
}

// Update applies fn to the current collection and stores the result, as one
// atomic step. fn must not retain or modify its argument.
func (s *Store) Update(key Key, fn func(*Collection) *Collection) *Collection {
	s.mu.Lock()
	cur := s.entryLocked(key).data
	next := fn(cur)
	changed := next != cur
	if changed {
		s.writeLocked(key, next)
	}
	s.mu.Unlock()

	if changed {
		s.publish(bus.QueryUpdated, Change{Key: key, Data: next})
	}
	return next
}

func (s *Store) writeLocked(key Key, c *Collection) {
	e := s.entryLocked(key)
	e.data = c
	e.err = nil
	e.updatedAt = time.Now()
}

// Seed loads a collection without announcing it, marking it stale so the
// next open refetches it.
func (s *Store) Seed(key Key, c *Collection, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.data = c
	e.stale = true
	e.updatedAt = updatedAt
}

// Cancel aborts every in-flight fetch for key. Once Cancel returns, results
// of those fetches can no longer be committed.
func (s *Store) Cancel(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.gen++
	n := len(e.fetches)
	for id, cancel := range e.fetches {
		cancel()
		delete(e.fetches, id)
	}
	s.mu.Unlock()

	if n > 0 {
		s.logger.Debug("cancelled in-flight fetches", zap.Stringer("key", key), zap.Int("count", n))
	}
}

// OnInvalidate registers fn to run on every Invalidate, after the key is
// marked stale. Unlike bus subscribers, hooks never miss a key. fn runs on
// the invalidating goroutine and must not block.
func (s *Store) OnInvalidate(fn func(Key)) {
	s.mu.Lock()
	s.onInvalidate = append(s.onInvalidate, fn)
	s.mu.Unlock()
}

// Invalidate marks key stale and announces that it must be refetched.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	s.entryLocked(key).stale = true
	hooks := s.onInvalidate
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(key)
	}
	s.publish(bus.QueryInvalidated, Change{Key: key})
}

// State reports the entry for key.
func (s *Store) State(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return State{}
	}
	fetching := len(e.fetches) > 0
	return State{
		Data:       e.data,
		IsLoading:  fetching && e.data == nil,
		IsFetching: fetching,
		IsError:    e.err != nil,
		Err:        e.err,
		Stale:      e.stale,
		UpdatedAt:  e.updatedAt,
	}
}

// Keys returns every key with an entry, in a stable order.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Change is the payload of every event the store publishes.
type Change struct {
	Key  Key
	Data *Collection
	Err  error
}

func (s *Store) publish(kind string, c Change) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Key: c.Key.String(), Payload: c})
}
