package querycache

import (
	"context"

	"github.com/matheus3301/opsms/internal/bus"
	"go.uber.org/zap"
)

// Fetch is a ticket for one in-flight read of a key. Its result may only be
// written through Commit, which refuses it if the key was cancelled since
// the ticket was issued.
type Fetch struct {
	ctx context.Context
	key Key
	id  uint64
	gen uint64
}

// Context is cancelled when the fetch is cancelled through Store.Cancel.
func (f *Fetch) Context() context.Context { return f.ctx }

// Key returns the key being fetched.
func (f *Fetch) Key() Key { return f.key }

// BeginFetch registers an in-flight read for key.
// Every ticket must be finished with Commit or Fail.
func (s *Store) BeginFetch(ctx context.Context, key Key) *Fetch {
	fctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	s.nextFetch++
	id := s.nextFetch
	e.fetches[id] = cancel
	return &Fetch{ctx: fctx, key: key, id: id, gen: e.gen}
}

// finishLocked removes f from the in-flight set and reports whether its
// result is still current. Caller holds s.mu.
func (s *Store) finishLocked(f *Fetch) (*entry, bool) {
	e := s.entryLocked(f.key)
	if cancel, ok := e.fetches[f.id]; ok {
		cancel()
		delete(e.fetches, f.id)
	}
	return e, e.gen == f.gen
}

// Commit applies fn to the current collection and stores the result, unless
// the fetch was cancelled, in which case nothing is written and
// ErrFetchCancelled is returned.
func (s *Store) Commit(f *Fetch, fn func(*Collection) *Collection) error {
	s.mu.Lock()
	e, current := s.finishLocked(f)
	if !current {
		s.mu.Unlock()
		s.logger.Debug("discarding cancelled fetch result", zap.Stringer("key", f.key))
		return ErrFetchCancelled
	}
	next := fn(e.data)
	s.writeLocked(f.key, next)
	e.stale = false
	s.mu.Unlock()

	s.publish(bus.QueryUpdated, Change{Key: f.key, Data: next})
	return nil
}

// Fail records a failed fetch. The cached collection is left untouched.
// A failure of a cancelled fetch is not recorded and ErrFetchCancelled is
// returned instead of err.
func (s *Store) Fail(f *Fetch, err error) error {
	s.mu.Lock()
	e, current := s.finishLocked(f)
	if !current {
		s.mu.Unlock()
		return ErrFetchCancelled
	}
	e.err = err
	s.mu.Unlock()

	s.publish(bus.QueryFetchFailed, Change{Key: f.key, Err: err})
	return err
}
