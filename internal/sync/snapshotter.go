package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/pages"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/store"
	"go.uber.org/zap"
)

// Snapshotter mirrors the conversation cache into the query_cache table so
// the next run starts warm.
type Snapshotter struct {
	db     *store.DB
	cache  *querycache.Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotter creates a new snapshotter.
func NewSnapshotter(db *store.DB, cache *querycache.Store, b *bus.Bus, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{db: db, cache: cache, bus: b, logger: logger}
}

// Start persists every key the cache reports as updated.
func (s *Snapshotter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	ch, unsub := s.bus.Subscribe(bus.QueryUpdated, 256)

	go func() {
		defer close(s.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(querycache.Change)
				if !ok {
					continue
				}
				if err := s.Persist(change.Key); err != nil {
					s.logger.Error("failed to persist snapshot", zap.Stringer("key", change.Key), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event loop and persists every cached key once more, so
// updates dropped by a full subscription buffer are not lost.
func (s *Snapshotter) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.Flush(); err != nil {
		s.logger.Error("failed to flush snapshots", zap.Error(err))
	}
}

// Persist writes the current value of key, or deletes its row when the key
// has no data.
func (s *Snapshotter) Persist(key querycache.Key) error {
	c := s.cache.Get(key)
	if c == nil {
		return s.db.DeleteSnapshot(key.String())
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.SaveSnapshot(&store.Snapshot{
		Key:           key.String(),
		PhoneNumberID: key.PhoneNumberID,
		Participant:   key.Participant,
		Data:          data,
	})
}

// Flush persists every key in the cache.
func (s *Snapshotter) Flush() error {
	for _, key := range s.cache.Keys() {
		if err := s.Persist(key); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	return nil
}

// Hydrate seeds the cache from stored snapshots. Speculative messages left by
// an interrupted send are dropped. Seeded keys are stale, so they are
// refetched when opened. Unreadable snapshots are skipped.
func (s *Snapshotter) Hydrate() (int, error) {
	snaps, err := s.db.LoadSnapshots()
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	n := 0
	for _, snap := range snaps {
		var c querycache.Collection
		if err := json.Unmarshal(snap.Data, &c); err != nil {
			s.logger.Warn("skipping unreadable snapshot", zap.String("key", snap.Key), zap.Error(err))
			continue
		}
		key := querycache.Key{PhoneNumberID: snap.PhoneNumberID, Participant: snap.Participant}
		clean := pages.Filter(&c, func(m openphone.Message) bool { return !outbox.IsSpeculative(m) })
		s.cache.Seed(key, clean, time.UnixMilli(snap.UpdatedAt))
		n++
	}
	return n, nil
}
