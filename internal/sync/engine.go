// Package sync keeps the conversation cache in step with the server and
// with the local snapshot database.
package sync

import (
	"context"
	"errors"
	stdsync "sync"

	"github.com/matheus3301/opsms/internal/querycache"
	"go.uber.org/zap"
)

// Engine performs forced refetches. Every key invalidated in the pager's
// cache is queued, and the queue is worked off one key at a time.
// A key invalidated again while queued is refetched once.
type Engine struct {
	pager  *Pager
	logger *zap.Logger

	mu     stdsync.Mutex
	queued map[querycache.Key]struct{}
	queue  []querycache.Key
	wake   chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a refetch engine and hooks it to the pager's cache.
// Keys invalidated before Start are refetched once it runs.
func NewEngine(pager *Pager, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		pager:  pager,
		logger: logger,
		queued: make(map[querycache.Key]struct{}),
		wake:   make(chan struct{}, 1),
	}
	pager.cache.OnInvalidate(e.Schedule)
	return e
}

// Schedule queues a forced refetch of key. It never blocks.
func (e *Engine) Schedule(key querycache.Key) {
	e.mu.Lock()
	if _, ok := e.queued[key]; !ok {
		e.queued[key] = struct{}{}
		e.queue = append(e.queue, key)
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of keys waiting to be refetched.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) next() (querycache.Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return querycache.Key{}, false
	}
	key := e.queue[0]
	e.queue = e.queue[1:]
	delete(e.queued, key)
	return key, true
}

// Start runs the refetch loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		for ctx.Err() == nil {
			key, ok := e.next()
			if !ok {
				select {
				case <-e.wake:
				case <-ctx.Done():
				}
				continue
			}
			e.refetch(ctx, key)
		}
	}()
}

// Stop stops the engine and waits for the current refetch to finish.
// Keys still queued stay stale and are refetched on their next open.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) refetch(ctx context.Context, key querycache.Key) {
	err := e.pager.ForceRefetch(ctx, key)
	switch {
	case err == nil:
		e.logger.Debug("refetched", zap.Stringer("key", key))
	case errors.Is(err, querycache.ErrFetchCancelled), errors.Is(err, context.Canceled):
		e.logger.Debug("refetch cancelled", zap.Stringer("key", key))
	default:
		e.logger.Warn("refetch failed", zap.Stringer("key", key), zap.Error(err))
	}
}
