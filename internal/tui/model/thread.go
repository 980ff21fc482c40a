package model

import (
	"context"
	"sync"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/querycache"
)

// Thread pairs the query and mutation handles of one conversation.
type Thread struct {
	Query    *api.MessagesQuery
	Mutation *api.SendMutation

	mu   sync.Mutex
	stop func()
}

// ThreadSnapshot is everything the thread view renders.
type ThreadSnapshot struct {
	Messages []openphone.Message
	State    api.QueryState
	Pending  bool
}

// Key returns the conversation key.
func (t *Thread) Key() querycache.Key {
	return t.Query.Key()
}

// Snapshot reads the current thread state.
func (t *Thread) Snapshot() ThreadSnapshot {
	return ThreadSnapshot{
		Messages: t.Query.Messages(),
		State:    t.Query.State(),
		Pending:  t.Mutation.IsPending(),
	}
}

// Watch calls onChange for every cache or send event of the conversation
// until Unwatch or ctx is done. Bursts of events coalesce into one call.
func (t *Thread) Watch(ctx context.Context, onChange func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsub := t.Query.Watch(16)
	stop := func() {
		cancel()
		unsub()
	}

	t.mu.Lock()
	if t.stop != nil {
		t.stop()
	}
	t.stop = stop
	t.mu.Unlock()

	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case <-events:
				drain(events)
				onChange()
			}
		}
	}()
}

// Unwatch stops delivering events to the Watch callback.
func (t *Thread) Unwatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func drain[T any](ch <-chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
