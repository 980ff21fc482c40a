package api

import (
	"context"
	"errors"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/pages"
	"github.com/matheus3301/opsms/internal/querycache"
	syncer "github.com/matheus3301/opsms/internal/sync"
	"go.uber.org/zap"
)

// QueryState is what a view needs to render a conversation.
type QueryState struct {
	Pages       []pages.Page[openphone.Message]
	IsLoading   bool
	IsFetching  bool
	IsError     bool
	Err         error
	HasNextPage bool
}

// MessagesQuery is the read handle for one conversation.
type MessagesQuery struct {
	key    querycache.Key
	cache  *querycache.Store
	pager  *syncer.Pager
	bus    *bus.Bus
	logger *zap.Logger
}

func (q *MessagesQuery) Key() querycache.Key { return q.key }

// State returns the current cache state of the conversation.
func (q *MessagesQuery) State() QueryState {
	st := q.cache.State(q.key)
	out := QueryState{
		IsLoading:   st.IsLoading,
		IsFetching:  st.IsFetching,
		IsError:     st.IsError,
		Err:         st.Err,
		HasNextPage: syncer.NextCursor(st.Data) != pages.NoCursor,
	}
	if st.Data != nil {
		out.Pages = st.Data.Pages
	}
	return out
}

// Open loads the conversation if it is not cached or is stale.
func (q *MessagesQuery) Open(ctx context.Context) error {
	return ignoreCancelled(q.pager.Load(ctx, q.key))
}

// Refetch re-reads every loaded page.
func (q *MessagesQuery) Refetch(ctx context.Context) error {
	return ignoreCancelled(q.pager.Refetch(ctx, q.key))
}

// FetchNextPage loads the next older page. It reports false when there was
// nothing to load or the fetch was cancelled by a send.
func (q *MessagesQuery) FetchNextPage(ctx context.Context) (bool, error) {
	ok, err := q.pager.FetchNextPage(ctx, q.key)
	if errors.Is(err, querycache.ErrFetchCancelled) {
		return false, nil
	}
	return ok, err
}

// HasNextPage reports whether an older page exists.
func (q *MessagesQuery) HasNextPage() bool {
	return syncer.NextCursor(q.cache.Get(q.key)) != pages.NoCursor
}

// Messages returns every loaded message, oldest first.
func (q *MessagesQuery) Messages() []openphone.Message {
	return Chronological(q.cache.Get(q.key))
}

// Watch delivers every cache and send event for the conversation.
func (q *MessagesQuery) Watch(bufSize int) (<-chan bus.Event, func()) {
	return q.bus.SubscribeKey("", q.key.String(), bufSize)
}

func ignoreCancelled(err error) error {
	if errors.Is(err, querycache.ErrFetchCancelled) {
		return nil
	}
	return err
}

// SendMutation is the write handle for one conversation.
type SendMutation struct {
	key    querycache.Key
	sender *outbox.Sender
}

// Mutate sends content optimistically. See outbox.Sender.Send.
func (m *SendMutation) Mutate(ctx context.Context, content string) (openphone.Message, error) {
	return m.sender.Send(ctx, outbox.Draft{Key: m.key, Content: content})
}

// IsPending reports whether a send is in flight for the conversation.
func (m *SendMutation) IsPending() bool {
	return m.sender.IsPending(m.key)
}
