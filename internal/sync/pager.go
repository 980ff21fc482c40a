package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/pages"
	"github.com/matheus3301/opsms/internal/querycache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MessageLister fetches one page of a conversation. *openphone.Client implements it.
type MessageLister interface {
	ListMessages(ctx context.Context, p openphone.ListMessagesParams) (*openphone.MessagesResponse, error)
}

// Pager reads conversation pages from the server into the cache.
// Identical concurrent requests for the same key and cursor share one fetch.
type Pager struct {
	cache    *querycache.Store
	lister   MessageLister
	pageSize int
	logger   *zap.Logger
	group    singleflight.Group
}

// NewPager creates a pager. pageSize <= 0 uses the server default.
func NewPager(cache *querycache.Store, lister MessageLister, pageSize int, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{cache: cache, lister: lister, pageSize: pageSize, logger: logger}
}

// Load makes sure key has data: it fetches when nothing is cached or the
// cached collection is stale, and does nothing otherwise.
func (p *Pager) Load(ctx context.Context, key querycache.Key) error {
	st := p.cache.State(key)
	if st.Data != nil && !st.Stale {
		return nil
	}
	return p.Refetch(ctx, key)
}

// NextCursor returns the cursor of the page older than c's last page, or
// NoCursor when there is none. A cursor c was already read with also yields
// NoCursor, so a server that repeats cursors cannot make paging loop.
func NextCursor(c *querycache.Collection) string {
	token := pages.NextPageToken(c)
	if token != pages.NoCursor && slices.Contains(c.PageParams, token) {
		return pages.NoCursor
	}
	return token
}

// FetchNextPage appends the next older page to key's collection. It reports
// false without fetching when there is no older page.
// If the collection's cursor moved while the fetch was in flight, the
// fetched page is dropped.
func (p *Pager) FetchNextPage(ctx context.Context, key querycache.Key) (bool, error) {
	token := NextCursor(p.cache.Get(key))
	if token == pages.NoCursor {
		return false, nil
	}

	_, err, _ := p.group.Do(key.String()+"|next|"+token, func() (any, error) {
		f := p.cache.BeginFetch(ctx, key)
		page, err := p.fetchPage(f.Context(), key, token)
		if err != nil {
			return nil, p.cache.Fail(f, err)
		}
		return nil, p.cache.Commit(f, func(cur *querycache.Collection) *querycache.Collection {
			if pages.NextPageToken(cur) != token {
				p.logger.Debug("cursor moved, dropping fetched page", zap.Stringer("key", key))
				return cur
			}
			return pages.AppendPage(cur, page, token)
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Refetch re-reads key from the newest page, following cursors for as many
// pages as are currently loaded, and replaces the collection in one write.
// The fetch result replaces whatever is cached, speculative messages included.
//
// A caller that joined a shared fetch which was then cancelled by a send
// fetches again, so a refetch requested after the send still happens.
func (p *Pager) Refetch(ctx context.Context, key querycache.Key) error {
	var err error
	for range maxRefetchAttempts {
		var shared bool
		shared, err = p.refetch(ctx, key)
		if !shared || !errors.Is(err, querycache.ErrFetchCancelled) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

const maxRefetchAttempts = 3

// ForceRefetch discards every fetch in flight for key and reads it again.
// Unlike Refetch it never joins a read that was issued before the call, so
// the result reflects the server as of now.
func (p *Pager) ForceRefetch(ctx context.Context, key querycache.Key) error {
	p.cache.Cancel(key)
	p.group.Forget(key.String() + "|refetch")
	return p.Refetch(ctx, key)
}

func (p *Pager) refetch(ctx context.Context, key querycache.Key) (bool, error) {
	_, err, shared := p.group.Do(key.String()+"|refetch", func() (any, error) {
		f := p.cache.BeginFetch(ctx, key)
		loaded := 1
		if c := p.cache.Get(key); c != nil && len(c.Pages) > loaded {
			loaded = len(c.Pages)
		}

		fresh, err := p.readPages(f.Context(), key, loaded)
		if err != nil {
			return nil, p.cache.Fail(f, err)
		}
		return nil, p.cache.Commit(f, func(*querycache.Collection) *querycache.Collection {
			return fresh
		})
	})
	return shared, err
}

func (p *Pager) readPages(ctx context.Context, key querycache.Key, n int) (*querycache.Collection, error) {
	first, err := p.fetchPage(ctx, key, pages.NoCursor)
	if err != nil {
		return nil, err
	}
	c := pages.New(first)
	for len(c.Pages) < n {
		token := pages.NextPageToken(c)
		if token == pages.NoCursor {
			break
		}
		page, err := p.fetchPage(ctx, key, token)
		if err != nil {
			return nil, err
		}
		c = pages.AppendPage(c, page, token)
	}
	return c, nil
}

func (p *Pager) fetchPage(ctx context.Context, key querycache.Key, token string) (pages.Page[openphone.Message], error) {
	resp, err := p.lister.ListMessages(ctx, openphone.ListMessagesParams{
		PhoneNumberID: key.PhoneNumberID,
		Participants:  []string{key.Participant},
		PageToken:     token,
		MaxResults:    p.pageSize,
	})
	if err != nil {
		return pages.Page[openphone.Message]{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	return resp.Page(), nil
}
