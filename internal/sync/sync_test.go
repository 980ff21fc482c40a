package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/pages"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/store"
)

var key = querycache.Key{PhoneNumberID: "PN1", Participant: "+1B"}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeLister serves pages by cursor. When gate is set, every call signals
// started and blocks until gate is closed.
type fakeLister struct {
	byToken map[string]*openphone.MessagesResponse
	err     error
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeLister) ListMessages(ctx context.Context, p openphone.ListMessagesParams) (*openphone.MessagesResponse, error) {
	f.calls.Add(1)
	if f.gate != nil {
		f.started <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.byToken[p.PageToken]
	if !ok {
		return nil, errors.New("unknown page token " + p.PageToken)
	}
	return resp, nil
}

func response(next string, ids ...string) *openphone.MessagesResponse {
	r := &openphone.MessagesResponse{TotalItems: len(ids)}
	for _, id := range ids {
		r.Data = append(r.Data, openphone.Message{ID: id})
	}
	if next != "" {
		r.NextPageToken = &next
	}
	return r
}

// twoPageServer has msg-3,msg-2 on the first page and msg-1 on the second.
func twoPageServer() *fakeLister {
	return &fakeLister{byToken: map[string]*openphone.MessagesResponse{
		"":    response("tok", "msg-3", "msg-2"),
		"tok": response("", "msg-1"),
	}}
}

func ids(c *querycache.Collection) [][]string {
	var out [][]string
	for _, p := range c.Pages {
		var page []string
		for _, m := range p.Items {
			page = append(page, m.ID)
		}
		out = append(out, page)
	}
	return out
}

func TestLoadFetchesFirstPage(t *testing.T) {
	lister := twoPageServer()
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)

	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	c := cache.Get(key)
	if c == nil || len(c.Pages) != 1 || c.Pages[0].NextPageToken != "tok" {
		t.Fatalf("collection = %+v", c)
	}
	if c.PageParams[0] != pages.NoCursor {
		t.Errorf("pageParams = %v", c.PageParams)
	}

	// Fresh data is not refetched.
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestFetchNextPageAppends(t *testing.T) {
	lister := twoPageServer()
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	head := cache.Get(key).Pages[0]

	ok, err := p.FetchNextPage(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("FetchNextPage() = %v, %v", ok, err)
	}
	c := cache.Get(key)
	if got := ids(c); len(got) != 2 || got[1][0] != "msg-1" {
		t.Errorf("pages = %v", got)
	}
	if c.PageParams[1] != "tok" {
		t.Errorf("pageParams = %v", c.PageParams)
	}
	if len(c.Pages[0].Items) != len(head.Items) || c.Pages[0].Items[0].ID != head.Items[0].ID {
		t.Error("first page changed")
	}

	// The second page has no cursor: no further fetch.
	ok, err = p.FetchNextPage(context.Background(), key)
	if err != nil || ok {
		t.Errorf("FetchNextPage() = %v, %v, want false, nil", ok, err)
	}
	if n := lister.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestFetchNextPageStopsOnRepeatedCursor(t *testing.T) {
	lister := &fakeLister{byToken: map[string]*openphone.MessagesResponse{
		"":  response("a", "msg-3"),
		"a": response("b", "msg-2"),
		"b": response("a", "msg-1"),
	}}
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if ok, err := p.FetchNextPage(context.Background(), key); !ok || err != nil {
			t.Fatalf("FetchNextPage() = %v, %v", ok, err)
		}
	}
	// The last page points back at "a", which was already read.
	if got := NextCursor(cache.Get(key)); got != pages.NoCursor {
		t.Errorf("NextCursor() = %q, want none", got)
	}
	ok, err := p.FetchNextPage(context.Background(), key)
	if ok || err != nil {
		t.Errorf("FetchNextPage() = %v, %v, want false, nil", ok, err)
	}
	if n := lister.calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetchNextPageOnEmptyCache(t *testing.T) {
	lister := twoPageServer()
	p := NewPager(querycache.New(nil, nil), lister, 0, nil)
	ok, err := p.FetchNextPage(context.Background(), key)
	if ok || err != nil {
		t.Errorf("FetchNextPage() = %v, %v", ok, err)
	}
	if lister.calls.Load() != 0 {
		t.Error("no fetch expected")
	}
}

func TestFetchNextPageKeepsSpeculativeHead(t *testing.T) {
	lister := twoPageServer()
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	cache.Update(key, func(c *querycache.Collection) *querycache.Collection {
		return pages.InsertAtHead(c, openphone.Message{ID: "temp-1"})
	})

	if _, err := p.FetchNextPage(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if got := ids(cache.Get(key)); got[0][0] != "temp-1" || len(got) != 2 {
		t.Errorf("pages = %v", got)
	}
}

func TestFetchErrorLeavesCache(t *testing.T) {
	lister := twoPageServer()
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	before := cache.Get(key)

	lister.err = &openphone.TransportError{Op: "listMessages", StatusCode: 500, Status: "Internal Server Error"}
	if _, err := p.FetchNextPage(context.Background(), key); err == nil {
		t.Fatal("expected error")
	}
	st := cache.State(key)
	if st.Data != before {
		t.Error("failed fetch modified the cache")
	}
	var terr *openphone.TransportError
	if !st.IsError || !errors.As(st.Err, &terr) {
		t.Errorf("state = %+v", st)
	}
}

func TestRefetchReloadsLoadedPages(t *testing.T) {
	lister := twoPageServer()
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if _, err := p.FetchNextPage(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	cache.Update(key, func(c *querycache.Collection) *querycache.Collection {
		return pages.InsertAtHead(c, openphone.Message{ID: "temp-1"})
	})
	lister.byToken[""] = response("tok", "srv-4", "msg-3", "msg-2")

	if err := p.Refetch(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	got := ids(cache.Get(key))
	if len(got) != 2 || got[0][0] != "srv-4" || len(got[0]) != 3 || got[1][0] != "msg-1" {
		t.Errorf("pages = %v", got)
	}
	if n := lister.calls.Load(); n != 4 {
		t.Errorf("calls = %d, want 4", n)
	}
}

func TestCursorMovedDropsPage(t *testing.T) {
	lister := twoPageServer()
	lister.started = make(chan struct{}, 1)
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	lister.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := p.FetchNextPage(context.Background(), key)
		done <- err
	}()
	<-lister.started

	replaced := pages.New(pages.Page[openphone.Message]{Items: []openphone.Message{{ID: "x"}}, TotalItems: 1})
	cache.Set(key, replaced)
	close(lister.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if cache.Get(key) != replaced {
		t.Error("page fetched for an old cursor was appended")
	}
}

func TestConcurrentNextPageFetchesShared(t *testing.T) {
	lister := twoPageServer()
	lister.started = make(chan struct{}, 2)
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)
	if err := p.Load(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	lister.gate = make(chan struct{})
	done := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := p.FetchNextPage(context.Background(), key)
			done <- err
		}()
	}
	<-lister.started
	time.Sleep(50 * time.Millisecond)
	close(lister.gate)
	for range 2 {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
	if got := ids(cache.Get(key)); len(got) != 2 {
		t.Errorf("pages = %v, want exactly one appended page", got)
	}
	if n := lister.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2 (load + one shared next page)", n)
	}
}

func TestCancelledFetchIsDiscarded(t *testing.T) {
	lister := twoPageServer()
	lister.started = make(chan struct{}, 1)
	lister.gate = make(chan struct{})
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)

	done := make(chan error, 1)
	go func() { done <- p.Refetch(context.Background(), key) }()
	<-lister.started
	cache.Cancel(key)

	if err := <-done; !errors.Is(err, querycache.ErrFetchCancelled) {
		t.Errorf("Refetch() error = %v, want ErrFetchCancelled", err)
	}
	if cache.Get(key) != nil {
		t.Error("cancelled fetch wrote to the cache")
	}
}

func TestEngineRefetchesInvalidatedKeys(t *testing.T) {
	lister := twoPageServer()
	b := bus.New()
	cache := querycache.New(b, nil)
	e := NewEngine(NewPager(cache, lister, 0, nil), nil)
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.SubscribeKey(bus.QueryUpdated, key.String(), 1)
	defer unsub()

	cache.Invalidate(key)
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("invalidated key was not refetched")
	}
	if c := cache.Get(key); c == nil || c.Pages[0].Items[0].ID != "msg-3" {
		t.Errorf("collection = %+v", c)
	}
	if cache.State(key).Stale {
		t.Error("refetched key should not be stale")
	}
}

func TestForceRefetchDoesNotJoinEarlierRead(t *testing.T) {
	lister := twoPageServer()
	lister.started = make(chan struct{}, 2)
	lister.gate = make(chan struct{})
	cache := querycache.New(nil, nil)
	p := NewPager(cache, lister, 0, nil)

	earlier := make(chan error, 1)
	go func() { earlier <- p.Refetch(context.Background(), key) }()
	<-lister.started

	lister.byToken[""] = response("", "srv-4", "msg-3")
	forced := make(chan error, 1)
	go func() { forced <- p.ForceRefetch(context.Background(), key) }()
	select {
	case <-lister.started:
	case <-time.After(2 * time.Second):
		t.Fatal("forced refetch joined the earlier read")
	}
	close(lister.gate)

	if err := <-earlier; !errors.Is(err, querycache.ErrFetchCancelled) {
		t.Errorf("earlier Refetch() error = %v, want ErrFetchCancelled", err)
	}
	if err := <-forced; err != nil {
		t.Fatal(err)
	}
	if got := ids(cache.Get(key)); got[0][0] != "srv-4" {
		t.Errorf("pages = %v", got)
	}
	if n := lister.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestEngineRefetchesEveryInvalidatedKey(t *testing.T) {
	lister := twoPageServer()
	lister.started = make(chan struct{}, 1024)
	lister.gate = make(chan struct{})
	cache := querycache.New(bus.New(), nil)
	e := NewEngine(NewPager(cache, lister, 0, nil), nil)
	e.Start(context.Background())
	defer e.Stop()

	// More keys than a bus subscription buffers, invalidated while the
	// first refetch is stuck on the network.
	keys := make([]querycache.Key, 600)
	for i := range keys {
		keys[i] = querycache.Key{PhoneNumberID: "PN1", Participant: fmt.Sprintf("+1555%04d", i)}
		cache.Invalidate(keys[i])
	}
	<-lister.started
	close(lister.gate)

	deadline := time.After(5 * time.Second)
	for _, k := range keys {
		for cache.State(k).Stale {
			select {
			case <-deadline:
				t.Fatalf("%s was never refetched (%d still queued)", k, e.Pending())
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	if n := lister.calls.Load(); n != int32(len(keys)) {
		t.Errorf("calls = %d, want %d", n, len(keys))
	}
}

func TestEngineCoalescesRepeatedInvalidation(t *testing.T) {
	cache := querycache.New(nil, nil)
	e := NewEngine(NewPager(cache, twoPageServer(), 0, nil), nil)

	cache.Invalidate(key)
	cache.Invalidate(key)
	cache.Invalidate(querycache.Key{PhoneNumberID: "PN1", Participant: "+1C"})
	if n := e.Pending(); n != 2 {
		t.Errorf("Pending() = %d, want 2", n)
	}
}

// chatServer is a backend holding one conversation, newest first. A list
// request reads the conversation when it is issued. When hold is set, the
// next list request blocks on it after reading.
type chatServer struct {
	mu       stdsync.Mutex
	messages []openphone.Message
	lists    int
	hold     chan struct{}

	listStarted chan struct{}
	sendStarted chan struct{}
	sendGate    chan struct{}
}

func (s *chatServer) ListMessages(ctx context.Context, p openphone.ListMessagesParams) (*openphone.MessagesResponse, error) {
	s.mu.Lock()
	s.lists++
	data := slices.Clone(s.messages)
	hold := s.hold
	s.hold = nil
	s.mu.Unlock()

	if hold != nil {
		s.listStarted <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &openphone.MessagesResponse{Data: data, TotalItems: len(data)}, nil
}

func (s *chatServer) SendMessage(ctx context.Context, p openphone.SendMessageParams) (*openphone.SendMessageResponse, error) {
	s.sendStarted <- struct{}{}
	<-s.sendGate
	msg := openphone.Message{ID: "srv-1", Text: p.Content, Direction: openphone.Outgoing}
	s.mu.Lock()
	s.messages = append([]openphone.Message{msg}, s.messages...)
	s.mu.Unlock()
	return &openphone.SendMessageResponse{Data: msg}, nil
}

func (s *chatServer) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func TestSettlementRefetchReadsAfterSend(t *testing.T) {
	ctx := context.Background()
	srv := &chatServer{
		messages:    []openphone.Message{{ID: "msg-1"}},
		listStarted: make(chan struct{}, 1),
		sendStarted: make(chan struct{}, 1),
		sendGate:    make(chan struct{}),
	}
	cache := querycache.New(bus.New(), nil)
	pager := NewPager(cache, srv, 0, nil)
	e := NewEngine(pager, nil)
	e.Start(ctx)
	defer e.Stop()

	if err := pager.Load(ctx, key); err != nil {
		t.Fatal(err)
	}

	sender := outbox.NewSender(cache, srv, nil, nil)
	sent := make(chan error, 1)
	go func() {
		_, err := sender.Send(ctx, outbox.Draft{Key: key, Content: "hi"})
		sent <- err
	}()
	<-srv.sendStarted

	// A user refetch while the send is pending reads the server before the
	// message exists there.
	hold := make(chan struct{})
	srv.mu.Lock()
	srv.hold = hold
	srv.mu.Unlock()
	refetched := make(chan error, 1)
	go func() { refetched <- pager.Refetch(ctx, key) }()
	<-srv.listStarted

	close(srv.sendGate)
	if err := <-sent; err != nil {
		t.Fatal(err)
	}
	close(hold)
	select {
	case err := <-refetched:
		if !errors.Is(err, querycache.ErrFetchCancelled) {
			t.Errorf("pending-window Refetch() error = %v, want ErrFetchCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending-window refetch did not return")
	}

	deadline := time.After(2 * time.Second)
	for {
		st := cache.State(key)
		if !st.Stale && !st.IsFetching {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("settlement refetch never committed: %+v", st)
		case <-time.After(5 * time.Millisecond):
		}
	}

	got := ids(cache.Get(key))
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != "srv-1" || got[0][1] != "msg-1" {
		t.Errorf("pages = %v, want [[srv-1 msg-1]]", got)
	}
	if n := srv.listCount(); n != 3 {
		t.Errorf("list calls = %d, want 3 (load, pending-window read, settlement read)", n)
	}
}

func TestSnapshotPersistAndHydrate(t *testing.T) {
	db := testDB(t)
	cache := querycache.New(nil, nil)
	s := NewSnapshotter(db, cache, bus.New(), nil)

	c := pages.New(pages.Page[openphone.Message]{
		Items:         []openphone.Message{{ID: "msg-2", Text: "hi"}},
		TotalItems:    1,
		NextPageToken: "tok",
	})
	c = pages.InsertAtHead(c, openphone.Message{ID: "temp-1-abc", Text: "pending"})
	cache.Set(key, c)
	if err := s.Persist(key); err != nil {
		t.Fatal(err)
	}

	fresh := querycache.New(nil, nil)
	n, err := NewSnapshotter(db, fresh, bus.New(), nil).Hydrate()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("hydrated %d keys, want 1", n)
	}
	st := fresh.State(key)
	if !st.Stale {
		t.Error("hydrated entry should be stale")
	}
	if got := ids(st.Data); len(got[0]) != 1 || got[0][0] != "msg-2" {
		t.Errorf("pages = %v, want speculative item dropped", got)
	}
	if st.Data.Pages[0].TotalItems != 1 || st.Data.Pages[0].NextPageToken != "tok" {
		t.Errorf("page = %+v", st.Data.Pages[0])
	}
}

func TestSnapshotPersistAbsentDeletes(t *testing.T) {
	db := testDB(t)
	cache := querycache.New(nil, nil)
	s := NewSnapshotter(db, cache, bus.New(), nil)

	cache.Set(key, pages.New(pages.Page[openphone.Message]{Items: []openphone.Message{{ID: "m"}}, TotalItems: 1}))
	if err := s.Persist(key); err != nil {
		t.Fatal(err)
	}
	cache.Set(key, nil)
	if err := s.Persist(key); err != nil {
		t.Fatal(err)
	}
	snaps, err := db.LoadSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0", len(snaps))
	}
}

func TestSnapshotterFollowsUpdates(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	cache := querycache.New(b, nil)
	s := NewSnapshotter(db, cache, b, nil)
	s.Start(context.Background())

	cache.Set(key, pages.New(pages.Page[openphone.Message]{Items: []openphone.Message{{ID: "m"}}, TotalItems: 1}))
	s.Stop()

	snaps, err := db.LoadSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Key != key.String() {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestHydrateSkipsCorruptSnapshot(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSnapshot(&store.Snapshot{Key: "bad", PhoneNumberID: "PN1", Participant: "+1", Data: []byte("{")}); err != nil {
		t.Fatal(err)
	}
	n, err := NewSnapshotter(db, querycache.New(nil, nil), bus.New(), nil).Hydrate()
	if err != nil || n != 0 {
		t.Errorf("Hydrate() = %d, %v", n, err)
	}
}
