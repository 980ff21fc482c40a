package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/pages"
)

var testKey = Key{PhoneNumberID: "PN1", Participant: "+15550001"}

func collectionOf(ids ...string) *Collection {
	items := make([]openphone.Message, 0, len(ids))
	for _, id := range ids {
		items = append(items, openphone.Message{ID: id})
	}
	return pages.New(pages.Page[openphone.Message]{Items: items, TotalItems: len(items)})
}

func expectEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		if evt.Kind != kind {
			t.Fatalf("event kind = %s, want %s", evt.Kind, kind)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", kind)
	}
	return bus.Event{}
}

func TestKeyString(t *testing.T) {
	if got := testKey.String(); got != "messages/PN1/+15550001" {
		t.Errorf("String() = %q", got)
	}
}

func TestSetGet(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("query.", 4)
	defer unsub()

	s := New(b, nil)
	if s.Get(testKey) != nil {
		t.Fatal("empty store should return nil")
	}
	c := collectionOf("m1")
	s.Set(testKey, c)
	if s.Get(testKey) != c {
		t.Error("Get() did not return the stored collection")
	}
	evt := expectEvent(t, ch, bus.QueryUpdated)
	if evt.Key != testKey.String() {
		t.Errorf("event key = %q", evt.Key)
	}
}

func TestSetNilClearsData(t *testing.T) {
	s := New(nil, nil)
	s.Set(testKey, collectionOf("m1"))
	s.Set(testKey, nil)
	if s.Get(testKey) != nil {
		t.Error("data should be absent after Set(nil)")
	}
}

func TestUpdateUnchangedDoesNotPublish(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("query.", 4)
	defer unsub()

	s := New(b, nil)
	s.Update(testKey, func(c *Collection) *Collection { return c })
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %s", evt.Kind)
	default:
	}
}

func TestCancelDiscardsLateCommit(t *testing.T) {
	s := New(nil, nil)
	before := collectionOf("m1")
	s.Set(testKey, before)

	f := s.BeginFetch(context.Background(), testKey)
	s.Cancel(testKey)

	if f.Context().Err() == nil {
		t.Error("fetch context should be cancelled")
	}
	err := s.Commit(f, func(*Collection) *Collection { return collectionOf("stale") })
	if !errors.Is(err, ErrFetchCancelled) {
		t.Fatalf("Commit() error = %v, want ErrFetchCancelled", err)
	}
	if s.Get(testKey) != before {
		t.Error("cancelled fetch overwrote the cache")
	}
	if s.State(testKey).IsFetching {
		t.Error("no fetch should be in flight after Cancel")
	}
}

func TestFetchAfterCancelCommits(t *testing.T) {
	s := New(nil, nil)
	s.Set(testKey, collectionOf("m1"))
	s.Cancel(testKey)

	f := s.BeginFetch(context.Background(), testKey)
	if err := s.Commit(f, func(*Collection) *Collection { return collectionOf("m2") }); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := s.Get(testKey).Pages[0].Items[0].ID; got != "m2" {
		t.Errorf("head = %s, want m2", got)
	}
}

func TestCommitAppliesToCurrentValue(t *testing.T) {
	s := New(nil, nil)
	f := s.BeginFetch(context.Background(), testKey)
	s.Set(testKey, collectionOf("written-meanwhile"))

	var seen *Collection
	_ = s.Commit(f, func(c *Collection) *Collection {
		seen = c
		return c
	})
	if seen == nil || seen.Pages[0].Items[0].ID != "written-meanwhile" {
		t.Errorf("Commit passed %+v, want the current collection", seen)
	}
}

func TestFailKeepsData(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.QueryFetchFailed, 1)
	defer unsub()

	s := New(b, nil)
	c := collectionOf("m1")
	s.Set(testKey, c)

	boom := errors.New("boom")
	f := s.BeginFetch(context.Background(), testKey)
	if err := s.Fail(f, boom); !errors.Is(err, boom) {
		t.Fatalf("Fail() = %v", err)
	}
	st := s.State(testKey)
	if !st.IsError || !errors.Is(st.Err, boom) || st.Data != c {
		t.Errorf("state = %+v", st)
	}
	expectEvent(t, ch, bus.QueryFetchFailed)
}

func TestFailAfterCancelIsIgnored(t *testing.T) {
	s := New(nil, nil)
	f := s.BeginFetch(context.Background(), testKey)
	s.Cancel(testKey)
	if err := s.Fail(f, context.Canceled); !errors.Is(err, ErrFetchCancelled) {
		t.Errorf("Fail() = %v, want ErrFetchCancelled", err)
	}
	if s.State(testKey).IsError {
		t.Error("cancelled fetch should not record an error")
	}
}

func TestStateLoading(t *testing.T) {
	s := New(nil, nil)
	f := s.BeginFetch(context.Background(), testKey)
	st := s.State(testKey)
	if !st.IsLoading || !st.IsFetching {
		t.Errorf("state = %+v, want loading", st)
	}
	_ = s.Commit(f, func(*Collection) *Collection { return collectionOf("m1") })
	st = s.State(testKey)
	if st.IsLoading || st.IsFetching || st.Stale {
		t.Errorf("state after commit = %+v", st)
	}
}

func TestInvalidate(t *testing.T) {
	b := bus.New()
	ch, unsub := b.SubscribeKey(bus.QueryInvalidated, testKey.String(), 1)
	defer unsub()

	s := New(b, nil)
	s.Invalidate(testKey)
	expectEvent(t, ch, bus.QueryInvalidated)
	if !s.State(testKey).Stale {
		t.Error("entry should be stale")
	}
}

func TestOnInvalidateSeesEveryKey(t *testing.T) {
	s := New(nil, nil)
	var got []Key
	s.OnInvalidate(func(k Key) {
		if !s.State(k).Stale {
			t.Errorf("%s not stale when hook ran", k)
		}
		got = append(got, k)
	})

	other := Key{PhoneNumberID: "PN1", Participant: "+15550002"}
	s.Invalidate(testKey)
	s.Invalidate(other)
	s.Invalidate(testKey)
	if len(got) != 3 || got[0] != testKey || got[1] != other || got[2] != testKey {
		t.Errorf("hook keys = %v", got)
	}
}

func TestSeedIsStaleAndSilent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("query.", 1)
	defer unsub()

	s := New(b, nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Seed(testKey, collectionOf("m1"), at)

	st := s.State(testKey)
	if !st.Stale || !st.UpdatedAt.Equal(at) || st.Data == nil {
		t.Errorf("state = %+v", st)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %s", evt.Kind)
	default:
	}
}

func TestKeysSorted(t *testing.T) {
	s := New(nil, nil)
	s.Set(Key{PhoneNumberID: "PN2", Participant: "a"}, nil)
	s.Set(Key{PhoneNumberID: "PN1", Participant: "b"}, nil)
	keys := s.Keys()
	if len(keys) != 2 || keys[0].PhoneNumberID != "PN1" {
		t.Errorf("Keys() = %v", keys)
	}
}
