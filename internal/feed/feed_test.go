package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatit/chatit/internal/docstore"
)

type fakeStore struct {
	mu      sync.Mutex
	watches map[string]chan docstore.Snapshot[docstore.Message]
}

func newFakeStore() *fakeStore {
	return &fakeStore{watches: make(map[string]chan docstore.Snapshot[docstore.Message])}
}

func (f *fakeStore) UpsertUser(context.Context, docstore.User) error                { return nil }
func (f *fakeStore) MergeConversation(context.Context, docstore.Conversation) error { return nil }
func (f *fakeStore) InsertMessage(context.Context, string, docstore.Message) error  { return nil }
func (f *fakeStore) Close() error                                                   { return nil }

func (f *fakeStore) WatchConversations(context.Context, string) (*docstore.Subscription[docstore.Conversation], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) WatchUsers(context.Context) (*docstore.Subscription[docstore.User], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) WatchMessages(_ context.Context, chatID string) (*docstore.Subscription[docstore.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan docstore.Snapshot[docstore.Message], 8)
	f.watches[chatID] = ch
	return docstore.NewSubscription(ch, func() {}), nil
}

func (f *fakeStore) push(chatID string, snap docstore.Snapshot[docstore.Message]) {
	f.mu.Lock()
	ch := f.watches[chatID]
	f.mu.Unlock()
	ch <- snap
}

func recvState(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case st, ok := <-ch:
		if !ok {
			t.Fatal("feed channel closed unexpectedly")
		}
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a feed state")
	}
	return State{}
}

func TestSubscribeDeliversFullSnapshots(t *testing.T) {
	store := newFakeStore()
	f := New(store, nil)

	ch, err := f.Subscribe(context.Background(), "u1_u2")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	store.push("u1_u2", docstore.Snapshot[docstore.Message]{Docs: []docstore.Message{
		{MsgID: "m1", Sender: "u1", Content: "hi", Type: docstore.TypeText, Timestamp: 1},
	}})
	st := recvState(t, ch)
	if st.Phase != PhaseLoaded || len(st.Messages) != 1 {
		t.Fatalf("first state = %+v", st)
	}

	// The next delivery replaces, not appends.
	store.push("u1_u2", docstore.Snapshot[docstore.Message]{Docs: []docstore.Message{
		{MsgID: "m1", Sender: "u1", Content: "hi", Type: docstore.TypeText, Timestamp: 1},
		{MsgID: "m2", Sender: "u2", Content: "hey", Type: docstore.TypeText, Timestamp: 2},
	}})
	st = recvState(t, ch)
	if len(st.Messages) != 2 {
		t.Fatalf("second state has %d messages, want 2", len(st.Messages))
	}
	if st.Messages[0].MsgID != "m1" || st.Messages[1].MsgID != "m2" {
		t.Errorf("messages out of order: %+v", st.Messages)
	}

	if got := f.Current(); got.ChatID != "u1_u2" || len(got.Messages) != 2 {
		t.Errorf("Current() = %+v, want last delivered state", got)
	}
}

func TestSubscribeErrorStateIsFinal(t *testing.T) {
	store := newFakeStore()
	f := New(store, nil)

	ch, err := f.Subscribe(context.Background(), "u1_u2")
	if err != nil {
		t.Fatal(err)
	}

	store.push("u1_u2", docstore.Snapshot[docstore.Message]{Err: errors.New("listener detached")})
	st := recvState(t, ch)
	if st.Phase != PhaseError || st.Err == "" {
		t.Fatalf("state = %+v, want error phase with message", st)
	}
}

func TestResubscribeDropsStaleConversation(t *testing.T) {
	store := newFakeStore()
	f := New(store, nil)

	oldCh, err := f.Subscribe(context.Background(), "u1_u2")
	if err != nil {
		t.Fatal(err)
	}

	newCh, err := f.Subscribe(context.Background(), "u1_u3")
	if err != nil {
		t.Fatal(err)
	}

	// A late delivery from the replaced conversation must not surface on
	// either channel.
	store.push("u1_u2", docstore.Snapshot[docstore.Message]{Docs: []docstore.Message{
		{MsgID: "stale", Sender: "u2", Content: "old", Type: docstore.TypeText, Timestamp: 1},
	}})
	store.push("u1_u3", docstore.Snapshot[docstore.Message]{Docs: []docstore.Message{
		{MsgID: "m1", Sender: "u3", Content: "new", Type: docstore.TypeText, Timestamp: 2},
	}})

	st := recvState(t, newCh)
	if st.ChatID != "u1_u3" || len(st.Messages) != 1 || st.Messages[0].MsgID != "m1" {
		t.Fatalf("state = %+v, want only the live conversation's history", st)
	}

	select {
	case st, ok := <-oldCh:
		if ok {
			t.Fatalf("stale channel delivered %+v after resubscribe", st)
		}
	case <-time.After(time.Second):
		t.Fatal("stale channel was not closed")
	}

	if got := f.Current(); got.ChatID != "u1_u3" {
		t.Errorf("Current().ChatID = %q, want u1_u3", got.ChatID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	store := newFakeStore()
	f := New(store, nil)

	ch, err := f.Subscribe(context.Background(), "u1_u2")
	if err != nil {
		t.Fatal(err)
	}

	f.Unsubscribe()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel close, got a delivery")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after Unsubscribe")
	}
}
