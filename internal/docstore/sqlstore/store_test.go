package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
)

func testStore(t *testing.T) (*Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, b
}

func recvSnapshot[T any](t *testing.T, sub *docstore.Subscription[T]) docstore.Snapshot[T] {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	panic("unreachable")
}

func TestUpsertUserReplacesFields(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, docstore.User{UID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUser(ctx, docstore.User{UID: "u1", Email: "b@x.com", ImageURL: "http://img"}); err != nil {
		t.Fatal(err)
	}

	users, err := s.listUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("got %d users, want 1", len(users))
	}
	if users[0].Email != "b@x.com" || users[0].ImageURL != "http://img" {
		t.Errorf("user = %+v, want updated fields", users[0])
	}
}

func TestMergeConversationUpserts(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	c := docstore.Conversation{
		ChatID:      "u1_u2",
		Members:     []string{"u2", "u1"},
		LastMessage: "hi",
		Timestamp:   1000,
	}
	if err := s.MergeConversation(ctx, c); err != nil {
		t.Fatal(err)
	}

	c.LastMessage = "bye"
	c.Timestamp = 2000
	if err := s.MergeConversation(ctx, c); err != nil {
		t.Fatal(err)
	}

	convs, err := s.listConversations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1 (upsert)", len(convs))
	}
	if convs[0].LastMessage != "bye" || convs[0].Timestamp != 2000 {
		t.Errorf("conversation = %+v, want replaced summary", convs[0])
	}
	if len(convs[0].Members) != 2 {
		t.Errorf("members = %v, want 2 entries", convs[0].Members)
	}
}

func TestMergeConversationRejectsBadMembers(t *testing.T) {
	s, _ := testStore(t)
	err := s.MergeConversation(context.Background(), docstore.Conversation{ChatID: "x", Members: []string{"only"}})
	if err == nil {
		t.Error("expected error for single-member conversation")
	}
}

func TestListConversationsFiltersByMember(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	mustMerge := func(id string, members []string) {
		t.Helper()
		if err := s.MergeConversation(ctx, docstore.Conversation{ChatID: id, Members: members, Timestamp: 1}); err != nil {
			t.Fatal(err)
		}
	}
	mustMerge("u1_u2", []string{"u1", "u2"})
	mustMerge("u2_u3", []string{"u2", "u3"})
	mustMerge("u1_u3", []string{"u3", "u1"})

	convs, err := s.listConversations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations for u1, want 2", len(convs))
	}
	for _, c := range convs {
		if c.OtherMember("u1") == "" {
			t.Errorf("conversation %q does not contain u1: %v", c.ChatID, c.Members)
		}
	}
}

func TestMessagesOrderedAscending(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	for _, m := range []docstore.Message{
		{MsgID: "m2", Sender: "u1", Content: "second", Type: docstore.TypeText, Timestamp: 2000},
		{MsgID: "m1", Sender: "u2", Content: "first", Type: docstore.TypeText, Timestamp: 1000},
		{MsgID: "m3", Sender: "u1", Content: "third", Type: docstore.TypeText, Timestamp: 3000},
	} {
		if err := s.InsertMessage(ctx, "u1_u2", m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.listMessages(ctx, "u1_u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Errorf("messages not ascending at %d: %v", i, msgs)
		}
	}
	if msgs[0].Content != "first" {
		t.Errorf("first message = %q, want first", msgs[0].Content)
	}
}

func TestWatchDeliversInitialSnapshot(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, docstore.User{UID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}

	sub, err := s.WatchUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	snap := recvSnapshot(t, sub)
	if snap.Err != nil {
		t.Fatal(snap.Err)
	}
	if len(snap.Docs) != 1 || snap.Docs[0].UID != "u1" {
		t.Errorf("initial snapshot = %+v, want [u1]", snap.Docs)
	}
}

func TestWatchDeliversFullReplaceOnChange(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	sub, err := s.WatchUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	if snap := recvSnapshot(t, sub); len(snap.Docs) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", snap.Docs)
	}

	if err := s.UpsertUser(ctx, docstore.User{UID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if snap := recvSnapshot(t, sub); len(snap.Docs) != 1 {
		t.Fatalf("snapshot after first insert = %+v, want 1 doc", snap.Docs)
	}

	if err := s.UpsertUser(ctx, docstore.User{UID: "u2"}); err != nil {
		t.Fatal(err)
	}
	// Full replace: the second snapshot carries both users, not a diff.
	if snap := recvSnapshot(t, sub); len(snap.Docs) != 2 {
		t.Fatalf("snapshot after second insert = %+v, want 2 docs", snap.Docs)
	}
}

func TestWatchMessagesIgnoresOtherConversations(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	sub, err := s.WatchMessages(ctx, "u1_u2")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	if snap := recvSnapshot(t, sub); len(snap.Docs) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", snap.Docs)
	}

	if err := s.InsertMessage(ctx, "u3_u4", docstore.Message{MsgID: "m1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-sub.C:
		t.Errorf("unexpected snapshot for unrelated conversation: %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	if err := s.InsertMessage(ctx, "u1_u2", docstore.Message{MsgID: "m2", Content: "hi", Timestamp: 2}); err != nil {
		t.Fatal(err)
	}
	snap := recvSnapshot(t, sub)
	if len(snap.Docs) != 1 || snap.Docs[0].MsgID != "m2" {
		t.Errorf("snapshot = %+v, want [m2]", snap.Docs)
	}
}

func TestInsertMessagePublishesEvent(t *testing.T) {
	s, b := testStore(t)
	ch, unsub := b.Subscribe(bus.KindMessagesChanged, 10)
	defer unsub()

	msg := docstore.Message{MsgID: "m1", Sender: "u2", Content: "hello", Type: docstore.TypeText, Timestamp: 1}
	if err := s.InsertMessage(context.Background(), "u1_u2", msg); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		me, ok := evt.Payload.(docstore.MessageEvent)
		if !ok {
			t.Fatalf("payload = %T, want MessageEvent", evt.Payload)
		}
		if me.ChatID != "u1_u2" || me.Message.MsgID != "m1" {
			t.Errorf("event = %+v", me)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message event")
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	sub, err := s.WatchUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	recvSnapshot(t, sub)
	sub.Cancel()

	// Drain until close; no further snapshots should follow cancellation.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after cancel")
		}
	}
}
