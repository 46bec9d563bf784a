package sqlstore

import (
	"context"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
)

// WatchUsers watches the full user directory.
func (s *Store) WatchUsers(ctx context.Context) (*docstore.Subscription[docstore.User], error) {
	return watch(ctx, s.bus, bus.KindUsersChanged, nil, s.listUsers), nil
}

// WatchConversations watches conversations containing member.
func (s *Store) WatchConversations(ctx context.Context, member string) (*docstore.Subscription[docstore.Conversation], error) {
	return watch(ctx, s.bus, bus.KindConversationsChanged, nil,
		func(ctx context.Context) ([]docstore.Conversation, error) {
			return s.listConversations(ctx, member)
		}), nil
}

// WatchMessages watches one conversation's feed, ascending by timestamp.
func (s *Store) WatchMessages(ctx context.Context, conversationID string) (*docstore.Subscription[docstore.Message], error) {
	match := func(evt bus.Event) bool {
		me, ok := evt.Payload.(docstore.MessageEvent)
		return ok && me.ChatID == conversationID
	}
	return watch(ctx, s.bus, bus.KindMessagesChanged, match,
		func(ctx context.Context) ([]docstore.Message, error) {
			return s.listMessages(ctx, conversationID)
		}), nil
}

// watch delivers the initial snapshot immediately, then re-queries on
// every matching change event. A query failure is delivered as an error
// snapshot and ends the subscription.
func watch[T any](
	parent context.Context,
	b *bus.Bus,
	kind string,
	match func(bus.Event) bool,
	query func(context.Context) ([]T, error),
) *docstore.Subscription[T] {
	ctx, cancel := context.WithCancel(parent)
	out := make(chan docstore.Snapshot[T], 8)
	events, unsub := b.Subscribe(kind, 32)

	go func() {
		defer close(out)
		defer unsub()

		deliver := func() bool {
			docs, err := query(ctx)
			if err != nil {
				select {
				case out <- docstore.Snapshot[T]{Err: err}:
				case <-ctx.Done():
				}
				return false
			}
			select {
			case out <- docstore.Snapshot[T]{Docs: docs}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				if match != nil && !match(evt) {
					continue
				}
				if !deliver() {
					return
				}
			}
		}
	}()

	return docstore.NewSubscription(out, cancel)
}
