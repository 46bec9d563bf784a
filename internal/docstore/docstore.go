// Package docstore defines the persistence port the chat core depends
// on: merge-style upserts by document id plus live watches that deliver
// the complete current collection contents on every change, never a
// diff. Adapters live in the sqlstore and mongostore subpackages.
package docstore

import "context"

// Snapshot is one full-replace delivery from a watch. Err is set
// instead of Docs when the subscription failed; a snapshot is never
// partial.
type Snapshot[T any] struct {
	Docs []T
	Err  error
}

// Subscription is a live watch on a collection.
type Subscription[T any] struct {
	// C delivers snapshots until the subscription is canceled or fails.
	C      <-chan Snapshot[T]
	cancel context.CancelFunc
}

// NewSubscription wraps a snapshot channel with its cancel function.
// Intended for store adapters.
func NewSubscription[T any](ch <-chan Snapshot[T], cancel context.CancelFunc) *Subscription[T] {
	return &Subscription[T]{C: ch, cancel: cancel}
}

// Cancel detaches the subscription. Events already buffered may still
// be delivered; consumers guard with their own generation tokens.
func (s *Subscription[T]) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Store is the persistence collaborator contract.
type Store interface {
	// UpsertUser writes the user document keyed by its uid.
	UpsertUser(ctx context.Context, u User) error

	// MergeConversation upserts the given summary fields into the
	// conversation document keyed by ChatID. Fields not carried by the
	// summary are left untouched.
	MergeConversation(ctx context.Context, c Conversation) error

	// InsertMessage writes a message document under the conversation's
	// feed, keyed by its MsgID.
	InsertMessage(ctx context.Context, conversationID string, m Message) error

	// WatchConversations watches all conversations that include member.
	WatchConversations(ctx context.Context, member string) (*Subscription[Conversation], error)

	// WatchUsers watches the full user directory.
	WatchUsers(ctx context.Context) (*Subscription[User], error)

	// WatchMessages watches one conversation's feed, ordered by
	// ascending timestamp.
	WatchMessages(ctx context.Context, conversationID string) (*Subscription[Message], error)

	Close() error
}
