package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatit/chatit/internal/docstore"
)

const disconnectTimeout = 5 * time.Second

// WatchUsers watches the full user directory.
func (s *Store) WatchUsers(ctx context.Context) (*docstore.Subscription[docstore.User], error) {
	return watch(ctx, s.users, mongo.Pipeline{}, func(ctx context.Context) ([]docstore.User, error) {
		return all[docstore.User](ctx, s.users, bson.M{}, nil)
	})
}

// WatchConversations watches conversations containing member.
func (s *Store) WatchConversations(ctx context.Context, member string) (*docstore.Subscription[docstore.Conversation], error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "fullDocument.members", Value: member}}}},
	}
	return watch(ctx, s.chats, pipeline, func(ctx context.Context) ([]docstore.Conversation, error) {
		return all[docstore.Conversation](ctx, s.chats, bson.M{"members": member}, nil)
	})
}

// WatchMessages watches one conversation's feed, ascending by timestamp.
func (s *Store) WatchMessages(ctx context.Context, conversationID string) (*docstore.Subscription[docstore.Message], error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "fullDocument.chatId", Value: conversationID}}}},
	}
	sort := bson.D{{Key: "timestamp", Value: 1}}
	return watch(ctx, s.messages, pipeline, func(ctx context.Context) ([]docstore.Message, error) {
		return all[docstore.Message](ctx, s.messages, bson.M{"chatId": conversationID}, sort)
	})
}

func all[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D) ([]T, error) {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find")
	}
	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return docs, nil
}

// watch delivers the initial snapshot, then re-queries the full result
// on every change stream event. Stream errors are delivered as an error
// snapshot and end the subscription.
func watch[T any](
	parent context.Context,
	coll *mongo.Collection,
	pipeline mongo.Pipeline,
	query func(context.Context) ([]T, error),
) (*docstore.Subscription[T], error) {
	ctx, cancel := context.WithCancel(parent)

	cs, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "open change stream")
	}

	out := make(chan docstore.Snapshot[T], 8)
	go func() {
		defer close(out)
		defer func() { _ = cs.Close(context.Background()) }()

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
		for cs.Next(ctx) {
			if !deliver() {
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- docstore.Snapshot[T]{Err: errors.Wrap(err, "change stream")}:
			case <-ctx.Done():
			}
		}
	}()

	return docstore.NewSubscription(out, cancel), nil
}
