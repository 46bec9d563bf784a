// Package mongostore is the remote docstore adapter backed by MongoDB.
// Watches ride change streams (replica set required) and re-query the
// full result per event, so consumers always see complete snapshots.
package mongostore

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

// Config holds the MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store implements docstore.Store on MongoDB collections
// users, chats, and messages.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	chats    *mongo.Collection
	messages *mongo.Collection
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// messageDoc wraps a message with its conversation key for storage in
// the flat messages collection.
type messageDoc struct {
	ChatID           string `bson:"chatId"`
	docstore.Message `bson:",inline"`
}

// Open connects to MongoDB and verifies the connection. When b is
// non-nil a background change stream publishes message events on it
// for the notification dispatcher.
func Open(ctx context.Context, cfg Config, b *bus.Bus, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
		bus:      b,
		logger:   logger,
	}

	if b != nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.notifyLoop(loopCtx)
	}
	return s, nil
}

// UpsertUser replaces the user document keyed by uid.
func (s *Store) UpsertUser(ctx context.Context, u docstore.User) error {
	_, err := s.users.ReplaceOne(ctx, bson.M{"uid": u.UID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "upsert user")
	}
	if s.bus != nil {
		s.bus.Publish(bus.KindUsersChanged, nil)
	}
	return nil
}

// MergeConversation $set-merges the summary fields into the chat
// document, leaving unrelated fields untouched.
func (s *Store) MergeConversation(ctx context.Context, c docstore.Conversation) error {
	if len(c.Members) != 2 {
		return errors.Errorf("merge conversation %q: want 2 members, got %d", c.ChatID, len(c.Members))
	}
	update := bson.M{"$set": bson.M{
		"chatId":      c.ChatID,
		"members":     c.Members,
		"lastMessage": c.LastMessage,
		"timestamp":   c.Timestamp,
	}}
	_, err := s.chats.UpdateOne(ctx, bson.M{"chatId": c.ChatID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "merge conversation")
	}
	if s.bus != nil {
		s.bus.Publish(bus.KindConversationsChanged, nil)
	}
	return nil
}

// InsertMessage writes a message document keyed by (chatId, msgId).
func (s *Store) InsertMessage(ctx context.Context, conversationID string, m docstore.Message) error {
	doc := messageDoc{ChatID: conversationID, Message: m}
	filter := bson.M{"chatId": conversationID, "msgId": m.MsgID}
	_, err := s.messages.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "insert message")
	}
	return nil
}

// Close stops the notify loop and disconnects.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// notifyLoop publishes a bus event for every message written to the
// collection, from any writer, so the dispatcher sees remote sends too.
func (s *Store) notifyLoop(ctx context.Context) {
	cs, err := s.messages.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		s.logger.Error("message notify stream failed to attach, push notifications disabled", zap.Error(err))
		return
	}
	defer func() { _ = cs.Close(ctx) }()

	for cs.Next(ctx) {
		var evt struct {
			FullDocument messageDoc `bson:"fullDocument"`
		}
		if err := cs.Decode(&evt); err != nil || evt.FullDocument.MsgID == "" {
			continue
		}
		s.bus.Publish(bus.KindMessagesChanged, docstore.MessageEvent{
			ChatID:  evt.FullDocument.ChatID,
			Message: evt.FullDocument.Message,
		})
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		s.logger.Error("message notify stream ended, push notifications disabled", zap.Error(err))
	}
}
