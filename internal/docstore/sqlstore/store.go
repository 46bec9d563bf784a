package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
)

// UpsertUser inserts or replaces a user document.
func (s *Store) UpsertUser(ctx context.Context, u docstore.User) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, image_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at`,
		u.UID, u.Email, u.ImageURL, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	s.bus.Publish(bus.KindUsersChanged, nil)
	return nil
}

// MergeConversation upserts the summary fields of a conversation.
func (s *Store) MergeConversation(ctx context.Context, c docstore.Conversation) error {
	if len(c.Members) != 2 {
		return fmt.Errorf("merge conversation %q: want 2 members, got %d", c.ChatID, len(c.Members))
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (chat_id, member_a, member_b, last_message, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			member_a = excluded.member_a,
			member_b = excluded.member_b,
			last_message = excluded.last_message,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at`,
		c.ChatID, c.Members[0], c.Members[1], c.LastMessage, c.Timestamp, now)
	if err != nil {
		return fmt.Errorf("merge conversation: %w", err)
	}
	s.bus.Publish(bus.KindConversationsChanged, nil)
	return nil
}

// InsertMessage writes a message document keyed by (chat_id, msg_id).
func (s *Store) InsertMessage(ctx context.Context, conversationID string, m docstore.Message) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, msg_id, sender, content, type, media_url, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			sender = excluded.sender,
			content = excluded.content,
			type = excluded.type,
			media_url = excluded.media_url,
			timestamp = excluded.timestamp`,
		conversationID, m.MsgID, m.Sender, m.Content, m.Type, m.MediaURL, m.Timestamp, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	s.bus.Publish(bus.KindMessagesChanged, docstore.MessageEvent{ChatID: conversationID, Message: m})
	return nil
}

func (s *Store) listUsers(ctx context.Context) ([]docstore.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, email, image_url FROM users ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []docstore.User
	for rows.Next() {
		var u docstore.User
		if err := rows.Scan(&u.UID, &u.Email, &u.ImageURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) listConversations(ctx context.Context, member string) ([]docstore.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, member_a, member_b, last_message, timestamp
		FROM conversations
		WHERE member_a = ? OR member_b = ?
		ORDER BY rowid ASC`, member, member)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []docstore.Conversation
	for rows.Next() {
		var c docstore.Conversation
		var a, b string
		if err := rows.Scan(&c.ChatID, &a, &b, &c.LastMessage, &c.Timestamp); err != nil {
			return nil, err
		}
		c.Members = []string{a, b}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Store) listMessages(ctx context.Context, conversationID string) ([]docstore.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT msg_id, sender, content, type, media_url, timestamp
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []docstore.Message
	for rows.Next() {
		var m docstore.Message
		if err := rows.Scan(&m.MsgID, &m.Sender, &m.Content, &m.Type, &m.MediaURL, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
