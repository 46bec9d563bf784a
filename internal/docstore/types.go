package docstore

// Message content types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// User is a profile document from the global directory.
type User struct {
	UID      string `bson:"uid" json:"uid"`
	Email    string `bson:"email" json:"email"`
	ImageURL string `bson:"imageUrl" json:"imageUrl"`
}

// Conversation is a 1:1 thread summary. Members always holds exactly
// two identities; their order carries no meaning.
type Conversation struct {
	ChatID      string   `bson:"chatId" json:"chatId"`
	Members     []string `bson:"members" json:"members"`
	LastMessage string   `bson:"lastMessage" json:"lastMessage"`
	Timestamp   int64    `bson:"timestamp" json:"timestamp"`
}

// OtherMember returns the member that is not the viewer, or "" when the
// viewer is not part of the conversation.
func (c Conversation) OtherMember(viewer string) string {
	for _, m := range c.Members {
		if m != viewer {
			return m
		}
	}
	return ""
}

// Message is one entry in a conversation's append-only feed.
type Message struct {
	MsgID     string `bson:"msgId" json:"msgId"`
	Sender    string `bson:"sender" json:"sender"`
	Content   string `bson:"content" json:"content"`
	Type      string `bson:"type" json:"type"`
	MediaURL  string `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
}

// MessageEvent is the bus payload published by store adapters when a
// message document is written.
type MessageEvent struct {
	ChatID  string
	Message Message
}
