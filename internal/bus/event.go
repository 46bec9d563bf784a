package bus

import "time"

// Event kinds published by the core. Subscribers filter by namespace
// prefix, e.g. "store." receives every store change event.
const (
	KindUsersChanged         = "store.users.changed"
	KindConversationsChanged = "store.conversations.changed"
	KindMessagesChanged      = "store.messages.changed"
	KindViewUpdated          = "view.updated"
	KindSendStatusChanged    = "send.status_changed"
)

// Event is a domain event carried on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
