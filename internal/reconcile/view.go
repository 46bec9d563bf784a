package reconcile

import (
	"sort"

	"github.com/chatit/chatit/internal/docstore"
)

// Phase describes the lifecycle of the derived view.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// View is the derived chat-list state: conversations ordered by most
// recent activity plus the directory users the viewer could still start
// a conversation with. It is a pure function of the two latest raw
// snapshots and the viewer id, published atomically and never mutated
// after publication.
type View struct {
	Phase            Phase                    `json:"phase"`
	Chats            []docstore.Conversation  `json:"chats,omitempty"`
	EligibleContacts map[string]docstore.User `json:"eligibleContacts,omitempty"`
	Err              string                   `json:"error,omitempty"`
}

// combine recomputes the derived view from the latest conversation and
// directory snapshots. Eligible contacts exclude the viewer and every
// identity already paired with them in some conversation.
func combine(viewer string, convs []docstore.Conversation, users []docstore.User) View {
	paired := make(map[string]bool, len(convs))
	for _, c := range convs {
		for _, m := range c.Members {
			if m != viewer {
				paired[m] = true
			}
		}
	}

	eligible := make(map[string]docstore.User)
	for _, u := range users {
		if u.UID == viewer || paired[u.UID] {
			continue
		}
		eligible[u.UID] = u
	}

	chats := make([]docstore.Conversation, len(convs))
	copy(chats, convs)
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].Timestamp > chats[j].Timestamp
	})

	return View{Phase: PhaseLoaded, Chats: chats, EligibleContacts: eligible}
}
