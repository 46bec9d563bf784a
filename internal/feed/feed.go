// Package feed streams one conversation's message history as
// full-replace snapshots ordered by ascending timestamp.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/docstore"
)

// Phase describes the lifecycle of a feed stream.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// State is one delivery on a feed subscription. Messages always holds
// the complete history of the conversation, never a delta.
type State struct {
	Phase    Phase              `json:"phase"`
	ChatID   string             `json:"chatId"`
	Messages []docstore.Message `json:"messages,omitempty"`
	Err      string             `json:"error,omitempty"`
}

// Feed multiplexes at most one live message watch at a time. Switching
// conversations detaches the previous watch; deliveries still in flight
// from it are dropped by generation token, so a consumer never sees
// another conversation's history under the current chat id.
type Feed struct {
	store  docstore.Store
	logger *zap.Logger

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	state  State
}

// New creates an idle feed.
func New(store docstore.Store, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{store: store, logger: logger}
}

// Subscribe starts streaming chatID and returns the delivery channel.
// The channel closes when the watch ends or a newer Subscribe replaces
// this one. An error state is the final delivery of a failed stream.
func (f *Feed) Subscribe(ctx context.Context, chatID string) (<-chan State, error) {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.state = State{Phase: PhaseLoading, ChatID: chatID}
	f.mu.Unlock()

	sub, err := f.store.WatchMessages(ctx, chatID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan State, 8)
	f.logger.Info("feed subscribed", zap.String("chat_id", chatID))
	go f.run(ctx, gen, chatID, sub, out)
	return out, nil
}

// Unsubscribe detaches the current watch, if any.
func (f *Feed) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Current returns the last delivered state.
func (f *Feed) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) run(
	ctx context.Context,
	gen int,
	chatID string,
	sub *docstore.Subscription[docstore.Message],
	out chan<- State,
) {
	defer sub.Cancel()
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			st := State{Phase: PhaseLoaded, ChatID: chatID, Messages: snap.Docs}
			if snap.Err != nil {
				f.logger.Error("feed stream failed", zap.String("chat_id", chatID), zap.Error(snap.Err))
				st = State{Phase: PhaseError, ChatID: chatID, Err: snap.Err.Error()}
			}
			if !f.deliver(ctx, gen, st, out) {
				return
			}
		}
	}
}

// deliver forwards st unless this stream has been superseded.
func (f *Feed) deliver(ctx context.Context, gen int, st State, out chan<- State) bool {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return false
	}
	f.state = st
	f.mu.Unlock()

	select {
	case out <- st:
		return true
	case <-ctx.Done():
		return false
	}
}
