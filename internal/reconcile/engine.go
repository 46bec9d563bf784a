// Package reconcile keeps the derived chat-list view consistent under
// two independently-pushed streams: the viewer's conversations and the
// global user directory.
package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
)

// Engine owns the two latest-value snapshot caches and recomputes the
// derived view whenever either stream delivers. Updates from the two
// streams may arrive in any order; each one triggers a full recompute
// over the latest values of both.
type Engine struct {
	store  docstore.Store
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	view   View
}

// New creates an engine in the loading phase.
func New(store docstore.Store, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		bus:    b,
		logger: logger,
		view:   View{Phase: PhaseLoading},
	}
}

// Subscribe opens both watches for viewerID and starts recomputing.
// Any previous subscription is detached first; late deliveries from it
// are discarded by generation token. Caches start empty on every call.
func (e *Engine) Subscribe(ctx context.Context, viewerID string) error {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.view = View{Phase: PhaseLoading}
	e.mu.Unlock()

	convSub, err := e.store.WatchConversations(ctx, viewerID)
	if err != nil {
		cancel()
		return err
	}
	userSub, err := e.store.WatchUsers(ctx)
	if err != nil {
		convSub.Cancel()
		cancel()
		return err
	}

	e.logger.Info("chat view subscribed", zap.String("viewer", viewerID))
	go e.run(ctx, gen, viewerID, convSub, userSub)
	return nil
}

// Unsubscribe detaches both watches. No further view is published until
// the next Subscribe.
func (e *Engine) Unsubscribe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Current returns the last published view.
func (e *Engine) Current() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// run is the single consumer of both streams: the snapshot caches are
// locals here, so nothing else can observe them mid-update.
func (e *Engine) run(
	ctx context.Context,
	gen int,
	viewerID string,
	convSub *docstore.Subscription[docstore.Conversation],
	userSub *docstore.Subscription[docstore.User],
) {
	defer convSub.Cancel()
	defer userSub.Cancel()

	var convs []docstore.Conversation
	var users []docstore.User
	convC, userC := convSub.C, userSub.C

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-convC:
			if !ok {
				// Errored stream stays down; the other may still deliver.
				convC = nil
				if userC == nil {
					return
				}
				continue
			}
			if snap.Err != nil {
				e.logger.Error("conversation stream failed", zap.Error(snap.Err))
				e.publish(gen, View{Phase: PhaseError, Err: snap.Err.Error()})
				continue
			}
			convs = snap.Docs
			e.publish(gen, combine(viewerID, convs, users))
		case snap, ok := <-userC:
			if !ok {
				userC = nil
				if convC == nil {
					return
				}
				continue
			}
			if snap.Err != nil {
				e.logger.Error("directory stream failed", zap.Error(snap.Err))
				e.publish(gen, View{Phase: PhaseError, Err: snap.Err.Error()})
				continue
			}
			users = snap.Docs
			e.publish(gen, combine(viewerID, convs, users))
		}
	}
}

func (e *Engine) publish(gen int, v View) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.view = v
	e.mu.Unlock()
	e.bus.Publish(bus.KindViewUpdated, v)
}
