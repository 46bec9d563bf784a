package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/identity"
)

const notificationTitle = "New Message"

// Dispatcher watches message writes on the bus and pushes a
// notification for every message the viewer did not send themselves.
type Dispatcher struct {
	bus    *bus.Bus
	sink   Sink
	ids    identity.Provider
	logger *zap.Logger

	unsub func()
	done  chan struct{}
}

// NewDispatcher creates a stopped dispatcher.
func NewDispatcher(b *bus.Bus, sink Sink, ids identity.Provider, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{bus: b, sink: sink, ids: ids, logger: logger}
}

// Start subscribes to message events and dispatches until Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	ch, unsub := d.bus.Subscribe(bus.KindMessagesChanged, 64)
	d.unsub = unsub
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				d.handle(ctx, evt)
			}
		}
	}()
}

// Stop detaches from the bus and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
	if d.done != nil {
		<-d.done
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt bus.Event) {
	me, ok := evt.Payload.(docstore.MessageEvent)
	if !ok {
		return
	}
	// Own messages never notify.
	if uid, ok := d.ids.CurrentUID(); ok && me.Message.Sender == uid {
		return
	}

	n := Notification{
		Title: notificationTitle,
		Body:  body(me.Message),
		Data: map[string]string{
			"chatId":   me.ChatID,
			"senderId": me.Message.Sender,
		},
	}
	if err := d.sink.Push(ctx, n); err != nil {
		d.logger.Error("notification push failed",
			zap.String("chat_id", me.ChatID),
			zap.Error(err))
	}
}

func body(m docstore.Message) string {
	if m.Type == docstore.TypeImage {
		return "Sent you an image"
	}
	return m.Content
}
