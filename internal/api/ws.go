package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/feed"
	"github.com/chatit/chatit/internal/reconcile"
)

// The daemon only listens on loopback, so cross-origin upgrades from
// local tooling are fine.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// watchView streams the derived chat view: the current value on
// connect, then every recomputation until the client hangs up.
func (h *Handlers) watchView(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(h.engine.Current()); err != nil {
		return
	}

	ch, unsub := h.bus.Subscribe(bus.KindViewUpdated, 64)
	defer unsub()

	closed := connClosed(conn)
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			v, ok := evt.Payload.(reconcile.View)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
}

// watchMessages streams one conversation's full history on every
// change. Each connection gets its own feed, so switching conversations
// is just reconnecting with a different chat_id.
func (h *Handlers) watchMessages(c *gin.Context) {
	chatID := c.Query("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	f := feed.New(h.store, h.logger)
	ch, err := f.Subscribe(ctx, chatID)
	if err != nil {
		h.logger.Error("feed subscribe failed", zap.String("chat_id", chatID), zap.Error(err))
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer f.Unsubscribe()

	closed := connClosed(conn)
	for {
		select {
		case <-closed:
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		}
	}
}

// connClosed drains client frames and reports when the peer goes away.
func connClosed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
