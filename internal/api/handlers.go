// Package api exposes the daemon's local HTTP and WebSocket surface.
// It is a thin adapter: request decoding, error mapping, and stream
// plumbing over the chat core.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/chatid"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/identity"
	"github.com/chatit/chatit/internal/reconcile"
	"github.com/chatit/chatit/internal/register"
	"github.com/chatit/chatit/internal/send"
)

// Handlers wires the HTTP routes to the core services.
type Handlers struct {
	registrar *register.Registrar
	pipeline  *send.Pipeline
	engine    *reconcile.Engine
	store     docstore.Store
	ids       identity.Provider
	bus       *bus.Bus
	logger    *zap.Logger
}

// New creates the handler set.
func New(
	registrar *register.Registrar,
	pipeline *send.Pipeline,
	engine *reconcile.Engine,
	store docstore.Store,
	ids identity.Provider,
	b *bus.Bus,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registrar: registrar,
		pipeline:  pipeline,
		engine:    engine,
		store:     store,
		ids:       ids,
		bus:       b,
		logger:    logger,
	}
}

// Routes registers all endpoints on r.
func (h *Handlers) Routes(r gin.IRouter) {
	r.GET("/v1/healthz", h.health)
	r.POST("/v1/register", h.register)
	r.GET("/v1/view", h.view)
	r.POST("/v1/messages", h.sendMessage)
	r.GET("/v1/ws/view", h.watchView)
	r.GET("/v1/ws/messages", h.watchMessages)
}

func (h *Handlers) health(c *gin.Context) {
	status := gin.H{"status": "ok", "send": h.pipeline.Status()}
	if uid, ok := h.ids.CurrentUID(); ok {
		status["uid"] = uid
	}
	c.JSON(http.StatusOK, status)
}

type registerRequest struct {
	Email     string `json:"email"`
	ImagePath string `json:"image_path"`
}

func (h *Handlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	image, size, err := openOptionalFile(req.ImagePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if image != nil {
		defer func() { _ = image.Close() }()
	}

	var rd io.Reader
	if image != nil {
		rd = image
	}
	user, err := h.registrar.Register(c.Request.Context(), req.Email, rd, size)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// The view follows the registered identity. The engine outlives the
	// request, so it does not run under the request context.
	if err := h.engine.Subscribe(context.Background(), user.UID); err != nil {
		h.logger.Error("view subscribe failed", zap.String("uid", user.UID), zap.Error(err))
	}

	c.JSON(http.StatusOK, user)
}

type sendRequest struct {
	ChatID     string `json:"chat_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	MediaPath  string `json:"media_path"`
}

func (h *Handlers) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReceiverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver_id is required"})
		return
	}
	if req.Type == "" {
		req.Type = docstore.TypeText
	}

	if req.ChatID == "" {
		uid, ok := h.ids.CurrentUID()
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": send.ErrUnauthenticated.Error()})
			return
		}
		req.ChatID = chatid.For(uid, req.ReceiverID)
	}

	var media io.Reader
	var size int64
	if req.Type == docstore.TypeImage {
		f, n, err := openOptionalFile(req.MediaPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if f == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "media_path is required for image messages"})
			return
		}
		defer func() { _ = f.Close() }()
		media, size = f, n
	}

	res, err := h.pipeline.Send(c.Request.Context(), send.Request{
		ConversationID: req.ChatID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           req.Type,
		Media:          media,
		MediaSize:      size,
	})
	if err != nil {
		h.writeSendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": req.ChatID, "message": res.Message})
}

func (h *Handlers) writeSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, send.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, send.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var serr *send.StageError
		if errors.As(err, &serr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": serr.Reason(), "detail": serr.Err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) view(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Current())
}

// openOptionalFile opens path if non-empty, returning the file and its
// size.
func openOptionalFile(path string) (*os.File, int64, error) {
	if path == "" {
		return nil, 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}
