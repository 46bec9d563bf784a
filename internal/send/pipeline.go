// Package send runs the three-stage message delivery pipeline: media
// upload, message write, conversation summary merge. Stages run
// strictly in that order and a stage failure aborts the remainder with
// no retries and no rollback of earlier stages.
package send

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/blob"
	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/identity"
)

const (
	// imagePlaceholder replaces the content of image messages so list
	// previews never render raw media URLs.
	imagePlaceholder = "[Image]"

	// previewMaxLen bounds the conversation summary's last-message text.
	previewMaxLen = 50
)

var (
	// ErrUnauthenticated is returned when no identity has been
	// provisioned yet. Register first.
	ErrUnauthenticated = errors.New("no identity provisioned")

	// ErrBusy is returned when a send is already in flight on this
	// pipeline.
	ErrBusy = errors.New("another send is in progress")
)

// Stage identifies which pipeline stage failed.
type Stage string

const (
	StageUpload  Stage = "media-upload"
	StageWrite   Stage = "message-write"
	StageSummary Stage = "conversation-update"
)

// StageError wraps a stage failure with its position in the pipeline,
// so callers can tell a fully-failed send (nothing persisted) from one
// that wrote the message but left the summary stale.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Reason() + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Reason returns the stable failure category for the stage.
func (e *StageError) Reason() string {
	switch e.Stage {
	case StageUpload:
		return "media-upload-failed"
	case StageWrite:
		return "message-write-failed"
	case StageSummary:
		return "conversation-update-failed"
	default:
		return "send-failed"
	}
}

// Request describes one message to deliver. Media is read only when
// Type is image; it may be nil for text.
type Request struct {
	ConversationID string
	ReceiverID     string
	Content        string
	Type           string
	Media          io.Reader
	MediaSize      int64
}

// Result carries the persisted message.
type Result struct {
	Message docstore.Message `json:"message"`
}

// Pipeline executes sends one at a time. There is no ordering guarantee
// across Send calls beyond the fail-fast overlap rejection; a second
// send started while one is in flight gets ErrBusy rather than being
// queued.
type Pipeline struct {
	store    docstore.Store
	uploader blob.Uploader
	ids      identity.Provider
	tracker  *Tracker
	logger   *zap.Logger
	now      func() int64
}

// New creates a pipeline with a fresh status tracker.
func New(store docstore.Store, uploader blob.Uploader, ids identity.Provider, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		uploader: uploader,
		ids:      ids,
		tracker:  NewTracker(b),
		logger:   logger,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Status reports the pipeline's current send status.
func (p *Pipeline) Status() Status {
	return p.tracker.Current()
}

// Send runs the pipeline for req. Image sends upload media first and
// persist the placeholder as content; the real URL travels in the
// message's mediaUrl field. A summary-stage failure leaves the written
// message in place.
func (p *Pipeline) Send(ctx context.Context, req Request) (*Result, error) {
	sender, ok := p.ids.CurrentUID()
	if !ok {
		return nil, ErrUnauthenticated
	}
	if err := p.tracker.Transition(StatusInProgress); err != nil {
		return nil, ErrBusy
	}

	now := p.now()
	msgID := uuid.NewString()
	content := req.Content
	kind := req.Type
	if kind == "" {
		kind = docstore.TypeText
	}

	// No media source means no upload stage: the content ships verbatim.
	var mediaURL string
	if kind == docstore.TypeImage && req.Media != nil {
		url, err := p.uploader.Upload(ctx, "chatImages/"+msgID+".jpg", req.Media, req.MediaSize, "image/jpeg")
		if err != nil {
			return nil, p.fail(StageUpload, msgID, err)
		}
		mediaURL = url
		content = imagePlaceholder
	}

	msg := docstore.Message{
		MsgID:     msgID,
		Sender:    sender,
		Content:   content,
		Type:      kind,
		MediaURL:  mediaURL,
		Timestamp: now,
	}
	if err := p.store.InsertMessage(ctx, req.ConversationID, msg); err != nil {
		return nil, p.fail(StageWrite, msgID, err)
	}

	summary := docstore.Conversation{
		ChatID:      req.ConversationID,
		Members:     []string{req.ReceiverID, sender},
		LastMessage: truncate(content, previewMaxLen),
		Timestamp:   now,
	}
	if err := p.store.MergeConversation(ctx, summary); err != nil {
		return nil, p.fail(StageSummary, msgID, err)
	}

	_ = p.tracker.Transition(StatusSucceeded)
	p.logger.Info("message sent",
		zap.String("msg_id", msgID),
		zap.String("chat_id", req.ConversationID),
		zap.String("type", kind))
	return &Result{Message: msg}, nil
}

func (p *Pipeline) fail(stage Stage, msgID string, err error) error {
	_ = p.tracker.Transition(StatusFailed)
	serr := &StageError{Stage: stage, Err: err}
	p.logger.Error("send failed",
		zap.String("msg_id", msgID),
		zap.String("reason", serr.Reason()),
		zap.Error(err))
	return serr
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
