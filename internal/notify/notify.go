// Package notify turns incoming message writes into push notifications
// for the receiving side.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notification is the payload handed to a sink.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Sink delivers notifications somewhere: a broker, a log, a desktop
// notifier.
type Sink interface {
	Push(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the daemon log. It is the default
// sink when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Push(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("chat_id", n.Data["chatId"]),
		zap.String("sender_id", n.Data["senderId"]))
	return nil
}
