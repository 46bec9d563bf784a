package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NATSSink publishes notifications as JSON onto a NATS subject, where
// an external delivery worker picks them up.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the broker at url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("chatitd"))
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats")
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Push(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		return errors.Wrapf(err, "publish to %q", s.subject)
	}
	return nil
}

// Close flushes pending publishes and drops the connection.
func (s *NATSSink) Close() error {
	if err := s.conn.Flush(); err != nil {
		s.conn.Close()
		return err
	}
	s.conn.Close()
	return nil
}
