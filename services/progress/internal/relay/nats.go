package relay

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/example/lems/internal/platform/natsconn"
)

// Stream holds every progress.* subject.
const (
	StreamName    = "PROGRESS"
	StreamSubject = "progress.>"
)

// JetStream publishes asynchronously to a JetStream context, using the
// message id for server-side de-duplication.
type JetStream struct {
	js nats.JetStreamContext
}

// NewJetStream makes sure the PROGRESS stream exists and returns a publisher
// bound to it.
func NewJetStream(nc *nats.Conn) (*JetStream, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := natsconn.EnsureStream(js, StreamName, StreamSubject); err != nil {
		return nil, err
	}
	return &JetStream{js: js}, nil
}

func (p *JetStream) Publish(_ context.Context, subject, messageID string, body []byte) error {
	_, err := p.js.PublishAsync(subject, body, nats.MsgId(messageID))
	return err
}

// Context exposes the JetStream context for consumers sharing the stream.
func (p *JetStream) Context() nats.JetStreamContext {
	return p.js
}
