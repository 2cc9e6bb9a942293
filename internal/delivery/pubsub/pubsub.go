// Package pubsub publishes reports to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"
)

// publishFunc sends one message and waits for the server-assigned ID.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publish publishFunc
	title   string
	logger  *zap.Logger
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher, title string, logger *zap.Logger) (*Publisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is not configured")
	}
	return newWithFunc(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}, title, logger), nil
}

func newWithFunc(fn publishFunc, title string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{publish: fn, title: title, logger: logger}
}

// Deliver publishes the report body as the message data.
func (p *Publisher) Deliver(ctx context.Context, text string) error {
	msg := &pubsub.Message{
		Data: []byte(text),
		Attributes: map[string]string{
			"title":        p.title,
			"content_type": "text/markdown",
		},
	}
	id, err := p.publish(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	p.logger.Info("report published", zap.String("message_id", id))
	return nil
}
