package messaging

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/contestpipe/contestpipe/internal/apperrors"
)

type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) *apperrors.AppError {
	_, err := p.client.js.Publish(ctx, subject, data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeEventPublishError, "failed to publish message")
	}
	return nil
}

// PublishMsg publishes a fully-formed message, preserving headers such
// as the kind and priority attributes.
func (p *Publisher) PublishMsg(ctx context.Context, msg *nats.Msg) *apperrors.AppError {
	_, err := p.client.js.PublishMsg(ctx, msg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeEventPublishError, "failed to publish message")
	}
	return nil
}
