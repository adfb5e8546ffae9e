package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/contestpipe/contestpipe/internal/logger"
)

type Subscriber struct {
	client *Client
	logger *logger.Logger
}

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// ExhaustedHandler is invoked once the transport's own retry budget for
// a message is spent. The message is terminated afterwards; the handler
// must not assume redelivery.
type ExhaustedHandler func(ctx context.Context, msg jetstream.Msg, err error)

// RetryAfterError asks the transport to redeliver the message after the
// given delay. It is how delayed control messages are parked without
// in-process waits.
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s", e.Delay)
}

func NewSubscriber(client *Client, logger *logger.Logger) *Subscriber {
	return &Subscriber{client: client, logger: logger}
}

func (s *Subscriber) Subscribe(ctx context.Context, cfg ConsumerConfig, handler MessageHandler, exhausted ExhaustedHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.Durable,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
	}

	switch cfg.AckPolicy {
	case "explicit":
		consumerConfig.AckPolicy = jetstream.AckExplicitPolicy
	case "none":
		consumerConfig.AckPolicy = jetstream.AckNonePolicy
	case "all":
		consumerConfig.AckPolicy = jetstream.AckAllPolicy
	default:
		consumerConfig.AckPolicy = jetstream.AckExplicitPolicy
	}

	consumer, err := s.client.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	_, err = consumer.Consume(func(msg jetstream.Msg) {
		s.dispatch(ctx, cfg, msg, handler, exhausted)
	})

	return err
}

func (s *Subscriber) dispatch(ctx context.Context, cfg ConsumerConfig, msg jetstream.Msg, handler MessageHandler, exhausted ExhaustedHandler) {
	err := handler(ctx, msg)
	if err == nil {
		msg.Ack()
		return
	}

	var retryAfter *RetryAfterError
	if errors.As(err, &retryAfter) {
		msg.NakWithDelay(retryAfter.Delay)
		return
	}

	s.logger.Error("Error handling message",
		"subject", msg.Subject(),
		"error", err,
	)

	if cfg.MaxDeliver > 0 && deliveryCount(msg) >= uint64(cfg.MaxDeliver) {
		if exhausted != nil {
			exhausted(ctx, msg, err)
		}
		msg.Term()
		return
	}

	msg.Nak()
}

func deliveryCount(msg jetstream.Msg) uint64 {
	md, err := msg.Metadata()
	if err != nil {
		return 0
	}
	return md.NumDelivered
}
