package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	wakePrefetch    = 10
	resubscribeWait = time.Second
)

// RabbitMQConsumer subscribes to the due queue with auto-ack. A hint that is
// lost, malformed or fails its handler costs nothing but one poll interval.
type RabbitMQConsumer struct {
	client *RabbitMQ
	logger *zap.Logger
}

var _ Consumer = (*RabbitMQConsumer)(nil)

func NewRabbitMQConsumer(client *RabbitMQ, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQConsumer{client: client, logger: logger}
}

// Consume delivers hints to handler until ctx is cancelled, resubscribing when
// the channel drops. Reconnect backoff lives in RabbitMQ.channel.
func (c *RabbitMQConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	for {
		err := c.subscribe(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("due queue subscription lost, resubscribing", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeWait):
		}
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(wakePrefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	deliveries, err := ch.Consume(DueQueueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", DueQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d.Body, handler)
		}
	}
}

// handle reports whether handler accepted the message.
func (c *RabbitMQConsumer) handle(ctx context.Context, body []byte, handler MessageHandler) bool {
	var msg DueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn("dropping due message: invalid JSON", zap.Error(err))
		return false
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("dropping due message: validation failed", zap.Error(err))
		return false
	}
	if err := handler(ctx, msg); err != nil {
		c.logger.Warn("dropping due message: handler failed",
			zap.String("noteId", msg.NoteID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
