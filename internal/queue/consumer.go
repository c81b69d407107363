package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const consumerTag = "campaign-dispatch-worker"

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx is canceled, re-establishing the channel with
// exponential backoff whenever the broker connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for ctx.Err() == nil {
		err := c.consumeLoop(ctx, queue, handler)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("dispatch consumer disconnected, retrying",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil
}

func (c *RabbitMQConsumer) consumeLoop(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.dispatch(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) dispatch(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDispatchRequest(d.Body)
	if err != nil {
		c.logger.Warn("rejecting dispatch request",
			zap.Error(err),
			zap.String("messageId", d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid dispatch request: %w", rejectErr)
		}
		return nil
	}

	if err := handler(ctx, msg); err != nil {
		// A run-now request is a hint, not the source of truth: the periodic
		// sweep will pick the campaign up again, so a failed run goes to the
		// dead-letter queue instead of cycling through redelivery.
		c.logger.Error("dispatch run failed, dead-lettering request",
			zap.Error(err),
			zap.String("campaignId", msg.CampaignID),
			zap.Bool("redelivered", d.Redelivered),
		)
		if nackErr := d.Nack(false, false); nackErr != nil {
			return fmt.Errorf("failed to dead-letter dispatch request: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack dispatch request: %w", err)
	}

	return nil
}

func decodeDispatchRequest(body []byte) (DispatchRequest, error) {
	var msg DispatchRequest
	if err := json.Unmarshal(body, &msg); err != nil {
		return DispatchRequest{}, fmt.Errorf("invalid dispatch request payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return DispatchRequest{}, err
	}
	return msg, nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
