package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// settlement is what happens to a delivery once it has been looked at.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDiscard
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "discard"
	}
}

// RabbitMQConsumer runs one AMQP consumer per queue and survives broker
// restarts by resubscribing with backoff.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQConsumer{
		client:   client,
		prefetch: max(prefetch, 1),
		logger:   logger,
	}
}

// Consume blocks until ctx is done. Subscription failures are logged and
// retried; they are never returned.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	switch {
	case c == nil || c.client == nil:
		return fmt.Errorf("consumer is not initialized")
	case queue == "":
		return fmt.Errorf("queue name is required")
	case handler == nil:
		return fmt.Errorf("message handler is required")
	}

	expected, _ := ChannelForQueue(queue)
	logger := c.logger.With(zap.String("queue", queue))
	wait := reconnectBackoff

	for ctx.Err() == nil {
		handled, err := c.subscribe(ctx, queue, expected, handler)
		if ctx.Err() != nil {
			break
		}
		if handled > 0 {
			wait = reconnectBackoff
		}
		logger.Warn("consumer subscription ended, resubscribing",
			zap.Error(err),
			zap.Int("handled", handled),
			zap.Duration("backoff", wait),
		)

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)
	}
	return nil
}

// subscribe consumes until the delivery stream closes or ctx is done and
// returns how many deliveries it settled.
func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, expected domain.Channel, handler MessageHandler) (int, error) {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return 0, err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return 0, fmt.Errorf("failed to set qos on %q: %w", queue, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, consumerTag(queue), false, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled, nil
		case d, ok := <-deliveries:
			if !ok {
				return handled, fmt.Errorf("delivery stream of %q closed", queue)
			}
			if err := c.handleDelivery(ctx, expected, d, handler); err != nil {
				return handled, err
			}
			handled++
		}
	}
}

// handleDelivery decodes, checks and hands one delivery to handler, then
// settles it. Only a failed settle is returned.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, expected domain.Channel, d amqp.Delivery, handler MessageHandler) error {
	outcome, msg, reason := c.evaluate(ctx, expected, d, handler)

	fields := []zap.Field{
		zap.String("messageId", d.MessageId),
		zap.String("notificationId", msg.NotificationID),
		zap.String("settlement", outcome.String()),
		zap.Bool("redelivered", d.Redelivered),
	}
	switch outcome {
	case settleDiscard:
		c.logger.Warn("discarding message", append(fields, zap.Error(reason))...)
	case settleRequeue:
		c.logger.Debug("requeueing message", append(fields, zap.Error(reason))...)
	}

	var err error
	switch outcome {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	default:
		// The queue's dead-letter exchange routes rejected messages to its DLQ.
		err = d.Reject(false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery %d: %w", outcome, d.DeliveryTag, err)
	}
	return nil
}

func (c *RabbitMQConsumer) evaluate(ctx context.Context, expected domain.Channel, d amqp.Delivery, handler MessageHandler) (settlement, NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return settleDiscard, msg, fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return settleDiscard, msg, err
	}
	if expected != "" && msg.Channel != expected {
		return settleDiscard, msg, fmt.Errorf("%s message consumed from the %s queue", msg.Channel, expected)
	}

	err := handler(ctx, msg)
	switch {
	case err == nil:
		return settleAck, msg, nil
	case errors.Is(err, ErrDeadLetter):
		return settleDiscard, msg, err
	default:
		return settleRequeue, msg, err
	}
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func consumerTag(queue string) string {
	return connectionName + "." + queue
}
