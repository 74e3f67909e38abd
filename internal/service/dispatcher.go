package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/queue"
)

// Dispatcher hands a stored PENDING notification over for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification domain.Notification) error
}

// Deliverer performs one delivery attempt for a stored notification.
type Deliverer interface {
	Deliver(ctx context.Context, notificationID string) error
}

// QueueDispatcher publishes to the channel work queue.
type QueueDispatcher struct {
	publisher queue.Publisher
}

func NewQueueDispatcher(publisher queue.Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, notification domain.Notification) error {
	if !notification.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, notification.Channel)
	}
	return d.publisher.Publish(ctx, queue.QueueName(notification.Channel), queue.MessageFor(notification))
}

// InlineDispatcher delivers in the caller's goroutine.
type InlineDispatcher struct {
	deliverer Deliverer
}

func NewInlineDispatcher(deliverer Deliverer) *InlineDispatcher {
	return &InlineDispatcher{deliverer: deliverer}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, notification domain.Notification) error {
	return d.deliverer.Deliver(ctx, notification.ID)
}
