package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

// Publisher publishes notification messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg NotificationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message. Returning an error wrapping
// ErrDeadLetter routes the message to the dead-letter queue; any other error
// requeues it.
type MessageHandler func(ctx context.Context, msg NotificationMessage) error

// Consumer consumes notification messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var ErrDeadLetter = errors.New("dead letter")

const queuePrefix = "federation.notifications"

var supportedChannels = []domain.Channel{
	domain.ChannelEmail,
	domain.ChannelWhatsApp,
	domain.ChannelWebhook,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// QueueName returns the channel work queue name, e.g.
// federation.notifications.email.
func QueueName(channel domain.Channel) string {
	return fmt.Sprintf("%s.%s", queuePrefix, channelRoutingKey(channel))
}

// DLQName returns the dead-letter queue of a channel, e.g.
// federation.notifications.email.dlq.
func DLQName(channel domain.Channel) string {
	return QueueName(channel) + ".dlq"
}

func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}

// ChannelForQueue maps a work or dead-letter queue name back to its channel.
func ChannelForQueue(name string) (domain.Channel, bool) {
	for _, channel := range supportedChannels {
		if name == QueueName(channel) || name == DLQName(channel) {
			return channel, true
		}
	}
	return "", false
}

func channelRoutingKey(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
