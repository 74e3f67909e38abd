package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName   = queuePrefix + ".dlx"
	connectionName    = "federation-engine"
	heartbeatInterval = 10 * time.Second
	dialTimeout       = 15 * time.Second
	reconnectBackoff  = time.Second
	maxBackoff        = 30 * time.Second
)

// queueSpec is one durable queue of the notification topology.
type queueSpec struct {
	name       string
	routingKey string
	exchange   string
	args       amqp.Table
}

// topology lists the dead-letter queues before the work queues that point at
// them.
func topology() []queueSpec {
	specs := make([]queueSpec, 0, 2*len(supportedChannels))
	for _, channel := range supportedChannels {
		specs = append(specs, queueSpec{
			name:       DLQName(channel),
			routingKey: channelRoutingKey(channel),
			exchange:   dlxExchangeName,
		})
	}
	for _, channel := range supportedChannels {
		specs = append(specs, queueSpec{
			name: QueueName(channel),
			args: amqp.Table{
				"x-dead-letter-exchange":    dlxExchangeName,
				"x-dead-letter-routing-key": channelRoutingKey(channel),
				"x-max-priority":            queueMaxPriority,
			},
		})
	}
	return specs
}

// RabbitMQ owns one AMQP connection, redials it when it drops and declares
// the notification topology once per connection.
type RabbitMQ struct {
	url string

	mu       sync.RWMutex
	conn     *amqp.Connection
	declared bool

	dialMu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Ping opens and closes a channel, redialing first if needed.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	ch, err := r.channel(ctx)
	if err != nil {
		return err
	}
	return ch.Close()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection died between the check and the call.
		r.drop(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := r.declareOnce(conn, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	return r.conn
}

// connection returns a live connection, dialing with exponential backoff
// until ctx is done.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	if conn := r.current(); conn != nil {
		return conn, nil
	}

	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	if conn := r.current(); conn != nil {
		return conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.DialConfig(r.url, amqp.Config{
			Heartbeat: heartbeatInterval,
			Locale:    "en_US",
			Properties: amqp.Table{
				"connection_name": connectionName,
			},
		})
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.declared = false
			r.mu.Unlock()
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connect canceled: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)
	}
}

func (r *RabbitMQ) drop(conn *amqp.Connection) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		r.declared = false
	}
	r.mu.Unlock()

	if !conn.IsClosed() {
		_ = conn.Close()
	}
}

func (r *RabbitMQ) declareOnce(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.RLock()
	done := r.declared && r.conn == conn
	r.mu.RUnlock()
	if done {
		return nil
	}

	if err := declareTopology(ch); err != nil {
		return err
	}

	r.mu.Lock()
	if r.conn == conn {
		r.declared = true
	}
	r.mu.Unlock()
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, spec := range topology() {
		if _, err := ch.QueueDeclare(spec.name, true, false, false, false, spec.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", spec.name, err)
		}
		if spec.exchange == "" {
			continue
		}
		if err := ch.QueueBind(spec.name, spec.routingKey, spec.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", spec.name, err)
		}
	}
	return nil
}
