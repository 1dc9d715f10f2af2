package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"k8s.io/klog/v2"
)

// Exchange is the single topic exchange the coordinator publishes control
// messages on and the dispatcher's queue is bound to.
const Exchange = "beetle.configuration"

// AMQPBus is a single-connection AMQP publisher and consumer. It does not
// reconnect or retry on its own: a publish failure is surfaced to the
// caller as an error (spec.md §7 BusPublishFailure) and logged, and "the
// next round will retry the publish implicitly" rather than this package
// retrying internally — broker failover and redundant publishing belong to
// the peripheral publisher, explicitly out of scope (spec.md §1).
type AMQPBus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to url and declares the configuration exchange.
func Dial(url string) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial %s: %w", url, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: declare exchange %s: %w", Exchange, err)
	}

	klog.InfoS("Connected to message bus", "exchange", Exchange)
	return &AMQPBus{conn: conn, channel: ch}, nil
}

// Close releases the channel and connection.
func (b *AMQPBus) Close() error {
	if err := b.channel.Close(); err != nil {
		klog.ErrorS(err, "Failed to close bus channel")
	}
	return b.conn.Close()
}

func (b *AMQPBus) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal %s payload: %w", routingKey, err)
	}

	err = b.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("bus: publish %s: %w", routingKey, err)
	}
	return nil
}

// PublishInvalidate implements Publisher.
func (b *AMQPBus) PublishInvalidate(ctx context.Context, token int64) error {
	return b.publish(ctx, RoutingKeyInvalidate, InvalidatePayload{Token: token})
}

// PublishReconfigure implements Publisher.
func (b *AMQPBus) PublishReconfigure(ctx context.Context, server string, token int64) error {
	return b.publish(ctx, RoutingKeyReconfigure, ReconfigurePayload{Server: server, Token: token})
}

// PublishSystemNotification implements Publisher.
func (b *AMQPBus) PublishSystemNotification(ctx context.Context, message string) error {
	return b.publish(ctx, RoutingKeySystemNotification, SystemNotificationPayload{Message: message})
}

// Consumer is the Message Dispatcher (spec.md §4.6): it subscribes to the
// four inbound control routing keys and invokes the matching coordinator
// entry point for each delivery. Its shape — a routing-key switch calling
// into a handler interface — follows timjp87-minority's
// internal/controller/nsq/router.go, the one pack repo whose architecture
// actually matches a message-bus dispatcher (see DESIGN.md).
type Consumer struct {
	channel *amqp.Channel
	queue   string
	target  Dispatchable
}

// NewConsumer declares an exclusive queue bound to the four control routing
// keys and returns a Consumer ready to Run.
func NewConsumer(b *AMQPBus, target Dispatchable) (*Consumer, error) {
	q, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: declare consumer queue: %w", err)
	}

	keys := []string{
		RoutingKeyPong,
		RoutingKeyClientInvalidated,
		RoutingKeyClientStarted,
		RoutingKeyHeartbeat,
	}
	for _, key := range keys {
		if err := b.channel.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bus: bind queue to %s: %w", key, err)
		}
	}

	return &Consumer{channel: b.channel, queue: q.Name, target: target}, nil
}

// Run consumes deliveries until ctx is cancelled. Malformed payloads are
// logged and dropped (spec.md §4.6), never fatal to the consumer loop.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("bus: consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.dispatch(d.RoutingKey, d.Body)
		}
	}
}

func (c *Consumer) dispatch(routingKey string, body []byte) {
	switch routingKey {
	case RoutingKeyPong:
		var p PongPayload
		if err := json.Unmarshal(body, &p); err != nil {
			klog.InfoS("Dropping malformed pong payload", "err", err)
			return
		}
		c.target.Pong(p.ID, p.Token)
	case RoutingKeyClientInvalidated:
		var p ClientInvalidatedPayload
		if err := json.Unmarshal(body, &p); err != nil {
			klog.InfoS("Dropping malformed client_invalidated payload", "err", err)
			return
		}
		c.target.ClientInvalidated(p.ID, p.Token)
	case RoutingKeyClientStarted:
		var p ClientStartedPayload
		if err := json.Unmarshal(body, &p); err != nil {
			klog.InfoS("Dropping malformed client_started payload", "err", err)
			return
		}
		c.target.ClientStarted(p.ID)
	case RoutingKeyHeartbeat:
		var p HeartbeatPayload
		if err := json.Unmarshal(body, &p); err != nil {
			klog.InfoS("Dropping malformed heartbeat payload", "err", err)
			return
		}
		c.target.Heartbeat(p.ID)
	default:
		klog.V(2).InfoS("Dropping message on unrecognized routing key", "routingKey", routingKey)
	}
}
