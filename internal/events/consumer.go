// ABOUTME: Supervised AMQP consumer loop with poison/transient error split
// ABOUTME: JSONHandler converts decode failures into dropped poison messages

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoison indicates non-retriable bad content (e.g. JSON decode failure).
// Poison deliveries are acked and dropped rather than redelivered forever.
var ErrPoison = errors.New("poison message")

// ConsumerSpec defines a single consumer binding.
type ConsumerSpec struct {
	Queue      string
	BindingKey string // routing key pattern bound to the client's exchange
	Prefetch   int    // 0 => 1

	Consume func(ctx context.Context, d amqp.Delivery) error
}

// JSONHandler wraps a typed handler and turns JSON decode failure into ErrPoison.
func JSONHandler[T any](h func(context.Context, T) error) func(context.Context, amqp.Delivery) error {
	return func(ctx context.Context, d amqp.Delivery) error {
		var env Envelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			return ErrPoison
		}
		var v T
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return ErrPoison
		}
		return h(ctx, v)
	}
}

// reconnectBackoff is the base delay between reconnect attempts; it doubles
// up to reconnectBackoffCap.
const (
	reconnectBackoff    = time.Second
	reconnectBackoffCap = 30 * time.Second
)

// Run declares the consumer topology and processes deliveries until ctx is
// cancelled. Transient handler errors are nacked for redelivery; poison
// messages are acked and dropped. A lost connection is re-dialed with
// exponential backoff.
func (c *Client) Run(ctx context.Context, spec ConsumerSpec) error {
	for {
		err := c.consumeOnce(ctx, spec)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("consumer stopped, reconnecting", "queue", spec.Queue, "error", err)

		backoff := reconnectBackoff
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if rerr := c.redial(); rerr != nil {
				c.logger.Error("reconnect failed", "error", rerr, "retry_in", backoff)
				if backoff*2 < reconnectBackoffCap {
					backoff *= 2
				}
				continue
			}
			break
		}
	}
}

// consumeOnce runs one consume session on the current connection. Returns
// when the channel closes or ctx is cancelled.
func (c *Client) consumeOnce(ctx context.Context, spec ConsumerSpec) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	prefetch := spec.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}

	if _, err := ch.QueueDeclare(spec.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(spec.Queue, spec.BindingKey, c.config.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue: %w", err)
	}

	msgs, err := ch.Consume(spec.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consume: %w", err)
	}

	c.logger.Info("consumer started",
		"queue", spec.Queue,
		"binding_key", spec.BindingKey,
		"prefetch", prefetch,
	)

	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case amqpErr := <-closeCh:
			return fmt.Errorf("channel closed: %v", amqpErr)

		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			err := spec.Consume(ctx, d)
			switch {
			case errors.Is(err, ErrPoison):
				c.logger.Warn("dropping poison message",
					"queue", spec.Queue,
					"message_id", d.MessageId,
				)
				_ = d.Ack(false)

			case err != nil:
				c.logger.Error("handler failed, requeueing",
					"queue", spec.Queue,
					"message_id", d.MessageId,
					"error", err,
				)
				_ = d.Nack(false, true)

			default:
				_ = d.Ack(false)
			}
		}
	}
}

// redial replaces the connection and publisher channel after a broker loss.
func (c *Client) redial() error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}

	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declaring exchange: %w", err)
	}

	c.conn = conn
	c.pubCh = ch
	c.logger.Info("reconnected to amqp broker")
	return nil
}
