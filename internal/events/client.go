// ABOUTME: AMQP client for event publishing over a durable topic exchange
// ABOUTME: Dial with deadline, exchange declaration, persistent JSON publishing

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientConfig configures the AMQP connection and topology.
type ClientConfig struct {
	URL                string
	Exchange           string // topic exchange, declared durable
	Producer           string // stamped into Meta.Producer and AppId
	ConnTimeoutSeconds int    // 0 => 30
}

// Client wraps an AMQP connection with a single publisher channel. Publishing
// is serialized through a mutex; this engine's notification volume doesn't
// justify a channel pool.
type Client struct {
	conn   *amqp.Connection
	config ClientConfig
	logger *slog.Logger

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewClient connects to the broker and declares the topic exchange.
func NewClient(ctx context.Context, config ClientConfig, logger *slog.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("amqp URL is required")
	}
	if config.Exchange == "" {
		return nil, fmt.Errorf("amqp exchange is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	u, _ := url.Parse(config.URL)
	host := ""
	if u != nil {
		host = u.Host
	}
	logger.Info("connecting to amqp broker", "host", host)

	// The amqp library has no ctx-aware dial; enforce a time boundary.
	timeoutSec := config.ConnTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if time.Now().After(deadline) {
		return nil, fmt.Errorf("context deadline exceeded before connection attempt")
	}

	conn, err := amqp.DialConfig(config.URL, amqp.Config{
		Dial: amqp.DefaultDial(time.Until(deadline)),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	c := &Client{
		conn:   conn,
		config: config,
		logger: logger,
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}
	c.pubCh = ch

	logger.Info("amqp client ready", "exchange", config.Exchange)
	return c, nil
}

// PublishJSON publishes an Envelope as persistent JSON to the configured
// exchange under the given routing key.
func (c *Client) PublishJSON(ctx context.Context, routingKey string, env Envelope) error {
	if env.Meta.ID == "" {
		return fmt.Errorf("envelope.Meta.ID is required")
	}
	if env.Meta.CorrelationID == "" {
		env.Meta.CorrelationID = env.Meta.ID
	}
	if env.Meta.Time.IsZero() {
		env.Meta.Time = time.Now().UTC()
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	return c.pubCh.PublishWithContext(ctx, c.config.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         c.config.Producer,
	})
}

// Close closes the publisher channel and connection.
func (c *Client) Close() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pubCh != nil {
		_ = c.pubCh.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
