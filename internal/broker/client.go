// Package broker wraps a single lazily-dialed RabbitMQ connection per process.
// Publishes run in confirm mode so callers learn whether the broker accepted
// the message.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/shared/outbound"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrNacked = errors.New("broker: publish not acknowledged")

var dial = amqp.Dial

const (
	reconsumeDelay = time.Second

	// attemptsHeader counts failed handler runs. The broker's Redelivered flag
	// is also set after a consumer crash, so it cannot tell them apart.
	attemptsHeader = "x-attempts"
	maxAttempts    = 2
)

// Handler processes one delivery body. A nil error acks the delivery; an error
// retries it once and drops it on the second failure.
type Handler func(ctx context.Context, body []byte) error

type Client struct {
	url    string
	policy outbound.Policy
	logger logging.Logger

	// republish puts a failed delivery back on its queue with new headers.
	republish func(ctx context.Context, queue string, body []byte, headers amqp.Table) error

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url string, policy outbound.Policy, logger logging.Logger) *Client {
	c := &Client{url: url, policy: policy, logger: logger}
	c.republish = func(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
		return c.publish(ctx, "", queue, body, headers)
	}
	return c
}

func (c *Client) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("error establishing connection with rabbitmq: %w", err)
		}
		c.conn = conn
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("error opening channel for rabbitmq: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("error enabling publisher confirms: %w", err)
	}
	c.ch = ch
	return ch, nil
}

// DeclareQueue declares a durable queue on the default exchange.
func (c *Client) DeclareQueue(ctx context.Context, name string) error {
	return c.policy.Do(ctx, func(context.Context) error {
		ch, err := c.channel()
		if err != nil {
			return err
		}
		_, err = ch.QueueDeclare(name, true, false, false, false, nil)
		return err
	})
}

// BindFanout declares a durable fanout exchange and binds queue to it.
func (c *Client) BindFanout(ctx context.Context, exchange, queue string) error {
	return c.policy.Do(ctx, func(context.Context) error {
		ch, err := c.channel()
		if err != nil {
			return err
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return err
		}
		return ch.QueueBind(queue, "", exchange, false, nil)
	})
}

// DeclareFanout declares the exchange only; publishers do not own queues.
func (c *Client) DeclareFanout(ctx context.Context, exchange string) error {
	return c.policy.Do(ctx, func(context.Context) error {
		ch, err := c.channel()
		if err != nil {
			return err
		}
		return ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil)
	})
}

// Publish sends body and waits for the broker confirm.
func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte) error {
	return c.publish(ctx, exchange, key, body, nil)
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		ch, err := c.channel()
		if err != nil {
			return err
		}
		confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
			ContentType:  "text/plain",
			Headers:      headers,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err != nil {
			return err
		}
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return err
		}
		if !acked {
			return ErrNacked
		}
		return nil
	})
}

// Consume delivers messages from queue to handle until ctx is cancelled,
// re-opening the channel if the broker drops it.
func (c *Client) Consume(ctx context.Context, queue, consumer string, handle Handler) error {
	for {
		err := c.consumeOnce(ctx, queue, consumer, handle)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn(ctx, "consumer stopped, reconnecting", "queue", queue, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconsumeDelay):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue, consumer string, handle Handler) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, consumer, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for d := range deliveries {
		c.settle(ctx, queue, d, handle(ctx, d.Body))
	}
	return errors.New("delivery channel closed")
}

// settle acks or retries d after its handler returned herr. A retry is a
// republish carrying the attempt count followed by an ack of the original.
func (c *Client) settle(ctx context.Context, queue string, d amqp.Delivery, herr error) {
	if herr == nil {
		_ = d.Ack(false)
		return
	}

	attempts := deliveryAttempts(d.Headers) + 1
	if attempts >= maxAttempts {
		c.logger.Error(ctx, "message dropped", "queue", queue, "attempts", attempts, "error", herr)
		_ = d.Nack(false, false)
		return
	}

	c.logger.Warn(ctx, "message handling failed, retrying", "queue", queue, "attempts", attempts, "error", herr)
	if err := c.republish(ctx, queue, d.Body, amqp.Table{attemptsHeader: int32(attempts)}); err != nil {
		c.logger.Error(ctx, "message retry failed", "queue", queue, "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deliveryAttempts(headers amqp.Table) int {
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
		c.ch = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}
