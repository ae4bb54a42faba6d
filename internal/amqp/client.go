package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"findash/internal/core"
	"findash/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	publishRetries = 3
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// AlertHandler processes one consumed alert. A returned error requeues the
// message once.
type AlertHandler func(ctx context.Context, a core.Alert) error

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state       atomic.Int32
	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanoseconds

	now     func() time.Time
	backoff func(attempt int) time.Duration
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       log.New(log.Config{Component: log.ComponentAMQP}),
		now:          time.Now,
		backoff:      exponentialBackoff,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, channel
	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishAlert publishes a triggered alert as a persistent JSON message.
// Connection failures are retried with backoff and counted by the circuit
// breaker.
func (c *Client) PublishAlert(ctx context.Context, a core.Alert) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish alert %s: %w", a.ID, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewAlertMessage(a).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
			if err := c.connect(); err != nil {
				lastErr = err
				c.recordFailure()
				continue
			}
		}
		lastErr = c.publish(ctx, a, body)
		if lastErr == nil {
			c.recordSuccess()
			c.logger.InfoContext(ctx, "Published alert",
				log.FieldEventID, a.ID,
				log.FieldStockCode, a.Code,
				"exchange", c.exchangeName,
				"queue", c.queueName)
			return nil
		}
		if !isConnectionError(lastErr) {
			return lastErr
		}
		c.recordFailure()
	}
	return fmt.Errorf("publish alert %s after %d attempts: %w", a.ID, publishRetries, lastErr)
}

func (c *Client) publish(ctx context.Context, a core.Alert, body []byte) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return errors.New("connection closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    a.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Notify lets the client stand in for a chat notifier in the alert monitor.
func (c *Client) Notify(ctx context.Context, a core.Alert) error {
	return c.PublishAlert(ctx, a)
}

// ConsumeAlerts delivers queued alerts to handler until ctx is cancelled.
// A lost connection is re-established with backoff.
func (c *Client) ConsumeAlerts(ctx context.Context, handler AlertHandler) error {
	for attempt := 0; ; {
		msgs, err := c.consume()
		if err == nil {
			attempt = 0
			c.logger.InfoContext(ctx, "Started consuming alerts", "queue", c.queueName)
			err = c.drain(ctx, msgs, handler)
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		c.logger.LogError(ctx, "Alert consumption interrupted", err, log.OpNotify, log.LogFields{"attempt": attempt})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
		attempt++
		if err := c.connect(); err != nil {
			c.logger.LogError(ctx, "Reconnect failed", err, log.OpNotify, nil)
		}
	}
}

func (c *Client) consume() (<-chan amqp091.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return nil, errors.New("connection closed")
	}
	if err := c.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

// Acknowledger is the part of a delivery the handler loop settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler AlertHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handle(ctx, d.Body, d.Redelivered, delivery{d}, handler)
		}
	}
}

type delivery struct{ d amqp091.Delivery }

func (d delivery) Ack(multiple bool) error           { return d.d.Ack(multiple) }
func (d delivery) Nack(multiple, requeue bool) error { return d.d.Nack(multiple, requeue) }

// handle decodes one message, runs handler and settles it. Malformed messages
// are dropped; handler failures are requeued unless already redelivered.
func (c *Client) handle(ctx context.Context, body []byte, redelivered bool, ack Acknowledger, handler AlertHandler) {
	msg, err := AlertMessageFromJSON(body)
	if err != nil {
		c.logger.LogError(ctx, "Failed to unmarshal message", err, log.OpNotify, nil)
		_ = ack.Nack(false, false)
		return
	}
	if err := handler(ctx, msg.Alert); err != nil {
		c.logger.LogError(ctx, "Failed to handle alert", err, log.OpNotify,
			log.LogFields{log.FieldEventID: msg.Alert.ID, "redelivered": redelivered})
		_ = ack.Nack(false, !redelivered)
		return
	}
	_ = ack.Ack(false)
	c.logger.InfoContext(ctx, "Alert delivered", log.FieldEventID, msg.Alert.ID)
}

// isCircuitOpen reports whether publishing is blocked. An open circuit lets
// one publish through as half-open once openTimeout has passed.
func (c *Client) isCircuitOpen() bool {
	if c.state.Load() != StateOpen {
		return false
	}
	last := time.Unix(0, c.lastFailure.Load())
	if c.now().Sub(last) > openTimeout {
		c.state.CompareAndSwap(StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	c.failures.Store(0)
	c.state.Store(StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure.Store(c.now().UnixNano())
	if c.failures.Add(1) >= maxFailures || c.state.Load() == StateHalfOpen {
		c.state.Store(StateOpen)
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
