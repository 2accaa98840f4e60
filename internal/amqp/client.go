// Package amqp fans change notifications out to every running gastos process
// so each can invalidate its cache after another one writes.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
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
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Handler processes a change published by another process.
type Handler func(ctx context.Context, msg *ChangeMessage) error

type Client struct {
	url          string
	exchangeName string
	origin       string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient connects to the broker and declares the fanout exchange.
func NewClient(url, exchangeName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		origin:       uuid.NewString(),
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// Origin identifies this process in published messages.
func (c *Client) Origin() string { return c.origin }

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	c.conn, c.channel = conn, channel
	return nil
}

// ensureChannel reconnects when the broker dropped the connection.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

// PublishChange implements services.ChangePublisher.
func (c *Client) PublishChange(ctx context.Context, ev core.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish change: %w", ErrCircuitOpen)
	}

	body, err := NewChangeMessage(ev, c.origin).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	channel, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			AppId:       c.origin,
			Body:        body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published change",
		log.FieldTable, ev.Table,
		log.FieldOperation, ev.Op,
		"exchange", c.exchangeName)
	return nil
}

// ConsumeChanges delivers changes published by other processes to handler
// until ctx is cancelled. Each call binds its own exclusive queue, so every
// process sees every change. Lost connections are re-established with
// exponential backoff.
func (c *Client) ConsumeChanges(ctx context.Context, handler Handler) error {
	for attempt := 0; ; {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Stopping change consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if err == nil {
			attempt = 0
			continue
		}
		if !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "Change consumer disconnected, retrying",
			log.FieldError, err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler Handler) error {
	channel, err := c.ensureChannel()
	if err != nil {
		return err
	}
	q, err := channel.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := channel.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming changes", "queue", q.Name, "exchange", c.exchangeName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}
			c.handle(ctx, delivery.Body, delivery, handler)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) handle(ctx context.Context, body []byte, ack acknowledger, handler Handler) {
	msg, err := ChangeMessageFromJSON(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		ack.Nack(false, false)
		return
	}
	if msg.Origin == c.origin {
		ack.Ack(false)
		return
	}
	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle change",
			log.FieldError, err,
			log.FieldTable, msg.Table,
			log.FieldOrigin, msg.Origin)
		ack.Nack(false, false)
		return
	}
	ack.Ack(false)
	c.logger.DebugContext(ctx, "Processed change",
		log.FieldTable, msg.Table,
		log.FieldOperation, msg.Op,
		log.FieldOrigin, msg.Origin)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		c.mu.Lock()
		c.lastFailure = time.Now()
		c.mu.Unlock()
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff doubles from one second, capped at maxBackoff.
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
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
