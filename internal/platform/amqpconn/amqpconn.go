// Package amqpconn keeps a RabbitMQ connection and channel alive and
// publishes to a durable topic exchange.
package amqpconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("amqp: not connected")

// errClosed is returned by connect when Close won the race with a reconnect.
var errClosed = errors.New("amqp: client closed")

// session is one live connection plus its channel.
type session interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	notifyClose() <-chan *amqp.Error
	close() error
}

type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (s amqpSession) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	return s.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (s amqpSession) notifyClose() <-chan *amqp.Error {
	return s.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (s amqpSession) close() error {
	return errors.Join(s.ch.Close(), s.conn.Close())
}

// Client owns one connection and one channel. Publish is safe for concurrent
// use; a broken connection is re-dialled in the background with capped
// exponential backoff.
type Client struct {
	url      string
	exchange string
	log      *zap.Logger

	mu     sync.RWMutex
	sess   session
	closed bool

	open func() (session, error)
}

// Dial connects and declares exchange as a durable topic exchange.
func Dial(url, exchange string, log *zap.Logger) (*Client, error) {
	if url == "" {
		return nil, errors.New("AMQP_URL is required")
	}
	if exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{url: url, exchange: exchange, log: log}
	c.open = c.dial
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() (session, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", c.exchange, err)
	}
	return amqpSession{conn: conn, ch: ch}, nil
}

func (c *Client) connect() error {
	sess, err := c.open()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.close()
		return errClosed
	}
	c.sess = sess
	c.mu.Unlock()

	go c.watch(sess.notifyClose())
	return nil
}

func (c *Client) watch(closeCh <-chan *amqp.Error) {
	err, ok := <-closeCh
	c.mu.Lock()
	c.sess = nil
	closed := c.closed
	c.mu.Unlock()
	if closed || !ok {
		return
	}
	c.log.Warn("amqp connection lost, reconnecting", zap.Error(err))

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		time.Sleep(backoff)
		c.mu.RLock()
		stop := c.closed
		c.mu.RUnlock()
		if stop {
			return
		}
		err := c.connect()
		if err == nil {
			c.log.Info("amqp reconnected")
			return
		}
		if errors.Is(err, errClosed) {
			return
		}
		c.log.Warn("amqp reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))
		backoff = min(backoff*2, maxBackoff)
	}
}

// Publish sends a persistent JSON message with the given routing key.
func (c *Client) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := sess.publish(ctx, c.exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", routingKey, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.close()
}
