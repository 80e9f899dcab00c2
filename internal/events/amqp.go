package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerUnavailable is returned while a reconnect is in flight or backing off.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

const (
	defaultDialTimeout = 2 * time.Second
	minRetryBackoff    = time.Second
	maxRetryBackoff    = 30 * time.Second
)

// AMQPPublisher publishes events as persistent JSON messages to a durable queue
// on the default exchange. A dropped connection is redialled by the next publish;
// failed redials back off, and publishes during a redial or backoff fail fast.
type AMQPPublisher struct {
	url         string
	queue       string
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
	backoff time.Duration
	retryAt time.Time
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = "auth.events"
	}
	p := &AMQPPublisher{url: url, queue: queue, dialTimeout: defaultDialTimeout}
	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()
	if _, err := p.channel(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// dial opens a connection whose TCP connect and handshake respect both ctx and dialTimeout.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			deadline := time.Now().Add(p.dialTimeout)
			if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
				deadline = d
			}
			d := net.Dialer{Deadline: deadline}
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// the client clears this once the handshake completes
			if err := c.SetDeadline(deadline); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable so events survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return conn, ch, nil
}

// channel returns the open channel, redialling outside the lock when needed.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.conn != nil && !p.conn.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || time.Now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		switch {
		case p.backoff == 0:
			p.backoff = minRetryBackoff
		case p.backoff < maxRetryBackoff:
			p.backoff *= 2
		}
		p.retryAt = time.Now().Add(p.backoff)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.backoff, p.retryAt = 0, time.Time{}
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	p.conn, p.ch = nil, nil
	return errors.Join(errs...)
}
