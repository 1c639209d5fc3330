package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	ExchangeName = "notifications"
	ExchangeKind = "topic"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpConnector opens a fresh connection and a channel with the exchange declared.
type amqpConnector func() (io.Closer, amqpChannel, error)

// AMQPPublisher publishes notification events to a topic exchange so other
// services (email, push) can consume them. A closed channel or connection is
// dropped and re-opened on the next publish attempt.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     io.Closer
	channel  amqpChannel
	connect  amqpConnector
	attempts uint
	delay    time.Duration
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	connect := func() (io.Closer, amqpChannel, error) {
		return openChannel(url)
	}

	var conn io.Closer
	var ch amqpChannel
	err := retry.Do(func() error {
		var err error
		conn, ch, err = connect()
		return err
	},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("rabbitmq dial failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	return newAMQPPublisher(conn, ch, connect), nil
}

func openChannel(url string) (io.Closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, ExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	return conn, ch, nil
}

func newAMQPPublisher(conn io.Closer, ch amqpChannel, connect amqpConnector) *AMQPPublisher {
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		connect:  connect,
		attempts: 3,
		delay:    200 * time.Millisecond,
	}
}

func (p *AMQPPublisher) Name() string {
	return "amqp"
}

// RoutingKey is notification.<type> in lower case, e.g. notification.booking_approved.
func RoutingKey(event Event) string {
	return "notification." + strings.ToLower(event.Notification.Type)
}

func (p *AMQPPublisher) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := RoutingKey(event)

	err = retry.Do(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.channel == nil {
			if err := p.reconnect(); err != nil {
				return err
			}
		}
		err := p.channel.PublishWithContext(ctx, ExchangeName, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Notification.CreatedAt,
			Body:         body,
		})
		if errors.Is(err, amqp.ErrClosed) {
			log.Warn().Err(err).Msg("rabbitmq channel closed, reconnecting")
			p.discard()
		}
		return err
	},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	log.Debug().Str("exchange", ExchangeName).Str("routing_key", key).Int64("user_id", event.UserID).
		Msg("notification published")
	return nil
}

// reconnect must be called with mu held.
func (p *AMQPPublisher) reconnect() error {
	if p.connect == nil {
		return amqp.ErrClosed
	}
	conn, ch, err := p.connect()
	if err != nil {
		return err
	}
	p.conn = conn
	p.channel = ch
	log.Info().Str("exchange", ExchangeName).Msg("rabbitmq channel re-opened")
	return nil
}

// discard must be called with mu held.
func (p *AMQPPublisher) discard() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discard()
}
