package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// amqpChannel is the part of *amqp.Channel the producer publishes through.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventProducer publishes JSON events to a durable topic exchange. It is safe
// for concurrent use; a failed channel is replaced once and shared.
type EventProducer struct {
	conn        *amqp.Connection
	openChannel func() (amqpChannel, error)
	exchange    string
	logger      *slog.Logger

	mu      sync.Mutex
	channel amqpChannel
}

// NoopPublisher is used when RabbitMQ is unavailable. It logs instead of publishing
// so the service can still start.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	if p.Logger != nil {
		p.Logger.InfoContext(ctx, "event not published, broker disabled", "routing_key", routingKey)
	}
	return nil
}

func (p *NoopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// MaskURL hides credentials in an AMQP URL for logging.
func MaskURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

// NewEventProducer connects to RabbitMQ and declares the exchange.
func NewEventProducer(amqpURL, exchange string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{
		conn: conn,
		openChannel: func() (amqpChannel, error) {
			fresh, err := conn.Channel()
			if err != nil {
				return nil, err
			}
			return fresh, nil
		},
		exchange: exchange,
		logger:   logger,
		channel:  ch,
	}, nil
}

// Publish sends a JSON message with the given routing key. On failure the
// channel is reopened once and the publish retried.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        jsonBody,
	}

	ch := p.currentChannel()
	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		p.logger.InfoContext(ctx, "event published", "exchange", p.exchange, "routing_key", routingKey)
		return nil
	}

	p.logger.WarnContext(ctx, "publish failed, reopening channel", "exchange", p.exchange, "error", err)
	ch, err = p.replaceChannel(ch)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *EventProducer) currentChannel() amqpChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

// replaceChannel swaps out stale for a new channel. If another publisher has
// already replaced it, the current channel is returned instead.
func (p *EventProducer) replaceChannel(stale amqpChannel) (amqpChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != stale {
		return p.channel, nil
	}

	fresh, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	if stale != nil {
		stale.Close()
	}
	p.channel = fresh
	return fresh, nil
}

// Close closes the RabbitMQ connection and channel.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
