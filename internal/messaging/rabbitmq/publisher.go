package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	EventsExchange           = "storefront.events"
	OrderPlacedRoutingKey    = "order.placed.v1"
	OrderPlacedDLQRoutingKey = "order.placed.dlq.v1"

	defaultPublishTimeout = 3 * time.Second
)

// Channel — подмножество *amqp.Channel, которое использует Publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует outbox-сообщения в topic exchange с фиксированным routing key.
type Publisher struct {
	ch         Channel
	routingKey string
	timeout    time.Duration
	now        func() time.Time
	logger     *log.Entry
}

// Option настраивает Publisher.
type Option func(*Publisher)

// WithPublishTimeout ограничивает ожидание одной публикации.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(p *Publisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// DeclareExchange объявляет durable topic exchange витрины.
func DeclareExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}
	return nil
}

// NewPublisher создаёт publisher поверх открытого канала.
// Exchange должен быть объявлен заранее (см. DeclareExchange).
func NewPublisher(ch Channel, routingKey string, options ...Option) (*Publisher, error) {
	if ch == nil {
		return nil, errors.New("rabbitmq channel is required")
	}
	if routingKey == "" {
		routingKey = OrderPlacedRoutingKey
	}

	p := &Publisher{
		ch:         ch,
		routingKey: routingKey,
		timeout:    defaultPublishTimeout,
		now:        time.Now,
		logger:     log.WithField("component", "rabbitmq-publisher"),
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// RoutingKey возвращает routing key публикаций.
func (p *Publisher) RoutingKey() string { return p.routingKey }

type message struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func (p *Publisher) Publish(event domain.OutboxMessage) error {
	publishedAt := p.now().UTC()

	body, err := json.Marshal(message{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   publishedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal rabbitmq message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, EventsExchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.EventType,
		Timestamp:    publishedAt,
		Headers: amqp.Table{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		},
		Body: body,
	})
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"routing_key": p.routingKey,
			"outbox_id":   event.ID,
		}).Error("failed to publish message to rabbitmq")
		return fmt.Errorf("publish to %s/%s: %w", EventsExchange, p.routingKey, err)
	}

	p.logger.WithFields(log.Fields{
		"routing_key": p.routingKey,
		"outbox_id":   event.ID,
	}).Debug("message published to rabbitmq")
	return nil
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
