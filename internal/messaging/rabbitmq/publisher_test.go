package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type published struct {
	exchange    string
	key         string
	msg         amqp.Publishing
	hasDeadline bool
}

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, _ amqp.Table) error {
	if c.declareErr != nil {
		return c.declareErr
	}
	if !durable || autoDelete || internal || noWait {
		return errors.New("unexpected exchange flags")
	}
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	_, hasDeadline := ctx.Deadline()
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg, hasDeadline: hasDeadline})
	return c.publishErr
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func TestDeclareExchange(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, DeclareExchange(ch))
	assert.Equal(t, []string{"storefront.events:topic"}, ch.declared)

	failing := &fakeChannel{declareErr: errors.New("access refused")}
	require.ErrorContains(t, DeclareExchange(failing), "declare exchange storefront.events")
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	publisher, err := NewPublisher(ch, "", WithClock(func() time.Time { return at }), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, OrderPlacedRoutingKey, publisher.RoutingKey())

	err = publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "ORD000001001",
		EventType:     "order.placed",
		Payload:       []byte(`{"item_count":2}`),
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, EventsExchange, got.exchange)
	assert.Equal(t, OrderPlacedRoutingKey, got.key)
	assert.True(t, got.hasDeadline)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "outbox-1", got.msg.MessageId)
	assert.Equal(t, "order.placed", got.msg.Type)
	assert.Equal(t, "ORD000001001", got.msg.Headers["aggregate_id"])

	var body message
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "ORD000001001", body.AggregateID)
	assert.JSONEq(t, `{"item_count":2}`, string(body.Payload))
	assert.True(t, body.PublishedAt.Equal(at))
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}

	publisher, err := NewPublisher(ch, OrderPlacedDLQRoutingKey, WithLogger(quietLogger()), WithPublishTimeout(time.Second))
	require.NoError(t, err)

	err = publisher.Publish(domain.OutboxMessage{ID: "outbox-2", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, amqp.ErrClosed)
	require.Len(t, ch.published, 1)
	assert.Equal(t, OrderPlacedDLQRoutingKey, ch.published[0].key)
}

func TestPublisher_InvalidPayload(t *testing.T) {
	ch := &fakeChannel{}
	publisher, err := NewPublisher(ch, "", WithLogger(quietLogger()))
	require.NoError(t, err)

	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3", Payload: []byte(`{broken`)}))
	assert.Empty(t, ch.published)
}

func TestNewPublisher_RequiresChannel(t *testing.T) {
	_, err := NewPublisher(nil, "")
	require.Error(t, err)
}

func TestConnectionClose_Nil(t *testing.T) {
	var conn *Connection
	assert.NoError(t, conn.Close())
}
