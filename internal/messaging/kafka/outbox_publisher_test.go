package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.AggregateID != "ORD000001001" {
			return fmt.Errorf("unexpected envelope ids: %+v", envelope)
		}
		if envelope.EventType != "order.placed" {
			return fmt.Errorf("unexpected event type: %s", envelope.EventType)
		}
		if string(envelope.Payload) != `{"item_count":2}` {
			return fmt.Errorf("unexpected payload: %s", envelope.Payload)
		}
		if !envelope.PublishedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
			return fmt.Errorf("unexpected published_at: %s", envelope.PublishedAt)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, WithProducerLogger(testLogger())), "")
	publisher.now = func() time.Time { return time.Date(2026, 3, 1, 15, 0, 0, 0, time.FixedZone("MSK", 3*60*60)) }

	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("unexpected default topic: %s", publisher.Topic())
	}

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "ORD000001001",
		EventType:     "order.placed",
		Payload:       []byte(`{"item_count":2}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, WithProducerLogger(testLogger())), TopicDeadLetterQueue)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "ORD000001002",
		EventType:     "order.placed",
		Payload:       []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
