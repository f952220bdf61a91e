package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics витрины.
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers, которые проставляются на каждое сообщение outbox.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения в topic событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Key возвращает ключ партиционирования: агрегат, иначе id сообщения.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DecodeReplay разбирает сообщение из DLQ (domain.DeadLetter внутри конверта) и восстанавливает исходный конверт.
// ok=false означает, что сообщение не похоже на DLQ-запись outbox.
func DecodeReplay(raw []byte, publishedAt time.Time) (Envelope, bool, error) {
	var outer Envelope
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer.Payload) == 0 {
		return Envelope{}, false, nil
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(outer.Payload, &letter); err != nil {
		return Envelope{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	original, err := letter.Original()
	if err != nil {
		return Envelope{}, false, err
	}

	return Envelope{
		ID:            firstNonEmpty(original.ID, outer.ID),
		AggregateType: firstNonEmpty(original.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(original.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(original.EventType, outer.EventType),
		Payload:       original.Payload,
		PublishedAt:   publishedAt.UTC(),
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
