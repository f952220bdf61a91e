package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDeadLetterPayloadMissing возвращается, если в записи DLQ нет исходного события.
var ErrDeadLetterPayloadMissing = errors.New("dead letter does not contain original event payload")

// DeadLetter — запись, которую outbox worker отправляет в DLQ, когда попытки публикации исчерпаны.
// Хранит исходное событие целиком, чтобы его можно было переиграть.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error,omitempty"`
	Attempts      int             `json:"attempts,omitempty"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewDeadLetter собирает запись DLQ по сообщению outbox и последней ошибке публикации.
func NewDeadLetter(msg OutboxMessage, cause error, attempts int, failedAt time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Attempts:      attempts,
		FailedAt:      failedAt.UTC(),
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Wrap упаковывает запись в сообщение для DLQ-топика; идентификаторы сохраняются.
func (d DeadLetter) Wrap() (OutboxMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return OutboxMessage{}, err
	}
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       body,
	}, nil
}

// Original восстанавливает исходное сообщение outbox.
func (d DeadLetter) Original() (OutboxMessage, error) {
	if len(d.Payload) == 0 || string(d.Payload) == "null" {
		return OutboxMessage{}, ErrDeadLetterPayloadMissing
	}
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}, nil
}
