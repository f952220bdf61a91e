package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestEnvelopeKey(t *testing.T) {
	if got := (Envelope{ID: "outbox-1", AggregateID: "ORD1"}).Key(); got != "ORD1" {
		t.Fatalf("expected aggregate id key, got %q", got)
	}
	if got := (Envelope{ID: "outbox-1"}).Key(); got != "outbox-1" {
		t.Fatalf("expected outbox id fallback, got %q", got)
	}
}

func TestDecodeReplay_OutboxDLQRecord(t *testing.T) {
	raw := []byte(`{
		"id": "outbox-1",
		"aggregate_type": "order",
		"aggregate_id": "ORD000001001",
		"event_type": "order.placed",
		"payload": {
			"outbox_id": "outbox-1",
			"aggregate_id": "ORD000001001",
			"event_type": "order.placed",
			"payload": {"item_count": 2},
			"publish_error": "timeout"
		}
	}`)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	envelope, ok, err := DecodeReplay(raw, at)
	if err != nil {
		t.Fatalf("DecodeReplay failed: %v", err)
	}
	if !ok {
		t.Fatal("expected replay candidate")
	}
	if envelope.Key() != "ORD000001001" {
		t.Fatalf("unexpected key: %s", envelope.Key())
	}
	if envelope.AggregateType != "order" {
		t.Fatalf("aggregate type must fall back to outer envelope, got %q", envelope.AggregateType)
	}
	if !envelope.PublishedAt.Equal(at) {
		t.Fatalf("unexpected published_at: %s", envelope.PublishedAt)
	}

	var payload map[string]any
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("replay payload must be valid JSON: %v", err)
	}
	if payload["item_count"] != float64(2) {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestDecodeReplay_MissingNestedPayload(t *testing.T) {
	raw := []byte(`{"id":"outbox-1","payload":{"outbox_id":"outbox-1","event_type":"order.placed"}}`)

	_, ok, err := DecodeReplay(raw, time.Now())
	if !errors.Is(err, domain.ErrDeadLetterPayloadMissing) {
		t.Fatalf("expected ErrDeadLetterPayloadMissing, got %v", err)
	}
	if ok {
		t.Fatal("expected no replay candidate")
	}
}

func TestDecodeReplay_SkipsForeignMessages(t *testing.T) {
	for _, raw := range []string{`{"foo":"bar"}`, `not json`, `{"id":"x"}`} {
		_, ok, err := DecodeReplay([]byte(raw), time.Now())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if ok {
			t.Fatalf("expected %q to be skipped", raw)
		}
	}

	if _, _, err := DecodeReplay([]byte(`{"id":"x","payload":"not-an-object"}`), time.Now()); err == nil {
		t.Fatal("expected decode error for non-object payload")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
