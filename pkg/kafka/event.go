package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope this package produces.
const SchemaVersion = 1

// Event is the envelope of every message the gateway publishes. Key becomes
// the kafka message key, so events sharing a key land on one partition.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Key           string          `json:"key"`
	Subject       string          `json:"subject"`
	SchemaVersion int             `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Option customises an Event built by NewEvent.
type Option func(*Event)

// WithCorrelationID tags the event with the request correlation id.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.CorrelationID = id }
}

// OccurredAt overrides the event time, which defaults to now.
func OccurredAt(t time.Time) Option {
	return func(e *Event) { e.OccurredAt = t.UTC() }
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(eventType, key, subject, producer string, payload any, opts ...Option) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	e := &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Key:           key,
		Subject:       subject,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		Payload:       raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Encode serialises the envelope.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

// DecodePayload unmarshals the payload into target.
func (e *Event) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
