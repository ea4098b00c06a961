// Package event defines the canonical envelope carried across every
// topic in the fabric, and the closed set of payload shapes that ride
// inside it.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

// Envelope is the outer object every publisher emits and every consumer
// unmarshals before dispatching on Type.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// New builds an envelope around payload, minting a fresh id when id is
// uuid.Nil. Timestamp is always stamped in UTC.
func New(id uuid.UUID, eventType string, now time.Time, payload any) (Envelope, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       id,
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     now.UTC(),
		Data:          data,
	}, nil
}

// MarshalTimestamp renders the timestamp as RFC 3339 UTC with a trailing
// Z, the exact format named by the envelope invariant.
func (e Envelope) MarshalTimestamp() string {
	return e.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z")
}

// Decode unmarshals the envelope's data into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// UnmarshalValues rebuilds an Envelope from the flat string fields a
// Redis Streams entry carries, the inverse of the field-by-field
// encoding publishOnce writes via XAdd.
func (e *Envelope) UnmarshalValues(eventID, eventType, schemaVersion, timestamp, data string) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("event: parse event_id %q: %w", eventID, err)
	}
	ts, err := time.Parse("2006-01-02T15:04:05.999999999Z", timestamp)
	if err != nil {
		return fmt.Errorf("event: parse timestamp %q: %w", timestamp, err)
	}

	e.EventID = id
	e.EventType = eventType
	e.SchemaVersion = schemaVersion
	e.Timestamp = ts
	e.Data = json.RawMessage(data)
	return nil
}
