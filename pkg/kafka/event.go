package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gje4/vercel-bigcommerce/pkg/logger"
)

// Event represents the standard event envelope for all Kafka messages.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event with a generated ID and current timestamp.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          dataBytes,
		Metadata:      make(map[string]string),
	}, nil
}

// NewEventFromContext is NewEvent with the correlation id taken from ctx.
// The run id and stage carried by ctx, if any, are copied into Metadata.
func NewEventFromContext(ctx context.Context, eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	e, err := NewEvent(eventType, aggregateID, aggregateType, source, data)
	if err != nil {
		return nil, err
	}
	e.CorrelationID = logger.CorrelationIDFromContext(ctx)
	if id := logger.RunIDFromContext(ctx); id != "" && id != aggregateID {
		e.Metadata[MetadataRunID] = id
	}
	if stage := logger.StageFromContext(ctx); stage != "" {
		e.Metadata[MetadataStage] = stage
	}
	return e, nil
}

// Metadata keys set by this package.
const (
	MetadataRunID = "run_id"
	MetadataStage = "stage"
)

// WithMetadata adds a key-value pair to the event metadata. Empty values are
// not recorded.
func (e *Event) WithMetadata(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an event and checks the envelope carries a type
// and an aggregate id.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.EventType == "" || event.AggregateID == "" {
		return nil, fmt.Errorf("unmarshal event: missing event_type or aggregate_id")
	}
	return &event, nil
}

// UnmarshalData deserializes the event data payload into target.
func (e *Event) UnmarshalData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}
