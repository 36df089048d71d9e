// Package registry maps outbox rows to Pub/Sub topics and typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

// Route says where an event type is published and how its payload decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// Resolved is an outbox row that is ready to publish.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

// aggregateRef is implemented by payloads that name their own aggregate.
type aggregateRef interface {
	AggregateRef() uuid.UUID
}

type Registry struct {
	routes map[enums.OutboxEventType]Route
}

// New registers every event the marketplace emits against the configured topics.
func New(cfg config.PubSubConfig) (*Registry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &Registry{routes: map[enums.OutboxEventType]Route{
		enums.EventOrderCreated: {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			Topic:         cfg.OrdersTopic,
			decode:        decodeAs[payloads.OrderCreatedEvent],
		},
	}}, nil
}

// Resolve decodes a row. Every failure is permanent: retrying a malformed
// row cannot succeed.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	route, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, permanentf("unsupported event type %s", row.EventType)
	case route.AggregateType != row.AggregateType:
		return nil, permanentf("aggregate mismatch: expected %s got %s", route.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanentf("missing aggregate_id")
	}

	var envelope outbox.Envelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanentf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanentf("payload missing for %s", row.EventType)
	}
	payload, err := route.decode(data)
	if err != nil {
		return nil, permanentf("decode %s payload: %w", row.EventType, err)
	}
	if ref, ok := payload.(aggregateRef); ok && ref.AggregateRef() != row.AggregateID {
		return nil, permanentf("%s payload names aggregate %s, row has %s", row.EventType, ref.AggregateRef(), row.AggregateID)
	}
	return &Resolved{Route: route, Envelope: envelope, Payload: payload}, nil
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}
