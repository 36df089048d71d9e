package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

func TestResolveOrderCreated(t *testing.T) {
	reg := newTestRegistry(t)
	orderID := uuid.New()
	sellerID := uuid.New()

	resolved, err := reg.Resolve(orderRow(t, orderID, payloads.OrderCreatedEvent{
		OrderID:       orderID,
		BuyerID:       uuid.New(),
		SellerIDs:     []uuid.UUID{sellerID},
		ItemCount:     2,
		TotalAmount:   decimal.RequireFromString("42.50"),
		PaymentMethod: enums.PaymentMethodCOD,
	}))
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Route.Topic)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, []uuid.UUID{sellerID}, payload.SellerIDs)
	assert.True(t, payload.TotalAmount.Equal(decimal.RequireFromString("42.50")))
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestResolveRejectsPermanently(t *testing.T) {
	reg := newTestRegistry(t)
	orderID := uuid.New()

	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     "order_shipped",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, json.RawMessage(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderCreated,
			AggregateType: "cart",
			AggregateID:   uuid.New(),
			Payload:       envelope(t, json.RawMessage(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			Payload:       envelope(t, json.RawMessage(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, json.RawMessage("null")),
		},
		"broken envelope": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
		"payload for another order": orderRow(t, orderID, payloads.OrderCreatedEvent{OrderID: uuid.New()}),
	}

	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			require.Error(t, err)
			assert.True(t, IsPermanent(err))
		})
	}
}

func TestPermanent(t *testing.T) {
	cause := errors.New("topic deleted")
	err := Permanent(cause)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(cause))
	assert.Equal(t, "permanent delivery failure", (&PermanentError{}).Error())
}

func TestNewRequiresTopic(t *testing.T) {
	_, err := New(config.PubSubConfig{})
	assert.Error(t, err)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func orderRow(t *testing.T, orderID uuid.UUID, payload payloads.OrderCreatedEvent) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelope(t, data),
	}
}

func envelope(t *testing.T, data json.RawMessage) json.RawMessage {
	t.Helper()
	out, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return out
}
