package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/redis"
)

// Manager records which outbox events a pipeline has already delivered,
// using Redis SETNX with a TTL. Keys follow the
// `fl:idempotency:evt:<pipeline>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard whose claims expire after ttl.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Claim marks the event as delivered by pipeline. It returns false when an
// earlier claim still holds, meaning the event must not be delivered again.
func (m *Manager) Claim(ctx context.Context, pipeline string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(pipeline, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim so a failed delivery can be retried.
func (m *Manager) Release(ctx context.Context, pipeline string, eventID uuid.UUID) error {
	key, err := m.key(pipeline, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(pipeline string, eventID uuid.UUID) (string, error) {
	if pipeline == "" {
		return "", errors.New("pipeline name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", pipeline), eventID.String()), nil
}
