package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

// Writer queues domain events in the caller's transaction so they commit or
// roll back together with the change that produced them.
type Writer struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg, now: time.Now}
}

func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	row, err := event.row(uuid.New(), w.now().UTC())
	if err != nil {
		return err
	}
	if err := w.store.Append(tx, row); err != nil {
		return err
	}
	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"event_id":   row.ID.String(),
		"event_type": row.EventType,
		"order_id":   row.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
