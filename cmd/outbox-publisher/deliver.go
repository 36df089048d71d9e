package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

// drain claims one batch of unpublished rows under a transaction and
// settles each of them. It returns how many rows the batch held.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.ClaimBatch(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		handled = len(rows)
		r.metrics.ObserveBatch(handled)

		for _, row := range rows {
			outcome, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			r.metrics.Record(string(row.EventType), outcome)
		}
		return nil
	})
	return handled, err
}

// deliver publishes one row and records the result on it. Only storage
// failures are returned; publish failures become row state.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	resolved, err := r.resolver.Resolve(row)
	if err != nil {
		return metrics.OutboxOutcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, logFields(row, nil))
	}

	fields := logFields(row, resolved)
	logCtx := r.logg.WithFields(ctx, fields)

	if !r.claim(logCtx, row) {
		if err := r.events.MarkPublished(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(logCtx, "order event already delivered")
		return metrics.OutboxOutcomeDuplicate, nil
	}

	if pubErr := r.publish(ctx, row, resolved); pubErr != nil {
		r.release(logCtx, row)

		if registry.IsPermanent(pubErr) {
			return metrics.OutboxOutcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
		}

		attempt := row.AttemptCount + 1
		fields["attempt_count"] = attempt
		if attempt >= r.maxAttempts {
			exhausted := fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr)
			return metrics.OutboxOutcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
		}

		r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", pubErr.Error()), "order event publish failed, will retry")
		if err := r.events.RecordFailure(tx, row.ID, pubErr); err != nil {
			return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
		return metrics.OutboxOutcomeRetry, nil
	}

	if err := r.events.MarkPublished(tx, row.ID); err != nil {
		return "", fmt.Errorf("mark published %s: %w", row.ID, err)
	}
	r.logg.Info(logCtx, "order event published")
	return metrics.OutboxOutcomePublished, nil
}

// claim reports whether the row should be sent now. A guard outage falls
// back to sending; subscribers dedupe on event_id.
func (r *Relay) claim(ctx context.Context, row models.OutboxEvent) bool {
	if r.guard == nil {
		return true
	}
	fresh, err := r.guard.Claim(ctx, guardPipeline, row.ID)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "delivery guard unavailable")
		return true
	}
	return fresh
}

func (r *Relay) release(ctx context.Context, row models.OutboxEvent) {
	if r.guard == nil {
		return
	}
	if err := r.guard.Release(ctx, guardPipeline, row.ID); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "delivery guard release failed")
	}
}

// deadLetter copies the row into the DLQ and retires it from the outbox.
func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", cause.Error()), "order event moved to dead letter queue")

	entry := row.DeadLetter(reason, cause, r.now())
	if err := r.deadLetters.AppendDeadLetter(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.Retire(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}
