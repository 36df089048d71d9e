package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 7 * 24 * time.Hour
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type purgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionJob deletes rows older than a moving cutoff.
type RetentionJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     purgeFunc
	now       func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, retention, fallback time.Duration, purge purgeFunc) (*RetentionJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if retention <= 0 {
		retention = fallback
	}
	return &RetentionJob{
		name:      name,
		logg:      logg,
		retention: retention,
		purge:     purge,
		now:       time.Now,
	}, nil
}

func (j *RetentionJob) Name() string { return j.name }

// Run purges everything older than now minus the retention window.
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationRetentionJobParams struct {
	Logger     *logger.Logger
	Repository readNotificationPurger
	Retention  time.Duration
}

// NewNotificationRetentionJob removes read notifications past retention.
// Unread notifications are kept however old they are.
func NewNotificationRetentionJob(p NotificationRetentionJobParams) (*RetentionJob, error) {
	if p.Repository == nil {
		return nil, errors.New("notifications repository required")
	}
	return newRetentionJob("notification-retention", p.Logger, p.Retention, defaultNotificationRetention, p.Repository.DeleteReadBefore)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPurger interface {
	PurgePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedEventPurger
	Retention  time.Duration
}

// NewOutboxRetentionJob removes order events the relay already published.
// Pending and failed rows stay for the relay.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (*RetentionJob, error) {
	if p.DB == nil {
		return nil, errors.New("db runner required")
	}
	if p.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	purge := func(ctx context.Context, cutoff time.Time) (int64, error) {
		var deleted int64
		err := p.DB.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := p.Repository.PurgePublished(ctx, tx, cutoff)
			deleted = n
			return err
		})
		return deleted, err
	}
	return newRetentionJob("outbox-retention", p.Logger, p.Retention, defaultOutboxRetention, purge)
}
