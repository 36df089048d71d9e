package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const (
	fallbackBatchSize    = 50
	fallbackPollInterval = 500 * time.Millisecond
	fallbackMaxAttempts  = 10
	publishTimeout       = 15 * time.Second
	errorBackoffCap      = 10 * time.Second
	maxJitter            = 250 * time.Millisecond

	// guardPipeline namespaces delivery claims in Redis.
	guardPipeline = "order-events"
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// deliveryGuard remembers delivered events across batches so a row whose
// published mark was lost is not sent twice.
type deliveryGuard interface {
	Claim(ctx context.Context, pipeline string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, pipeline string, eventID uuid.UUID) error
}

type eventStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Retire(tx *gorm.DB, id uuid.UUID, err error, maxAttempts int) error
}

type deadLetterStore interface {
	AppendDeadLetter(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// RelayParams collects the relay's collaborators. Guard, Metrics and
// Publishers are optional.
type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Topics      topicSource
	Events      eventStore
	Resolver    eventResolver
	DeadLetters deadLetterStore
	Guard       deliveryGuard
	Metrics     *metrics.OutboxMetrics
	Publishers  func(topic string) topicPublisher
}

// Relay drains committed order events from the outbox table onto Pub/Sub.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	topics      topicSource
	events      eventStore
	resolver    eventResolver
	deadLetters deadLetterStore
	guard       deliveryGuard
	metrics     *metrics.OutboxMetrics
	publishers  func(topic string) topicPublisher

	batchSize   int
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
	jitter      func(time.Duration) time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	var err error
	if p.Logger == nil {
		err = multierr.Append(err, errors.New("logger is required"))
	}
	if p.DB == nil {
		err = multierr.Append(err, errors.New("database client is required"))
	}
	if p.Topics == nil {
		err = multierr.Append(err, errors.New("pubsub client is required"))
	}
	if p.Events == nil {
		err = multierr.Append(err, errors.New("outbox repository is required"))
	}
	if p.Resolver == nil {
		err = multierr.Append(err, errors.New("event registry is required"))
	}
	if p.DeadLetters == nil {
		err = multierr.Append(err, errors.New("dlq repository is required"))
	}
	if err != nil {
		return nil, err
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		topics:      p.Topics,
		events:      p.Events,
		resolver:    p.Resolver,
		deadLetters: p.DeadLetters,
		guard:       p.Guard,
		metrics:     p.Metrics,
		publishers:  p.Publishers,
		batchSize:   positiveOr(p.Outbox.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Outbox.MaxAttempts, fallbackMaxAttempts),
		interval:    fallbackPollInterval,
		now:         func() time.Time { return time.Now().UTC() },
		jitter:      randomJitter,
	}
	if p.Outbox.PollIntervalMS > 0 {
		r.interval = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if r.publishers == nil {
		r.publishers = orderedTopicPublishers(p.Topics)
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next one; an empty batch waits one interval; a failed batch backs off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	wait := r.interval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		handled, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = doubleUpTo(wait, errorBackoffCap)
		case handled > 0:
			wait = r.interval
			continue
		default:
			wait = r.interval
		}

		if err := pause(ctx, r.jitter(wait)); err != nil {
			return err
		}
	}
}

func (r *Relay) checkDependencies(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", r.db.Ping},
		{"pubsub", r.topics.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", dep.name), "outbox relay dependency unavailable", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func doubleUpTo(current, ceiling time.Duration) time.Duration {
	if current <= 0 {
		return ceiling
	}
	if next := current * 2; next < ceiling {
		return next
	}
	return ceiling
}

func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(maxJitter)
}
