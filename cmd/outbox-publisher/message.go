package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Route.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, orderMessage(row, resolved))
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// orderMessage keys the message by aggregate so subscribers see one order's
// events in commit order. Order-created payloads also surface routing
// attributes so subscribers can filter without decoding the body.
func orderMessage(row models.OutboxEvent, resolved *registry.Resolved) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if created, ok := resolved.Payload.(*payloads.OrderCreatedEvent); ok && created != nil {
		attrs["buyer_id"] = created.BuyerID.String()
		attrs["payment_method"] = string(created.PaymentMethod)
		attrs["seller_count"] = strconv.Itoa(len(created.SellerIDs))
	}
	return &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attrs,
		OrderingKey: row.AggregateID.String(),
	}
}

func logFields(row models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"order_id":      row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	if resolved != nil {
		fields["topic"] = resolved.Route.Topic
		fields["event_id"] = resolved.Envelope.EventID
	}
	return fields
}

// orderedTopicPublishers hands out one ordering-enabled publisher per topic.
func orderedTopicPublishers(src topicSource) func(topic string) topicPublisher {
	cache := map[string]topicPublisher{}
	return func(topic string) topicPublisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		p := src.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		pub := &gcpPublisher{p: p}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpResult{res: g.p.Publish(ctx, msg), p: g.p, key: msg.OrderingKey}
}

type gcpResult struct {
	res *gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

// Get waits for the server ack. A failed key is paused by the client until
// resumed, so it is resumed here for the next retry.
func (g *gcpResult) Get(ctx context.Context) (string, error) {
	if g.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := g.res.Get(ctx)
	if err != nil && g.key != "" {
		g.p.ResumePublish(g.key)
	}
	return id, err
}
