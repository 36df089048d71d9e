package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcomes used as the outcome label.
const (
	OutboxOutcomePublished    = "published"
	OutboxOutcomeDuplicate    = "duplicate"
	OutboxOutcomeRetry        = "retry"
	OutboxOutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics counts relayed order events and tracks the size of each drained batch.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the relay metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmlink_outbox_events_total",
		Help: "Outbox events handled by the relay partitioned by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "farmlink_outbox_batch_size",
		Help:    "Rows claimed per relay batch.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})
	reg.MustRegister(events, batches)
	return &OutboxMetrics{events: events, batches: batches}
}

// Record counts one handled event.
func (o *OutboxMetrics) Record(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records how many rows a batch claimed.
func (o *OutboxMetrics) ObserveBatch(rows int) {
	if o == nil || o.batches == nil {
		return
	}
	o.batches.Observe(float64(rows))
}
