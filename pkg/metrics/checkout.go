package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes used as the outcome label.
const (
	CheckoutOutcomeSuccess           = "success"
	CheckoutOutcomeInvalidInput      = "invalid_input"
	CheckoutOutcomeEmptyCart         = "empty_cart"
	CheckoutOutcomeInsufficientStock = "insufficient_stock"
	CheckoutOutcomeProductGone       = "product_gone"
	CheckoutOutcomeUnavailable       = "product_unavailable"
	CheckoutOutcomeFailed            = "failed"
)

// CheckoutMetrics counts checkout attempts by outcome and times them.
type CheckoutMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmlink_checkout_total",
		Help: "Checkout attempts partitioned by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farmlink_checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(total, duration)
	return &CheckoutMetrics{total: total, duration: duration}
}

// Observe records one checkout attempt.
func (c *CheckoutMetrics) Observe(outcome string, elapsed time.Duration) {
	if c == nil || c.total == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	c.total.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
