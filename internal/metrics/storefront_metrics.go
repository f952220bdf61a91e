package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления заказа для метки result.
const (
	CheckoutResultSuccess   = "success"
	CheckoutResultInvalid   = "invalid"
	CheckoutResultEmptyCart = "empty_cart"
	CheckoutResultNotFound  = "not_found"
	CheckoutResultError     = "error"
)

// StorefrontMetrics содержит бизнес-метрики витрины.
// Методы безопасно вызывать на nil-получателе.
type StorefrontMetrics struct {
	checkouts             *prometheus.CounterVec
	checkoutDuration      prometheus.Histogram
	orderTotal            prometheus.Histogram
	cartMutations         *prometheus.CounterVec
	orderNumberCollisions prometheus.Counter
}

// NewStorefrontMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в указанном registerer.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	return &StorefrontMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts grouped by result.",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout processing in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		orderTotal: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_total_amount",
			Help:    "Subtotal of placed orders before tax.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation.",
		}, []string{"op"}),
		orderNumberCollisions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_order_number_collisions_total",
			Help: "Total number of order number collisions resolved by retry.",
		}),
	}
}

// RecordCheckout фиксирует результат и длительность оформления заказа.
func (m *StorefrontMetrics) RecordCheckout(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderTotal фиксирует сумму оформленного заказа.
func (m *StorefrontMetrics) RecordOrderTotal(total float64) {
	if m == nil {
		return
	}
	m.orderTotal.Observe(total)
}

// RecordCartMutation увеличивает счётчик изменений корзины.
func (m *StorefrontMetrics) RecordCartMutation(op string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op).Inc()
}

// RecordOrderNumberCollision увеличивает счётчик коллизий номера заказа.
func (m *StorefrontMetrics) RecordOrderNumberCollision() {
	if m == nil {
		return
	}
	m.orderNumberCollisions.Inc()
}
