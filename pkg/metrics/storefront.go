package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reservation outcomes.
const (
	ReservationReserved     = "reserved"
	ReservationInsufficient = "insufficient"
	ReservationCommitted    = "committed"
	ReservationReleased     = "released"
	ReservationRestocked    = "restocked"
)

// StorefrontMetrics tracks stock reservations, checkouts and order transitions.
type StorefrontMetrics struct {
	reservations     *prometheus.CounterVec
	reservedUnits    *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	transitions      *prometheus.CounterVec
}

// NewStorefrontMetrics registers the storefront collectors on reg. A nil
// registerer yields a no-op collector.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rq_stock_reservations_total",
		Help: "Stock ledger operations by outcome.",
	}, []string{"outcome"})
	reservedUnits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rq_stock_units_total",
		Help: "Units moved by stock ledger operations.",
	}, []string{"outcome"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rq_checkouts_total",
		Help: "Checkout attempts by result code.",
	}, []string{"result"})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rq_checkout_duration_seconds",
		Help:    "Duration of checkout transactions.",
		Buckets: prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rq_order_transitions_total",
		Help: "Order lifecycle transitions by name and result code.",
	}, []string{"transition", "result"})
	reg.MustRegister(reservations, reservedUnits, checkouts, checkoutDuration, transitions)
	return &StorefrontMetrics{
		reservations:     reservations,
		reservedUnits:    reservedUnits,
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		transitions:      transitions,
	}
}

// ObserveReservation counts one ledger operation moving qty units.
func (m *StorefrontMetrics) ObserveReservation(outcome string, qty int) {
	if m == nil || m.reservations == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.reservations.WithLabelValues(label).Inc()
	if qty > 0 {
		m.reservedUnits.WithLabelValues(label).Add(float64(qty))
	}
}

// ObserveCheckout records a checkout attempt. result is "ok" or an error code.
func (m *StorefrontMetrics) ObserveCheckout(result string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// ObserveTransition records an order lifecycle transition attempt.
func (m *StorefrontMetrics) ObserveTransition(transition, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transition), normalizeLabel(result)).Inc()
}
