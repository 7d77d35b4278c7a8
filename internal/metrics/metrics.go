package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "order_transitions_total",
		Help:      "Order status transitions applied by the saga coordinator.",
	}, []string{"from", "to"})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "messages_consumed_total",
		Help:      "Bus messages consumed, by topic and outcome (applied, duplicate, dropped, unknown).",
	}, []string{"topic", "outcome"})

	PaymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "payment_outcomes_total",
		Help:      "Payment gateway outcomes, by method and status.",
	}, []string{"method", "status"})

	PendingReleases = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fulfillment",
		Name:      "stock_pending_release",
		Help:      "Reservations awaiting manual release after a failed payment.",
	})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "notifications_dropped_total",
		Help:      "Notification events discarded after a publish failure.",
	})
)
