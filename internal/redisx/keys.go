package redisx

import "time"

const (
	// Dedup of event processing: dedup:{service}:{id}. The id is the event id
	// or, for transition idempotency, order_id:event_kind.
	KeyDedup = "dedup:%s:%s"

	// Cached order status for fast reads: order_status:{order_id}.
	KeyOrderStatus = "order_status:%s"

	// One payment record per intent: payment:order:{order_id} -> payment_id.
	KeyPaymentForOrder = "payment:order:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLPayment     = 48 * time.Hour
)
