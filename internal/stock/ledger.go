package stock

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientStock is a rejection, not a fault: the ledger performed
	// no mutation and the caller must not retry through the fallback path.
	ErrInsufficientStock = errors.New("stock: insufficient stock")

	ErrUnknownProduct = errors.New("stock: unknown product")
)

// Ledger owns per-product available quantity. Reservations are keyed by
// (order id, product id) so at-least-once delivery replays are absorbed as
// no-ops instead of double-decrementing.
type Ledger interface {
	// Reserve atomically checks available >= qty and decrements. A replay for
	// the same (orderID, productID) is a no-op returning nil.
	Reserve(ctx context.Context, orderID, productID string, qty int) error

	// Release unconditionally increments available quantity. Used for refund
	// flows; cannot fail under normal operation.
	Release(ctx context.Context, productID string, qty int) error

	// PendingRelease flags every live reservation of the order. The stock is
	// NOT returned; the flag makes the compensation gap observable so an
	// operator (or a later sweep) can settle it explicitly.
	PendingRelease(ctx context.Context, orderID string) (int, error)

	// ReleaseOrder returns all live or pending-release reservations of the
	// order to the pool and marks them released. Idempotent; reports how many
	// reservations were settled by this call.
	ReleaseOrder(ctx context.Context, orderID string) (int, error)
}

// Reservation statuses as persisted in the reservations table / log.
const (
	StatusReserved       = "RESERVED"
	StatusPendingRelease = "PENDING_RELEASE"
	StatusReleased       = "RELEASED"
)
