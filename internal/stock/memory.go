package stock

import (
	"context"
	"sync"
)

type reservation struct {
	productID string
	qty       int
	status    string
}

// MemoryLedger is the in-process Ledger used by tests and the payment
// simulator deployments.
type MemoryLedger struct {
	mu           sync.Mutex
	available    map[string]int
	reservations map[string][]*reservation // keyed by order id
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(initial map[string]int) *MemoryLedger {
	avail := make(map[string]int, len(initial))
	for id, qty := range initial {
		avail[id] = qty
	}
	return &MemoryLedger{
		available:    avail,
		reservations: make(map[string][]*reservation),
	}
}

func (l *MemoryLedger) Reserve(_ context.Context, orderID, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.reservations[orderID] {
		if r.productID == productID && r.status != StatusReleased {
			return nil // replay, already reserved
		}
	}

	available, ok := l.available[productID]
	if !ok {
		return ErrUnknownProduct
	}
	if available < qty {
		return ErrInsufficientStock
	}
	l.available[productID] = available - qty
	l.reservations[orderID] = append(l.reservations[orderID], &reservation{
		productID: productID, qty: qty, status: StatusReserved,
	})
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.available[productID]; !ok {
		return ErrUnknownProduct
	}
	l.available[productID] += qty
	return nil
}

func (l *MemoryLedger) PendingRelease(_ context.Context, orderID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.reservations[orderID] {
		if r.status == StatusReserved {
			r.status = StatusPendingRelease
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) ReleaseOrder(_ context.Context, orderID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.reservations[orderID] {
		if r.status != StatusReleased {
			l.available[r.productID] += r.qty
			r.status = StatusReleased
			n++
		}
	}
	return n, nil
}

// Available reports current quantity, for tests and the admin surface.
func (l *MemoryLedger) Available(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[productID]
}

// PendingReleaseCount reports reservations flagged for manual settlement.
func (l *MemoryLedger) PendingReleaseCount(orderID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.reservations[orderID] {
		if r.status == StatusPendingRelease {
			n++
		}
	}
	return n
}
