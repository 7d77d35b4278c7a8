package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecomstack/fulfillment/internal/orders"
)

var (
	ErrNotFound        = errors.New("payments: not found")
	ErrNotRefundable   = errors.New("payments: only completed payments can be refunded")
	ErrStatusRegressed = errors.New("payments: status transitions are monotonic")
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

// rank enforces monotonic status movement; a record never travels backwards.
var rank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
	StatusRefunded:   3,
}

type Payment struct {
	ID            string               `json:"id"`
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	Amount        decimal.Decimal      `json:"amount"`
	Method        orders.PaymentMethod `json:"payment_method"`
	Status        Status               `json:"status"`
	TransactionID string               `json:"transaction_id,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	PaymentDate   time.Time            `json:"payment_date"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// SetStatus applies a monotonic transition. REFUNDED is reachable only from
// COMPLETED and only once.
func (p *Payment) SetStatus(next Status) error {
	if next == StatusRefunded {
		if p.Status != StatusCompleted {
			return ErrNotRefundable
		}
	} else if rank[next] < rank[p.Status] {
		return ErrStatusRegressed
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	ListByUser(ctx context.Context, userID string) ([]*Payment, error)
}

type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]*Payment
	byOrder map[string]string
}

var _ Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]*Payment), byOrder: make(map[string]string)}
}

func (r *MemoryRepo) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepo) GetByOrder(_ context.Context, orderID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string) ([]*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Payment
	for _, p := range r.byID {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}
