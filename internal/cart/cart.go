package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("cart: not found")

// Cart actions carried in cart.event messages.
const (
	ActionItemAdded   = "item_added"
	ActionItemRemoved = "item_removed"
	ActionItemUpdated = "item_updated"
	ActionCartCleared = "cart_cleared"
)

// EventPayload is the wire form of one cart mutation.
type EventPayload struct {
	Action    string `json:"action"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Store persists carts. A user may transiently own several carts after a data
// repair; Service.Consolidate restores the one-cart invariant.
type Store interface {
	Save(ctx context.Context, c *Cart) error
	ListByUser(ctx context.Context, userID string) ([]*Cart, error)
	Delete(ctx context.Context, id string) error
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]*Cart)}
}

func (s *MemoryStore) Save(_ context.Context, c *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	s.carts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Cart
	for _, c := range s.carts {
		if c.UserID == userID {
			cp := *c
			cp.Items = append([]Item(nil), c.Items...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[id]; !ok {
		return ErrNotFound
	}
	delete(s.carts, id)
	return nil
}

// NewCart builds an empty cart for the user.
func NewCart(userID string) *Cart {
	return &Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC()}
}
