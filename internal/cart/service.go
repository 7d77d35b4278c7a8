package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Emitter publishes cart.event messages. Emission is best-effort: the cart
// mutation has already committed when the event goes out.
type Emitter func(p EventPayload)

type Service struct {
	store Store
	emit  Emitter
	log   *zap.Logger
}

func NewService(store Store, emit Emitter, log *zap.Logger) *Service {
	if emit == nil {
		emit = func(EventPayload) {}
	}
	return &Service{store: store, emit: emit, log: log}
}

// Consolidate guarantees at most one logical cart per user. With several
// carts (a data-repair scenario) the first-created wins and absorbs the
// items of the rest; duplicates are deleted.
func (s *Service) Consolidate(ctx context.Context, userID string) (*Cart, error) {
	carts, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch len(carts) {
	case 0:
		c := NewCart(userID)
		if err := s.store.Save(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	case 1:
		return carts[0], nil
	}

	s.log.Warn("multiple carts found, consolidating",
		zap.String("user_id", userID), zap.Int("count", len(carts)))

	main := carts[0]
	for _, dup := range carts[1:] {
		main.Items = append(main.Items, dup.Items...)
		if err := s.store.Delete(ctx, dup.ID); err != nil {
			return nil, fmt.Errorf("delete duplicate cart %s: %w", dup.ID, err)
		}
	}
	if err := s.store.Save(ctx, main); err != nil {
		return nil, err
	}
	return main, nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int, price decimal.Decimal) (*Cart, error) {
	c, err := s.Consolidate(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Items = append(c.Items, Item{ID: uuid.NewString(), ProductID: productID, Quantity: qty, Price: price})
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.emitEvent(ActionItemAdded, userID, productID, qty)
	return c, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, qty int) (*Cart, error) {
	c, err := s.Consolidate(ctx, userID)
	if err != nil {
		return nil, err
	}
	var productID string
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = qty
			productID = c.Items[i].ProductID
		}
	}
	if productID == "" {
		return nil, ErrNotFound
	}
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.emitEvent(ActionItemUpdated, userID, productID, qty)
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.Consolidate(ctx, userID)
	if err != nil {
		return nil, err
	}
	var productID string
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID == itemID {
			productID = it.ProductID
			continue
		}
		kept = append(kept, it)
	}
	if productID == "" {
		return nil, ErrNotFound
	}
	c.Items = kept
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.emitEvent(ActionItemRemoved, userID, productID, 0)
	return c, nil
}

func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.Consolidate(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Items = nil
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.emitEvent(ActionCartCleared, userID, "", 0)
	return c, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.Consolidate(ctx, userID)
}

func (s *Service) emitEvent(action, userID, productID string, qty int) {
	s.emit(EventPayload{
		Action:    action,
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		Timestamp: time.Now().UnixMilli(),
	})
}
