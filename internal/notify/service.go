package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/cart"
	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/metrics"
	"github.com/ecomstack/fulfillment/internal/orders"
)

// Deduper absorbs at-least-once redelivery. Satisfied by
// redisx.IdempotencyStore.
type Deduper interface {
	MarkOnce(ctx context.Context, id string) (bool, error)
}

// Service consumes order.notification and cart.event messages and persists
// human-readable notifications. It never publishes back into the saga.
type Service struct {
	Store Store
	Dedup Deduper
	Log   *zap.Logger
}

// HandleNotification is the order.notification consumer handler.
func (s *Service) HandleNotification(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicNotification, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if env.EventType != orders.EventNotification {
		return nil
	}

	if fresh, err := s.Dedup.MarkOnce(ctx, env.EventID); err != nil {
		return err
	} else if !fresh {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicNotification, "duplicate").Inc()
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.NotificationPayload](env.Payload)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicNotification, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}

	title, message := p.Title, p.Message
	if title == "" || message == "" {
		title, message = DeriveOrder(p.EventType)
	}

	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Category:  categoryFor(p.EventType),
		Title:     title,
		Message:   message,
		Data:      string(env.Payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.Create(ctx, n); err != nil {
		return err
	}
	metrics.MessagesConsumed.WithLabelValues(orders.TopicNotification, "applied").Inc()
	s.Log.Info("notification stored",
		zap.String("user_id", p.UserID), zap.String("kind", p.EventType), zap.String("order_id", p.OrderID))
	return nil
}

// HandleCartEvent is the cart.event consumer handler.
func (s *Service) HandleCartEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicCartEvent, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if env.EventType != orders.EventCartChanged {
		return nil
	}

	if fresh, err := s.Dedup.MarkOnce(ctx, env.EventID); err != nil {
		return err
	} else if !fresh {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicCartEvent, "duplicate").Inc()
		return nil
	}

	p, err := kafkax.UnwrapPayload[cart.EventPayload](env.Payload)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicCartEvent, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}

	title, message := DeriveCart(p.Action, p.ProductID, p.Quantity)
	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Category:  CategoryCart,
		Title:     title,
		Message:   message,
		Data:      string(env.Payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.Create(ctx, n); err != nil {
		return err
	}
	metrics.MessagesConsumed.WithLabelValues(orders.TopicCartEvent, "applied").Inc()
	return nil
}

func categoryFor(kind string) Category {
	if strings.HasPrefix(kind, "payment_") {
		return CategoryPayment
	}
	return CategoryOrder
}
