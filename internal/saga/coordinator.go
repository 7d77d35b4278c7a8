package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/cart"
	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/metrics"
	"github.com/ecomstack/fulfillment/internal/notify"
	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/products"
	"github.com/ecomstack/fulfillment/internal/stock"
)

// Result statuses are an open set across payment processors. Matching is
// case-insensitive; anything outside both sets is logged and ignored.
var (
	successStatuses = map[string]bool{"completed": true, "approved": true, "paid": true, "success": true}
	failureStatuses = map[string]bool{"failed": true, "rejected": true, "cancelled": true, "declined": true}
)

type StatusCache interface {
	Set(ctx context.Context, orderID, status string) error
	Get(ctx context.Context, orderID string) (string, error)
}

// Deduper absorbs at-least-once redelivery. Seen is a non-claiming read; the
// token is only claimed once the transition has committed, so a transient
// store fault leaves the event reprocessable.
type Deduper interface {
	MarkOnce(ctx context.Context, id string) (bool, error)
	Seen(ctx context.Context, id string) (bool, error)
}

// Notifier is the outbox surface. Enqueue must never block or fail.
type Notifier interface {
	Enqueue(p orders.NotificationPayload)
}

// Coordinator drives the order fulfillment saga: it creates orders, reserves
// stock, emits payment intents and reconciles asynchronous payment results.
// There is no distributed transaction anywhere; every step is individually
// idempotent so at-least-once delivery is safe.
type Coordinator struct {
	Orders  orders.Repository
	Ledger  stock.Ledger
	Catalog products.Client
	Carts   *cart.Service
	Cache   StatusCache
	Dedup   Deduper
	Notify  Notifier
	Publish func(key, value []byte) error

	// PublishCreated announces accepted orders on order.created for consumers
	// outside the saga (analytics, projections). Optional.
	PublishCreated func(key, value []byte) error

	Name string
	Log  *zap.Logger
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CardDetails struct {
	Number         string `json:"card_number"`
	HolderName     string `json:"card_holder_name"`
	ExpirationDate string `json:"expiration_date"`
	CVV            string `json:"cvv"`
}

type CreateOrderRequest struct {
	UserID          string               `json:"user_id"`
	DeliveryAddress string               `json:"delivery_address"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
	Items           []ItemRequest        `json:"items"`
	Card            CardDetails          `json:"card"`
}

// CreateOrder runs the synchronous half of the saga: price the items, reserve
// stock, persist the PENDING order and hand the payment intent to the bus. A
// reservation failure aborts the whole order; partial reservations are
// returned to the pool before the error surfaces.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*orders.Order, error) {
	if len(req.Items) == 0 {
		return nil, orders.ErrEmptyItems
	}

	items := make([]orders.Item, 0, len(req.Items))
	for _, ir := range req.Items {
		if ir.Quantity < 1 {
			return nil, orders.ErrInvalidQty
		}
		p, err := c.Catalog.GetProduct(ctx, ir.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", ir.ProductID, err)
		}
		items = append(items, orders.Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    ir.Quantity,
			UnitPrice:   p.Price,
		})
	}

	o, err := orders.New(uuid.NewString(), req.UserID, req.DeliveryAddress, req.PaymentMethod, items)
	if err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		if err := c.Ledger.Reserve(ctx, o.ID, it.ProductID, it.Quantity); err != nil {
			if _, relErr := c.Ledger.ReleaseOrder(ctx, o.ID); relErr != nil {
				c.Log.Error("release partial reservations",
					zap.String("order_id", o.ID), zap.Error(relErr))
			}
			return nil, fmt.Errorf("reserve %s: %w", it.ProductID, err)
		}
	}

	if err := c.Orders.Create(ctx, o); err != nil {
		if _, relErr := c.Ledger.ReleaseOrder(ctx, o.ID); relErr != nil {
			c.Log.Error("release reservations after store failure",
				zap.String("order_id", o.ID), zap.Error(relErr))
		}
		return nil, err
	}
	c.cacheStatus(ctx, o)

	c.publishIntent(o, req.Card)
	c.publishCreated(o)
	c.notifyOrder(o, notify.KindOrderCreated, "")

	c.Log.Info("order created",
		zap.String("order_id", o.ID), zap.String("user_id", o.UserID),
		zap.String("total", o.Total().String()), zap.Int("items", len(o.Items)))
	return o, nil
}

// CreateOrderFromCart builds an order from the user's consolidated cart and
// empties the cart once the order is accepted. Quantities of repeated
// products are merged.
func (c *Coordinator) CreateOrderFromCart(ctx context.Context, userID, address string, method orders.PaymentMethod, card CardDetails) (*orders.Order, error) {
	ct, err := c.Carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ct.Items) == 0 {
		return nil, orders.ErrEmptyItems
	}

	qty := make(map[string]int)
	var order []string
	for _, it := range ct.Items {
		if _, seen := qty[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	req := CreateOrderRequest{
		UserID:          userID,
		DeliveryAddress: address,
		PaymentMethod:   method,
		Card:            card,
	}
	for _, pid := range order {
		req.Items = append(req.Items, ItemRequest{ProductID: pid, Quantity: qty[pid]})
	}

	o, err := c.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := c.Carts.Clear(ctx, userID); err != nil {
		c.Log.Warn("clear cart after order", zap.String("user_id", userID), zap.Error(err))
	}
	return o, nil
}

// HandlePaymentResult is the payment.result consumer handler. It is safe
// under redelivery, reordering across orders and unknown status values.
func (c *Coordinator) HandlePaymentResult(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if env.EventType != orders.EventPaymentResult {
		return nil
	}

	if seen, err := c.Dedup.Seen(ctx, env.EventID); err != nil {
		return err
	} else if seen {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "duplicate").Inc()
		return nil
	}

	res, err := kafkax.UnwrapPayload[orders.PaymentResultPayload](env.Payload)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}

	o, err := c.Orders.Get(ctx, res.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "dropped").Inc()
		c.Log.Warn("payment result for unknown order",
			zap.String("order_id", res.OrderID), zap.String("payment_id", res.PaymentID))
		return fmt.Errorf("%w: unknown order %s", kafkax.ErrDropMessage, res.OrderID)
	}
	if err != nil {
		return err
	}

	status := strings.ToLower(strings.TrimSpace(res.Status))
	switch {
	case successStatuses[status]:
		return c.applyApproved(ctx, o, res, env.EventID)
	case failureStatuses[status]:
		return c.applyRejected(ctx, o, res, env.EventID)
	default:
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "unknown").Inc()
		c.Log.Warn("unrecognized payment status, no transition",
			zap.String("order_id", o.ID), zap.String("status", res.Status))
		c.claim(ctx, env.EventID)
		return nil
	}
}

// claim marks the event processed. Called only after the outcome is durable;
// a failed claim costs one re-run of an already-idempotent apply, never a
// lost transition.
func (c *Coordinator) claim(ctx context.Context, eventID string) {
	if _, err := c.Dedup.MarkOnce(ctx, eventID); err != nil {
		c.Log.Warn("claim dedup token", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (c *Coordinator) applyApproved(ctx context.Context, o *orders.Order, res orders.PaymentResultPayload, eventID string) error {
	from := o.Status
	changed, err := o.ApplyPaymentApproved(res.TransactionID)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "dropped").Inc()
		c.Log.Warn("approved result conflicts with terminal order",
			zap.String("order_id", o.ID), zap.String("order_status", string(from)))
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if !changed {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "duplicate").Inc()
		c.claim(ctx, eventID)
		return nil
	}
	if err := c.Orders.Update(ctx, o); err != nil {
		return err
	}
	c.claim(ctx, eventID)
	c.cacheStatus(ctx, o)
	metrics.OrderTransitions.WithLabelValues(string(from), string(o.Status)).Inc()
	metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "applied").Inc()

	c.notifyOrder(o, notify.KindPaymentApproved, "")
	c.notifyOrder(o, notify.KindOrderConfirmed, "")
	c.Log.Info("order confirmed",
		zap.String("order_id", o.ID), zap.String("transaction_id", res.TransactionID))
	return nil
}

func (c *Coordinator) applyRejected(ctx context.Context, o *orders.Order, res orders.PaymentResultPayload, eventID string) error {
	from := o.Status
	changed, err := o.ApplyPaymentRejected()
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "dropped").Inc()
		c.Log.Warn("rejected result conflicts with terminal order",
			zap.String("order_id", o.ID), zap.String("order_status", string(from)))
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if !changed {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "duplicate").Inc()
		c.claim(ctx, eventID)
		return nil
	}
	if err := c.Orders.Update(ctx, o); err != nil {
		return err
	}
	c.claim(ctx, eventID)
	c.cacheStatus(ctx, o)

	// The stock stays decremented; the flag makes the gap visible so an
	// operator or sweep settles it through ReleaseStock.
	n, err := c.Ledger.PendingRelease(ctx, o.ID)
	if err != nil {
		c.Log.Error("flag reservations for release", zap.String("order_id", o.ID), zap.Error(err))
	} else {
		metrics.PendingReleases.Add(float64(n))
	}

	metrics.OrderTransitions.WithLabelValues(string(from), string(o.Status)).Inc()
	metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentResult, "applied").Inc()

	c.notifyOrder(o, notify.KindPaymentFailed, "")
	c.notifyOrder(o, notify.KindOrderCancelled, "")
	c.Log.Info("order cancelled after payment failure",
		zap.String("order_id", o.ID), zap.String("error", res.ErrorMessage))
	return nil
}

// UpdateStatus applies an operator-driven transition through the same state
// machine. Cancelling flags the order's reservations for release.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID string, next orders.Status) (*orders.Order, error) {
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	if !orders.CanTransition(o.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, next)
	}
	from := o.Status
	o.AdminSetStatus(next)
	if err := c.Orders.Update(ctx, o); err != nil {
		return nil, err
	}
	c.cacheStatus(ctx, o)
	metrics.OrderTransitions.WithLabelValues(string(from), string(next)).Inc()

	if next == orders.StatusCancelled {
		if n, err := c.Ledger.PendingRelease(ctx, o.ID); err != nil {
			c.Log.Error("flag reservations for release", zap.String("order_id", o.ID), zap.Error(err))
		} else {
			metrics.PendingReleases.Add(float64(n))
		}
	}
	if kind := kindForStatus(next); kind != "" {
		c.notifyOrder(o, kind, o.TrackingNumber)
	}
	return o, nil
}

// ForceStatus is the operator escape hatch: any status from any status, no
// transition table, no saga side effects. For repairing records, not for
// driving the saga.
func (c *Coordinator) ForceStatus(ctx context.Context, orderID string, next orders.Status) (*orders.Order, error) {
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	from := o.Status
	o.AdminSetStatus(next)
	if err := c.Orders.Update(ctx, o); err != nil {
		return nil, err
	}
	c.cacheStatus(ctx, o)
	metrics.OrderTransitions.WithLabelValues(string(from), string(next)).Inc()
	c.Log.Warn("order status forced",
		zap.String("order_id", o.ID), zap.String("from", string(from)), zap.String("to", string(next)))
	return o, nil
}

// SetTracking records the tracking code and ships the order.
func (c *Coordinator) SetTracking(ctx context.Context, orderID, code string) (*orders.Order, error) {
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	changed, err := o.SetTracking(code)
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}
	if err := c.Orders.Update(ctx, o); err != nil {
		return nil, err
	}
	c.cacheStatus(ctx, o)
	metrics.OrderTransitions.WithLabelValues(string(from), string(o.Status)).Inc()
	c.notifyOrder(o, notify.KindOrderShipped, code)
	return o, nil
}

// ReleaseStock settles every outstanding reservation of the order. It is the
// explicit compensation for cancelled orders and refunds.
func (c *Coordinator) ReleaseStock(ctx context.Context, orderID string) (int, error) {
	// Flag first so the gauge accounts for reservations that were never
	// flagged, then settle everything in one pass.
	if n, err := c.Ledger.PendingRelease(ctx, orderID); err == nil {
		metrics.PendingReleases.Add(float64(n))
	}
	n, err := c.Ledger.ReleaseOrder(ctx, orderID)
	if err != nil {
		return n, err
	}
	metrics.PendingReleases.Sub(float64(n))
	c.Log.Info("reservations released", zap.String("order_id", orderID), zap.Int("count", n))
	return n, nil
}

// DeleteOrder is the administrative removal: outstanding stock goes back to
// the pool before the record disappears.
func (c *Coordinator) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := c.ReleaseStock(ctx, orderID); err != nil {
		return err
	}
	return c.Orders.Delete(ctx, orderID)
}

// OrderStatus serves the hot read path from the cache, falling back to the
// store on a miss.
func (c *Coordinator) OrderStatus(ctx context.Context, orderID string) (orders.Status, error) {
	if c.Cache != nil {
		if s, err := c.Cache.Get(ctx, orderID); err == nil && s != "" {
			return orders.Status(s), nil
		}
	}
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	c.cacheStatus(ctx, o)
	return o.Status, nil
}

func (c *Coordinator) cacheStatus(ctx context.Context, o *orders.Order) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Set(ctx, o.ID, string(o.Status)); err != nil {
		c.Log.Warn("cache order status", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Coordinator) publishIntent(o *orders.Order, card CardDetails) {
	intent := orders.PaymentIntentPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Amount:        o.Total(),
		PaymentMethod: o.PaymentMethod,
	}
	if o.PaymentMethod.IsCard() {
		intent.CardNumber = card.Number
		intent.CardHolderName = card.HolderName
		intent.ExpirationDate = card.ExpirationDate
		intent.CVV = card.CVV
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentIntent,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.Name,
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(intent),
	}
	if err := c.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env)); err != nil {
		// The order stays PENDING; an operator can re-trigger the intent.
		c.Log.Error("publish payment intent", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Coordinator) publishCreated(o *orders.Order) {
	if c.PublishCreated == nil {
		return
	}
	payload := orders.OrderCreatedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Items:   o.Items,
		Total:   o.Total(),
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.Name,
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(payload),
	}
	if err := c.PublishCreated(orders.PartitionKey(o.ID), kafkax.MustMarshal(env)); err != nil {
		c.Log.Error("publish order created", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Coordinator) notifyOrder(o *orders.Order, kind, tracking string) {
	if c.Notify == nil {
		return
	}
	title, message := notify.DeriveOrder(kind)
	c.Notify.Enqueue(orders.NotificationPayload{
		UserID:         o.UserID,
		OrderID:        o.ID,
		EventType:      kind,
		Title:          title,
		Message:        message,
		TrackingNumber: tracking,
	})
}

func kindForStatus(s orders.Status) string {
	switch s {
	case orders.StatusConfirmed:
		return notify.KindOrderConfirmed
	case orders.StatusProcessing:
		return notify.KindOrderProcessing
	case orders.StatusShipped:
		return notify.KindOrderShipped
	case orders.StatusDelivered:
		return notify.KindOrderDelivered
	case orders.StatusCancelled:
		return notify.KindOrderCancelled
	default:
		return ""
	}
}
