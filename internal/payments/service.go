package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/metrics"
	"github.com/ecomstack/fulfillment/internal/orders"
)

// Index is a fast-path lookup from order id to payment id, ahead of the
// store query. Satisfied by redisx.PaymentIndex. Optional.
type Index interface {
	Get(ctx context.Context, orderID string) (string, error)
	Set(ctx context.Context, orderID, paymentID string) error
}

// Service is the payment processor: an at-least-once consumer of
// payment.intent that owns Payment records and publishes payment.result.
type Service struct {
	Repo    Repository
	Gateway *Gateway
	Index   Index
	Publish func(key, value []byte) error
	Name    string
	Log     *zap.Logger
}

// HandleIntent is the payment.intent consumer handler. A replayed intent for
// an order that already has a payment re-publishes the stored outcome instead
// of charging twice.
func (s *Service) HandleIntent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentIntent, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}
	if env.EventType != orders.EventPaymentIntent {
		return nil
	}

	intent, err := kafkax.UnwrapPayload[orders.PaymentIntentPayload](env.Payload)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentIntent, "dropped").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrDropMessage, err)
	}

	if existing, err := s.lookupExisting(ctx, intent.OrderID); err != nil {
		return err
	} else if existing != nil {
		metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentIntent, "duplicate").Inc()
		s.Log.Info("intent replay, re-publishing stored outcome",
			zap.String("order_id", intent.OrderID), zap.String("status", string(existing.Status)))
		s.publishResult(existing)
		return nil
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:          uuid.NewString(),
		OrderID:     intent.OrderID,
		UserID:      intent.UserID,
		Amount:      intent.Amount,
		Method:      intent.PaymentMethod,
		Status:      StatusPending,
		PaymentDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, p); err != nil {
		return err
	}
	if s.Index != nil {
		if err := s.Index.Set(ctx, p.OrderID, p.ID); err != nil {
			s.Log.Warn("index payment", zap.String("order_id", p.OrderID), zap.Error(err))
		}
	}
	_ = p.SetStatus(StatusProcessing)

	if s.Gateway.Process(intent) {
		_ = p.SetStatus(StatusCompleted)
		p.TransactionID = uuid.NewString()
	} else {
		_ = p.SetStatus(StatusFailed)
		p.ErrorMessage = "payment processing failed"
	}
	if err := s.Repo.Update(ctx, p); err != nil {
		return err
	}

	metrics.PaymentOutcomes.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	metrics.MessagesConsumed.WithLabelValues(orders.TopicPaymentIntent, "applied").Inc()
	s.Log.Info("payment processed",
		zap.String("order_id", p.OrderID), zap.String("payment_id", p.ID), zap.String("status", string(p.Status)))

	s.publishResult(p)
	return nil
}

// lookupExisting resolves a prior payment for the order, trying the index
// first and falling back to the store. Returns nil when none exists.
func (s *Service) lookupExisting(ctx context.Context, orderID string) (*Payment, error) {
	if s.Index != nil {
		if id, err := s.Index.Get(ctx, orderID); err != nil {
			s.Log.Warn("payment index lookup", zap.String("order_id", orderID), zap.Error(err))
		} else if id != "" {
			if p, err := s.Repo.Get(ctx, id); err == nil {
				return p, nil
			}
			// A stale index entry falls through to the store query.
		}
	}
	p, err := s.Repo.GetByOrder(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Refund moves a COMPLETED payment to REFUNDED, exactly once, and publishes
// the outcome. Stock settlement for refunds is the coordinator's business.
func (s *Service) Refund(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := s.Repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !s.Gateway.Refund(p.TransactionID) {
		return nil, fmt.Errorf("refund declined for payment %s", paymentID)
	}
	if err := p.SetStatus(StatusRefunded); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, p); err != nil {
		return nil, err
	}
	metrics.PaymentOutcomes.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	s.publishResult(p)
	return p, nil
}

func (s *Service) publishResult(p *Payment) {
	result := orders.PaymentResultPayload{
		OrderID:       p.OrderID,
		Status:        string(p.Status),
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		ErrorMessage:  p.ErrorMessage,
		Amount:        p.Amount,
		PaymentMethod: string(p.Method),
		PaymentDate:   p.PaymentDate,
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentResult,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: p.OrderID,
		Payload:       kafkax.MustMarshal(result),
	}
	if err := s.Publish(orders.PartitionKey(p.OrderID), kafkax.MustMarshal(env)); err != nil {
		// The result will be re-published on intent redelivery.
		s.Log.Error("publish payment result", zap.String("order_id", p.OrderID), zap.Error(err))
	}
}
