package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PaymentIndex maps an order id to its payment record id so intent replays
// resolve without a store round trip. Redis is a hint here; the payments
// table stays the source of truth.
type PaymentIndex struct {
	rdb *redis.Client
}

func NewPaymentIndex(rdb *redis.Client) *PaymentIndex {
	return &PaymentIndex{rdb: rdb}
}

// Get returns the indexed payment id, or "" on a miss.
func (i *PaymentIndex) Get(ctx context.Context, orderID string) (string, error) {
	v, err := i.rdb.Get(ctx, fmt.Sprintf(KeyPaymentForOrder, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (i *PaymentIndex) Set(ctx context.Context, orderID, paymentID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyPaymentForOrder, orderID), paymentID, TTLPayment).Err()
}
