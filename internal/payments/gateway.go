package payments

import (
	"math/rand"

	"github.com/ecomstack/fulfillment/internal/orders"
)

// Gateway simulates an external payment provider. Every method has its own
// success probability; callers must treat the outcome as intrinsically
// non-deterministic and never assume success.
type Gateway struct {
	rnd func() float64
}

// NewGateway builds a gateway with the given randomness source. Pass nil for
// the default; tests inject a stub to force outcomes.
func NewGateway(rnd func() float64) *Gateway {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Gateway{rnd: rnd}
}

// Process decides one intent. Card methods fail outright when any of the four
// card fields is missing.
func (g *Gateway) Process(intent orders.PaymentIntentPayload) bool {
	switch intent.PaymentMethod {
	case orders.MethodCreditCard, orders.MethodDebitCard:
		if intent.CardNumber == "" || intent.CardHolderName == "" ||
			intent.ExpirationDate == "" || intent.CVV == "" {
			return false
		}
		return g.rnd() < 0.95
	case orders.MethodPix:
		return g.rnd() < 0.98
	case orders.MethodBankTransfer:
		return g.rnd() < 0.90
	case orders.MethodBoleto:
		return g.rnd() < 0.85
	default:
		return false
	}
}

// Refund simulates a refund attempt.
func (g *Gateway) Refund(transactionID string) bool {
	return g.rnd() < 0.90
}
