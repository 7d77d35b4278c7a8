package payments

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ecomstack/fulfillment/internal/orders"
)

func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

func cardIntent() orders.PaymentIntentPayload {
	return orders.PaymentIntentPayload{
		OrderID:        "o1",
		UserID:         "u1",
		Amount:         decimal.RequireFromString("20.00"),
		PaymentMethod:  orders.MethodCreditCard,
		CardNumber:     "4111111111111111",
		CardHolderName: "J Doe",
		ExpirationDate: "12/30",
		CVV:            "123",
	}
}

func TestProcessCardRequiresAllFields(t *testing.T) {
	missing := []func(*orders.PaymentIntentPayload){
		func(p *orders.PaymentIntentPayload) { p.CardNumber = "" },
		func(p *orders.PaymentIntentPayload) { p.CardHolderName = "" },
		func(p *orders.PaymentIntentPayload) { p.ExpirationDate = "" },
		func(p *orders.PaymentIntentPayload) { p.CVV = "" },
	}
	g := NewGateway(fixedRand(0.0)) // would always succeed past validation
	for i, blank := range missing {
		intent := cardIntent()
		blank(&intent)
		if g.Process(intent) {
			t.Errorf("case %d: card intent with missing field approved", i)
		}
	}
	if !g.Process(cardIntent()) {
		t.Fatal("complete card intent rejected at rnd=0")
	}
}

func TestProcessProbabilityThresholds(t *testing.T) {
	tests := []struct {
		method orders.PaymentMethod
		under  float64 // just below the threshold: approve
		over   float64 // at or above: reject
	}{
		{orders.MethodCreditCard, 0.94, 0.95},
		{orders.MethodDebitCard, 0.94, 0.95},
		{orders.MethodPix, 0.97, 0.98},
		{orders.MethodBankTransfer, 0.89, 0.90},
		{orders.MethodBoleto, 0.84, 0.85},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			intent := cardIntent()
			intent.PaymentMethod = tt.method

			if !NewGateway(fixedRand(tt.under)).Process(intent) {
				t.Errorf("rnd=%v rejected", tt.under)
			}
			if NewGateway(fixedRand(tt.over)).Process(intent) {
				t.Errorf("rnd=%v approved", tt.over)
			}
		})
	}
}

func TestProcessUnknownMethodFails(t *testing.T) {
	intent := cardIntent()
	intent.PaymentMethod = "WIRE_PIGEON"
	if NewGateway(fixedRand(0.0)).Process(intent) {
		t.Fatal("unknown method approved")
	}
}

func TestSetStatusMonotonic(t *testing.T) {
	p := &Payment{Status: StatusPending}

	steps := []Status{StatusProcessing, StatusCompleted}
	for _, s := range steps {
		if err := p.SetStatus(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	if err := p.SetStatus(StatusPending); !errors.Is(err, ErrStatusRegressed) {
		t.Fatalf("regression err = %v", err)
	}
	if err := p.SetStatus(StatusProcessing); !errors.Is(err, ErrStatusRegressed) {
		t.Fatalf("regression err = %v", err)
	}
}

func TestRefundOnlyFromCompleted(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusProcessing, StatusFailed} {
		p := &Payment{Status: from}
		if err := p.SetStatus(StatusRefunded); !errors.Is(err, ErrNotRefundable) {
			t.Errorf("refund from %s: err = %v", from, err)
		}
	}

	p := &Payment{Status: StatusCompleted}
	if err := p.SetStatus(StatusRefunded); err != nil {
		t.Fatal(err)
	}
	// Refund is final; a second refund has nothing to act on.
	if err := p.SetStatus(StatusRefunded); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("double refund err = %v", err)
	}
}
