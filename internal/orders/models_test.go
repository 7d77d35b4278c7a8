package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testItems() []Item {
	return []Item{
		{ProductID: "p1", ProductName: "Widget", Quantity: 2, UnitPrice: dec("5.00")},
		{ProductID: "p2", ProductName: "Gadget", Quantity: 1, UnitPrice: dec("10.00")},
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr error
	}{
		{"no items", nil, ErrEmptyItems},
		{"zero quantity", []Item{{ProductID: "p1", Quantity: 0, UnitPrice: dec("1.00")}}, ErrInvalidQty},
		{"negative quantity", []Item{{ProductID: "p1", Quantity: -3, UnitPrice: dec("1.00")}}, ErrInvalidQty},
		{"valid", testItems(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New("o1", "u1", "addr", MethodPix, tt.items)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && o.Status != StatusPending {
				t.Fatalf("new order status = %s, want %s", o.Status, StatusPending)
			}
		})
	}
}

func TestTotalIsDerived(t *testing.T) {
	o, err := New("o1", "u1", "addr", MethodPix, testItems())
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Total(); !got.Equal(dec("20.00")) {
		t.Fatalf("Total() = %s, want 20.00", got)
	}

	o.Items[0].Quantity = 3
	if got := o.Total(); !got.Equal(dec("25.00")) {
		t.Fatalf("Total() after item change = %s, want 25.00", got)
	}
}

func TestApplyPaymentApproved(t *testing.T) {
	o, _ := New("o1", "u1", "addr", MethodPix, testItems())

	changed, err := o.ApplyPaymentApproved("tx1")
	if err != nil || !changed {
		t.Fatalf("first apply: changed=%v err=%v", changed, err)
	}
	if o.Status != StatusConfirmed || o.PaymentReference != "tx1" {
		t.Fatalf("order = %s/%s, want CONFIRMED/tx1", o.Status, o.PaymentReference)
	}

	// Replay of the same transaction is absorbed silently.
	changed, err = o.ApplyPaymentApproved("tx1")
	if err != nil || changed {
		t.Fatalf("replay: changed=%v err=%v, want false/nil", changed, err)
	}
}

func TestApplyPaymentApprovedOnTerminalOrder(t *testing.T) {
	o, _ := New("o1", "u1", "addr", MethodPix, testItems())
	o.AdminSetStatus(StatusCancelled)

	if _, err := o.ApplyPaymentApproved("tx1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if o.Status != StatusCancelled {
		t.Fatalf("terminal order mutated to %s", o.Status)
	}
}

func TestApplyPaymentRejected(t *testing.T) {
	o, _ := New("o1", "u1", "addr", MethodBoleto, testItems())

	changed, err := o.ApplyPaymentRejected()
	if err != nil || !changed {
		t.Fatalf("first reject: changed=%v err=%v", changed, err)
	}
	if o.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", o.Status)
	}

	changed, err = o.ApplyPaymentRejected()
	if err != nil || changed {
		t.Fatalf("replay: changed=%v err=%v, want false/nil", changed, err)
	}
}

func TestSetTracking(t *testing.T) {
	o, _ := New("o1", "u1", "addr", MethodPix, testItems())
	o.AdminSetStatus(StatusConfirmed)

	changed, err := o.SetTracking("TRK-1")
	if err != nil || !changed {
		t.Fatalf("set tracking: changed=%v err=%v", changed, err)
	}
	if o.Status != StatusShipped || o.TrackingNumber != "TRK-1" {
		t.Fatalf("order = %s/%s", o.Status, o.TrackingNumber)
	}

	changed, err = o.SetTracking("TRK-1")
	if err != nil || changed {
		t.Fatalf("same code replay: changed=%v err=%v", changed, err)
	}

	o.AdminSetStatus(StatusDelivered)
	if _, err := o.SetTracking("TRK-2"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("tracking on delivered order: err = %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusDelivered, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusReturned, true},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusReturned, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPending:    false,
		StatusConfirmed:  false,
		StatusProcessing: false,
		StatusShipped:    false,
		StatusDelivered:  true,
		StatusCancelled:  true,
		StatusReturned:   true,
	} {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}
