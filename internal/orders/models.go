package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("orders: not found")
	ErrEmptyItems        = errors.New("orders: order requires at least one item")
	ErrInvalidQty        = errors.New("orders: item quantity must be at least 1")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodDebitCard    PaymentMethod = "DEBIT_CARD"
	MethodPix          PaymentMethod = "PIX"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodBoleto       PaymentMethod = "BOLETO"
)

// IsCard reports whether the method needs card fields to be validated.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

type Item struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Subtotal is always derived, never stored on its own.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	Items            []Item        `json:"items"`
	DeliveryAddress  string        `json:"delivery_address"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	TrackingNumber   string        `json:"tracking_number,omitempty"`
	Status           Status        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// New builds a PENDING order. Item prices must already be resolved.
func New(id, userID, address string, method PaymentMethod, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, ErrInvalidQty
		}
	}
	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           items,
		DeliveryAddress: address,
		PaymentMethod:   method,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Total is the sum of item subtotals, recomputed on every call.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ApplyPaymentApproved moves the order to CONFIRMED and records the
// transaction id. Re-applying the same transaction is a no-op: changed is
// false and no side effects should fire.
func (o *Order) ApplyPaymentApproved(txnID string) (changed bool, err error) {
	if o.Status == StatusConfirmed && o.PaymentReference == txnID {
		return false, nil
	}
	if o.Status.IsTerminal() {
		return false, ErrInvalidTransition
	}
	o.Status = StatusConfirmed
	o.PaymentReference = txnID
	o.touch()
	return true, nil
}

// ApplyPaymentRejected moves the order to CANCELLED. Already-cancelled orders
// absorb the replay silently.
func (o *Order) ApplyPaymentRejected() (changed bool, err error) {
	if o.Status == StatusCancelled {
		return false, nil
	}
	if o.Status.IsTerminal() {
		return false, ErrInvalidTransition
	}
	o.Status = StatusCancelled
	o.touch()
	return true, nil
}

// SetTracking records the tracking code and moves the order to SHIPPED.
func (o *Order) SetTracking(code string) (changed bool, err error) {
	if o.Status == StatusShipped && o.TrackingNumber == code {
		return false, nil
	}
	if o.Status.IsTerminal() {
		return false, ErrInvalidTransition
	}
	o.Status = StatusShipped
	o.TrackingNumber = code
	o.touch()
	return true, nil
}

// AdminSetStatus is the operator escape hatch: any status, no transition
// table, no saga side effects.
func (o *Order) AdminSetStatus(s Status) {
	o.Status = s
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
