package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated  = "OrderCreated"
	EventPaymentIntent = "PaymentIntent"
	EventPaymentResult = "PaymentResult"
	EventNotification  = "Notification"
	EventCartChanged   = "CartChanged"
)

// Envelope wraps every message on the bus. CorrelationID is the order id
// where one exists.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// PaymentIntentPayload asks the payment processor to charge an order.
type PaymentIntentPayload struct {
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`

	// Card fields travel with the intent for card methods only.
	CardNumber     string `json:"cardNumber,omitempty"`
	CardHolderName string `json:"cardHolderName,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	CVV            string `json:"cvv,omitempty"`
}

// PaymentResultPayload is the processor's outcome for one intent. Status is
// an open string set; consumers must match case-insensitively and tolerate
// values they do not know.
type PaymentResultPayload struct {
	OrderID       string          `json:"orderId"`
	Status        string          `json:"status"`
	PaymentID     string          `json:"paymentId"`
	TransactionID string          `json:"transactionId,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentDate   time.Time       `json:"paymentDate"`
}

// NotificationPayload describes one human-visible transition.
type NotificationPayload struct {
	UserID         string `json:"userId"`
	OrderID        string `json:"orderId"`
	EventType      string `json:"eventType"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// OrderCreatedPayload mirrors the order at creation time for downstream
// consumers that do not read the order store.
type OrderCreatedPayload struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Items   []Item          `json:"items"`
	Total   decimal.Decimal `json:"total"`
}
