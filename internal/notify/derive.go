package notify

import "fmt"

// Event kinds carried in order.notification messages. One transition emits
// exactly one kind.
const (
	KindOrderCreated    = "order_created"
	KindOrderConfirmed  = "order_confirmed"
	KindOrderProcessing = "order_processing"
	KindOrderShipped    = "order_shipped"
	KindOrderDelivered  = "order_delivered"
	KindOrderCancelled  = "order_cancelled"
	KindPaymentApproved = "payment_approved"
	KindPaymentFailed   = "payment_failed"
)

var orderTitles = map[string]string{
	KindOrderCreated:    "Order placed",
	KindOrderConfirmed:  "Order confirmed",
	KindOrderProcessing: "Order processing",
	KindOrderShipped:    "Order shipped",
	KindOrderDelivered:  "Order delivered",
	KindOrderCancelled:  "Order cancelled",
	KindPaymentApproved: "Payment approved",
	KindPaymentFailed:   "Payment rejected",
}

var orderMessages = map[string]string{
	KindOrderCreated:    "Your order has been placed",
	KindOrderConfirmed:  "Your order has been confirmed",
	KindOrderProcessing: "Your order is being processed",
	KindOrderShipped:    "Your order is on its way",
	KindOrderDelivered:  "Your order has been delivered",
	KindOrderCancelled:  "Your order has been cancelled",
	KindPaymentApproved: "Your payment was approved",
	KindPaymentFailed:   "Your payment was rejected. Try again or use another payment method",
}

// DeriveOrder maps a transition kind to its title and message. Unknown kinds
// fall back to a generic update so new producers never break the dispatcher.
func DeriveOrder(kind string) (title, message string) {
	title, ok := orderTitles[kind]
	if !ok {
		return "Order update", "Your order status has been updated"
	}
	return title, orderMessages[kind]
}

// DeriveCart maps a cart action to its title and message.
func DeriveCart(action, productID string, quantity int) (title, message string) {
	title = "Cart update"
	switch action {
	case "item_added":
		return title, fmt.Sprintf("Product %s was added to your cart (quantity: %d)", productID, quantity)
	case "item_removed":
		return title, fmt.Sprintf("Product %s was removed from your cart", productID)
	case "item_updated":
		return title, fmt.Sprintf("Product %s quantity was updated to %d", productID, quantity)
	case "cart_cleared":
		return title, "Your cart was emptied"
	default:
		return title, "Your cart was updated"
	}
}
