package orders

const (
	TopicOrderCreated  = "order.created"
	TopicPaymentIntent = "payment.intent"
	TopicPaymentResult = "payment.result"
	TopicNotification  = "order.notification"
	TopicCartEvent     = "cart.event"
)

// PartitionKey keys every event of one order to the same partition. Ordering
// across different topics is still not guaranteed and must not be assumed.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
