package notify

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/metrics"
	"github.com/ecomstack/fulfillment/internal/orders"
)

// Dispatcher is the notification outbox. Enqueue never blocks, never fails,
// and never reaches back into the caller: a full queue or a broken transport
// costs a notification, not a saga transition.
type Dispatcher struct {
	publish  func(key, value []byte) error
	producer string
	log      *zap.Logger
	queue    chan orders.NotificationPayload
	done     chan struct{}
}

func NewDispatcher(publish func(key, value []byte) error, producer string, buf int, log *zap.Logger) *Dispatcher {
	if buf <= 0 {
		buf = 256
	}
	return &Dispatcher{
		publish:  publish,
		producer: producer,
		log:      log,
		queue:    make(chan orders.NotificationPayload, buf),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go func() {
		for p := range d.queue {
			env := orders.Envelope{
				EventID:       uuid.NewString(),
				EventType:     orders.EventNotification,
				EventVersion:  1,
				OccurredAt:    time.Now().UTC(),
				Producer:      d.producer,
				CorrelationID: p.OrderID,
				Payload:       kafkax.MustMarshal(p),
			}
			if err := d.publish(orders.PartitionKey(p.OrderID), kafkax.MustMarshal(env)); err != nil {
				metrics.NotificationsDropped.Inc()
				d.log.Error("notification publish failed, dropping",
					zap.String("order_id", p.OrderID), zap.String("kind", p.EventType), zap.Error(err))
			}
		}
		close(d.done)
	}()
}

// Enqueue hands a notification to the outbox. Drops on overflow.
func (d *Dispatcher) Enqueue(p orders.NotificationPayload) {
	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case d.queue <- p:
	default:
		metrics.NotificationsDropped.Inc()
		d.log.Warn("notification outbox full, dropping",
			zap.String("order_id", p.OrderID), zap.String("kind", p.EventType))
	}
}

func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}
