package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/orders"
)

func TestDispatcherPublishesEnvelopes(t *testing.T) {
	var mu sync.Mutex
	var published [][]byte
	d := NewDispatcher(func(_, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, value)
		return nil
	}, "test-api", 8, zap.NewNop())
	d.Start()

	d.Enqueue(orders.NotificationPayload{UserID: "u1", OrderID: "o1", EventType: KindOrderCreated})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 {
		t.Fatalf("published = %d, want 1", len(published))
	}
	var env orders.Envelope
	if err := json.Unmarshal(published[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.EventType != orders.EventNotification || env.EventID == "" {
		t.Fatalf("envelope = %+v", env)
	}
	p, err := decodePayload(env)
	if err != nil {
		t.Fatal(err)
	}
	if p.Timestamp == "" {
		t.Fatal("timestamp not stamped on enqueue")
	}
}

func decodePayload(env orders.Envelope) (orders.NotificationPayload, error) {
	var p orders.NotificationPayload
	return p, json.Unmarshal(env.Payload, &p)
}

func TestDispatcherSurvivesPublishFailure(t *testing.T) {
	d := NewDispatcher(func(_, _ []byte) error {
		return errors.New("broker down")
	}, "test-api", 8, zap.NewNop())
	d.Start()

	// Must not panic or block the caller.
	for i := 0; i < 4; i++ {
		d.Enqueue(orders.NotificationPayload{UserID: "u1", OrderID: "o1", EventType: KindOrderCreated})
	}
	d.Close()
}

func TestDispatcherDropsOnOverflow(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(func(_, _ []byte) error {
		<-block
		return nil
	}, "test-api", 1, zap.NewNop())
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Enqueue(orders.NotificationPayload{UserID: "u1", OrderID: "o1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full outbox")
	}
	close(block)
	d.Close()
}
