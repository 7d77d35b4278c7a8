package saga

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/products"
	"github.com/ecomstack/fulfillment/internal/stock"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) MarkOnce(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id], nil
}

type notifyRecorder struct {
	mu   sync.Mutex
	sent []orders.NotificationPayload
}

func (r *notifyRecorder) Enqueue(p orders.NotificationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
}

func (r *notifyRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, p := range r.sent {
		out[i] = p.EventType
	}
	return out
}

type fixture struct {
	coord     *Coordinator
	repo      *orders.MemoryRepo
	ledger    *stock.MemoryLedger
	notifier  *notifyRecorder
	published [][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: orders.NewMemoryRepo(),
		ledger: stock.NewMemoryLedger(map[string]int{
			"p1": 5,
			"p2": 3,
		}),
		notifier: &notifyRecorder{},
	}
	catalog := products.NewStaticClient(
		products.Product{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("5.00")},
		products.Product{ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("10.00")},
	)
	f.coord = &Coordinator{
		Orders:  f.repo,
		Ledger:  f.ledger,
		Catalog: catalog,
		Dedup:   &memDedup{},
		Notify:  f.notifier,
		Publish: func(_, value []byte) error {
			f.published = append(f.published, value)
			return nil
		},
		Name: "test-api",
		Log:  zap.NewNop(),
	}
	return f
}

func (f *fixture) createOrder(t *testing.T) *orders.Order {
	t.Helper()
	o, err := f.coord.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          "u1",
		DeliveryAddress: "1 Main St",
		PaymentMethod:   orders.MethodPix,
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func resultMessage(t *testing.T, orderID, status, txnID string) kafkago.Message {
	t.Helper()
	payload := orders.PaymentResultPayload{
		OrderID:       orderID,
		Status:        status,
		PaymentID:     uuid.NewString(),
		TransactionID: txnID,
		PaymentDate:   time.Now().UTC(),
	}
	env := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    orders.EventPaymentResult,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test-payments",
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Key: []byte(orderID), Value: kafkax.MustMarshal(env)}
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	if o.Status != orders.StatusPending {
		t.Fatalf("status = %s, want PENDING", o.Status)
	}
	if !o.Total().Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("total = %s, want 20.00", o.Total())
	}
	if got := f.ledger.Available("p1"); got != 3 {
		t.Fatalf("p1 available = %d, want 3", got)
	}
	if got := f.ledger.Available("p2"); got != 2 {
		t.Fatalf("p2 available = %d, want 2", got)
	}
	if len(f.published) != 1 {
		t.Fatalf("payment intents published = %d, want 1", len(f.published))
	}

	var env orders.Envelope
	if err := json.Unmarshal(f.published[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.EventType != orders.EventPaymentIntent {
		t.Fatalf("event type = %s", env.EventType)
	}
	intent, err := kafkax.UnwrapPayload[orders.PaymentIntentPayload](env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if intent.OrderID != o.ID || !intent.Amount.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("intent = %+v", intent)
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != "order_created" {
		t.Fatalf("notifications = %v, want [order_created]", kinds)
	}
}

func TestCreateOrderInsufficientStockAborts(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          "u1",
		DeliveryAddress: "1 Main St",
		PaymentMethod:   orders.MethodPix,
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 99},
		},
	})
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// The partial p1 reservation was handed back.
	if got := f.ledger.Available("p1"); got != 5 {
		t.Fatalf("p1 available = %d, want 5", got)
	}
	if len(f.published) != 0 {
		t.Fatal("payment intent published for rejected order")
	}
	if len(f.notifier.kinds()) != 0 {
		t.Fatal("notification sent for rejected order")
	}
	if list, _ := f.repo.ListByUser(context.Background(), "u1"); len(list) != 0 {
		t.Fatal("rejected order was persisted")
	}
}

func TestPaymentApprovedConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	if err := f.coord.HandlePaymentResult(context.Background(), resultMessage(t, o.ID, "COMPLETED", "tx1")); err != nil {
		t.Fatal(err)
	}

	got, _ := f.repo.Get(context.Background(), o.ID)
	if got.Status != orders.StatusConfirmed || got.PaymentReference != "tx1" {
		t.Fatalf("order = %s/%s, want CONFIRMED/tx1", got.Status, got.PaymentReference)
	}
	// Stock stays reserved on success.
	if f.ledger.Available("p1") != 3 {
		t.Fatalf("p1 available = %d, want 3", f.ledger.Available("p1"))
	}

	kinds := f.notifier.kinds()
	want := []string{"order_created", "payment_approved", "order_confirmed"}
	if len(kinds) != len(want) {
		t.Fatalf("notifications = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", kinds, want)
		}
	}
}

func TestPaymentStatusMatchingIsCaseInsensitive(t *testing.T) {
	for _, status := range []string{"completed", "Approved", "PAID", "success"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			o := f.createOrder(t)
			if err := f.coord.HandlePaymentResult(context.Background(), resultMessage(t, o.ID, status, "tx1")); err != nil {
				t.Fatal(err)
			}
			got, _ := f.repo.Get(context.Background(), o.ID)
			if got.Status != orders.StatusConfirmed {
				t.Fatalf("status %q not treated as success: order is %s", status, got.Status)
			}
		})
	}
}

func TestPaymentFailedCancelsAndFlagsStock(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	if err := f.coord.HandlePaymentResult(context.Background(), resultMessage(t, o.ID, "FAILED", "")); err != nil {
		t.Fatal(err)
	}

	got, _ := f.repo.Get(context.Background(), o.ID)
	if got.Status != orders.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	// Stock is not auto-released, only flagged.
	if f.ledger.Available("p1") != 3 {
		t.Fatalf("p1 available = %d, want 3 (stock must not auto-release)", f.ledger.Available("p1"))
	}
	if n := f.ledger.PendingReleaseCount(o.ID); n != 2 {
		t.Fatalf("pending-release reservations = %d, want 2", n)
	}

	kinds := f.notifier.kinds()
	want := []string{"order_created", "payment_failed", "order_cancelled"}
	if len(kinds) != len(want) {
		t.Fatalf("notifications = %v, want %v", kinds, want)
	}

	// Explicit compensation settles the flagged stock.
	n, err := f.coord.ReleaseStock(context.Background(), o.ID)
	if err != nil || n != 2 {
		t.Fatalf("ReleaseStock = %d, %v", n, err)
	}
	if f.ledger.Available("p1") != 5 || f.ledger.Available("p2") != 3 {
		t.Fatal("stock not restored after explicit release")
	}
}

func TestDuplicateResultIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	m := resultMessage(t, o.ID, "COMPLETED", "tx1")
	if err := f.coord.HandlePaymentResult(ctx, m); err != nil {
		t.Fatal(err)
	}
	// Same envelope redelivered.
	if err := f.coord.HandlePaymentResult(ctx, m); err != nil {
		t.Fatal(err)
	}
	// Same transaction under a fresh event id.
	if err := f.coord.HandlePaymentResult(ctx, resultMessage(t, o.ID, "COMPLETED", "tx1")); err != nil {
		t.Fatal(err)
	}

	got, _ := f.repo.Get(ctx, o.ID)
	if got.Status != orders.StatusConfirmed {
		t.Fatalf("status = %s", got.Status)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 3 { // order_created, payment_approved, order_confirmed exactly once
		t.Fatalf("notifications = %v, duplicates emitted side effects", kinds)
	}
}

// flakyRepo fails a configured number of Update calls before recovering.
type flakyRepo struct {
	orders.Repository
	updateFailures int
}

func (r *flakyRepo) Update(ctx context.Context, o *orders.Order) error {
	if r.updateFailures > 0 {
		r.updateFailures--
		return errors.New("store temporarily unavailable")
	}
	return r.Repository.Update(ctx, o)
}

func TestRedeliveryAfterStoreFaultAppliesResult(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	f.coord.Orders = &flakyRepo{Repository: f.repo, updateFailures: 1}

	m := resultMessage(t, o.ID, "COMPLETED", "tx1")
	if err := f.coord.HandlePaymentResult(ctx, m); err == nil {
		t.Fatal("expected a retryable error from the failing store")
	}

	// The store fault must not have consumed the event: the broker's
	// redelivery of the very same message has to land.
	if err := f.coord.HandlePaymentResult(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, _ := f.repo.Get(ctx, o.ID)
	if got.Status != orders.StatusConfirmed {
		t.Fatalf("status after redelivery = %s, want CONFIRMED", got.Status)
	}

	// A third delivery is now a plain duplicate.
	before := len(f.notifier.kinds())
	if err := f.coord.HandlePaymentResult(ctx, m); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.kinds()) != before {
		t.Fatal("duplicate after recovery emitted side effects")
	}
}

func TestResultForUnknownOrderIsDropped(t *testing.T) {
	f := newFixture(t)

	err := f.coord.HandlePaymentResult(context.Background(), resultMessage(t, "ghost", "COMPLETED", "tx1"))
	if !errors.Is(err, kafkax.ErrDropMessage) {
		t.Fatalf("err = %v, want ErrDropMessage", err)
	}
}

func TestUnknownStatusLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	if err := f.coord.HandlePaymentResult(context.Background(), resultMessage(t, o.ID, "REFUNDED", "tx1")); err != nil {
		t.Fatal(err)
	}
	got, _ := f.repo.Get(context.Background(), o.ID)
	if got.Status != orders.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
}

func TestMalformedResultIsDropped(t *testing.T) {
	f := newFixture(t)

	err := f.coord.HandlePaymentResult(context.Background(), kafkago.Message{Value: []byte("{not json")})
	if !errors.Is(err, kafkax.ErrDropMessage) {
		t.Fatalf("err = %v, want ErrDropMessage", err)
	}
}

func TestNoResultLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	got, _ := f.repo.Get(context.Background(), o.ID)
	if got.Status != orders.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	if f.ledger.Available("p1") != 3 {
		t.Fatal("reservation lost while awaiting payment result")
	}
}

func TestUpdateStatusValidatesTransitions(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusDelivered); !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("PENDING -> DELIVERED: err = %v", err)
	}

	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusProcessing); err != nil {
		t.Fatal(err)
	}

	// Same-status update is a silent no-op.
	before := len(f.notifier.kinds())
	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusProcessing); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.kinds()) != before {
		t.Fatal("no-op status update emitted a notification")
	}
}

func TestUpdateStatusCancelFlagsStock(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if n := f.ledger.PendingReleaseCount(o.ID); n != 2 {
		t.Fatalf("pending-release reservations = %d, want 2", n)
	}
}

func TestForceStatusBypassesTransitionTable(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	// CANCELLED is terminal for the state machine; the gated path refuses.
	if _, err := f.coord.UpdateStatus(ctx, o.ID, orders.StatusPending); !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("gated CANCELLED -> PENDING err = %v", err)
	}

	before := len(f.notifier.kinds())
	got, err := f.coord.ForceStatus(ctx, o.ID, orders.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orders.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	// Repairs bypass the saga: no notifications, no stock flagging.
	if len(f.notifier.kinds()) != before {
		t.Fatal("forced status emitted notifications")
	}

	stored, _ := f.repo.Get(ctx, o.ID)
	if stored.Status != orders.StatusPending {
		t.Fatalf("persisted status = %s", stored.Status)
	}
}

func TestSetTracking(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	got, err := f.coord.SetTracking(ctx, o.ID, "TRK-9")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orders.StatusShipped || got.TrackingNumber != "TRK-9" {
		t.Fatalf("order = %s/%s", got.Status, got.TrackingNumber)
	}

	kinds := f.notifier.kinds()
	last := kinds[len(kinds)-1]
	if last != "order_shipped" {
		t.Fatalf("last notification = %s, want order_shipped", last)
	}
}

func TestDeleteOrderReleasesStock(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	ctx := context.Background()

	if err := f.coord.DeleteOrder(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Get(ctx, o.ID); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("order still present: %v", err)
	}
	if f.ledger.Available("p1") != 5 || f.ledger.Available("p2") != 3 {
		t.Fatal("stock not released on delete")
	}
}
