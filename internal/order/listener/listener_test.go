package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/memstore"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/segmentio/kafka-go"
)

type fakeOrderUseCase struct {
	mu        sync.Mutex
	calls     int
	reserved  *dto.ReserveOrderInput
	cancelled string
	deducted  []dto.OrderItem
	inTx      bool
	system    bool
	errs      []error // returned one per call, then nil
}

func (f *fakeOrderUseCase) ValidateStockAvailability(context.Context, []dto.OrderItem) error {
	return nil
}

func (f *fakeOrderUseCase) DeductInventory(ctx context.Context, items []dto.OrderItem) ([]dto.ItemAllocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deducted = items
	return nil, f.record(ctx)
}

func (f *fakeOrderUseCase) RestoreInventory(context.Context, string, []dto.OrderItem) error {
	return nil
}

func (f *fakeOrderUseCase) ReserveOrder(ctx context.Context, input *dto.ReserveOrderInput) ([]model.StockReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = input
	return nil, f.record(ctx)
}

func (f *fakeOrderUseCase) CancelOrder(ctx context.Context, orderID string) (*dto.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = orderID
	return &dto.CancelResult{}, f.record(ctx)
}

func (f *fakeOrderUseCase) record(ctx context.Context) error {
	f.calls++
	a, ok := auth.ActorFrom(ctx)
	f.system = ok && a.IsSystem
	f.inTx = txn.InTx(ctx)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeOrderUseCase) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func encode(t *testing.T, eventID, eventType string, payload OrderPayload) []byte {
	t.Helper()
	b, err := json.Marshal(OrderEvent{EventID: eventID, EventType: eventType, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newListener(consumer Consumer, uc *fakeOrderUseCase) *OrderListener {
	store := memstore.New()
	l := NewOrderListener(consumer, uc, store.Events(), store, logger.NewNop())
	l.backoff = time.Millisecond
	return l
}

func TestOrderPlacedReservesLines(t *testing.T) {
	uc := &fakeOrderUseCase{}
	l := newListener(nil, uc)

	err := l.processMessage(context.Background(), encode(t, "e1", EventOrderPlaced, OrderPayload{
		ID:          "o1",
		HoldMinutes: 30,
		Items: []OrderItemPayload{
			{OrderDetailID: "d1", VariantID: "v1", Quantity: 2},
			{OrderDetailID: "d2", VariantID: "v2", Quantity: 1},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if uc.reserved == nil {
		t.Fatal("ReserveOrder was not called")
	}
	if uc.reserved.OrderID != "o1" || len(uc.reserved.Lines) != 2 || uc.reserved.TTL != 30*time.Minute {
		t.Errorf("unexpected input %+v", uc.reserved)
	}
	if uc.reserved.Lines[1].OrderDetailID != "d2" {
		t.Errorf("line mapping lost the detail id: %+v", uc.reserved.Lines)
	}
	if !uc.system {
		t.Error("events must run as the system actor")
	}
	if !uc.inTx {
		t.Error("events must be applied inside a transaction")
	}
}

func TestOrderCancelled(t *testing.T) {
	uc := &fakeOrderUseCase{}
	l := newListener(nil, uc)

	if err := l.processMessage(context.Background(), encode(t, "e2", EventOrderCancelled, OrderPayload{ID: "o7"})); err != nil {
		t.Fatal(err)
	}
	if uc.cancelled != "o7" {
		t.Fatalf("expected CancelOrder(o7), got %q", uc.cancelled)
	}
}

func TestOfflineOrderDeductsInsideTransaction(t *testing.T) {
	boom := errors.New("boom")
	uc := &fakeOrderUseCase{errs: []error{boom}}
	l := newListener(nil, uc)

	err := l.processMessage(context.Background(), encode(t, "e3", EventOfflineOrderCompleted, OrderPayload{
		ID:    "o2",
		Items: []OrderItemPayload{{VariantID: "v1", Quantity: 3}},
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the deduction error, got %v", err)
	}
	if len(uc.deducted) != 1 || uc.deducted[0].Quantity != 3 {
		t.Fatalf("unexpected deduction %+v", uc.deducted)
	}
	if !uc.inTx {
		t.Error("offline deduction must run inside a transaction")
	}
}

func TestMalformedAndUnknownEventsAreSkipped(t *testing.T) {
	uc := &fakeOrderUseCase{}
	l := newListener(nil, uc)

	if err := l.processMessage(context.Background(), []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := l.processMessage(context.Background(), encode(t, "e4", "OrderShipped", OrderPayload{ID: "o3"})); err != nil {
		t.Fatal(err)
	}
	if uc.callCount() != 0 {
		t.Error("nothing should have been dispatched")
	}
}

func TestRedeliveredEventAppliesOnce(t *testing.T) {
	uc := &fakeOrderUseCase{}
	l := newListener(nil, uc)
	msg := encode(t, "e5", EventOfflineOrderCompleted, OrderPayload{
		ID:    "o5",
		Items: []OrderItemPayload{{VariantID: "v1", Quantity: 1}},
	})

	for i := 0; i < 2; i++ {
		if err := l.processMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	if uc.callCount() != 1 {
		t.Fatalf("expected one deduction, got %d", uc.callCount())
	}
}

func TestFailedEventIsNotMarkedApplied(t *testing.T) {
	uc := &fakeOrderUseCase{errs: []error{errors.New("connection reset")}}
	l := newListener(nil, uc)
	msg := encode(t, "e6", EventOrderCancelled, OrderPayload{ID: "o6"})

	if err := l.processMessage(context.Background(), msg); err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	if err := l.processMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if uc.callCount() != 2 {
		t.Fatalf("the failed attempt must not count as applied, got %d calls", uc.callCount())
	}
}

type scriptedConsumer struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (c *scriptedConsumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	if len(c.msgs) == 0 {
		c.mu.Unlock()
		c.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := c.msgs[0]
	c.msgs = c.msgs[1:]
	c.mu.Unlock()
	return m, nil
}

func (c *scriptedConsumer) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.committed = append(c.committed, m.Offset)
	}
	return nil
}

func (c *scriptedConsumer) commits() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.committed...)
}

func run(ctx context.Context, t *testing.T, l *OrderListener) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestStartCommitsAfterApplying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uc := &fakeOrderUseCase{}
	consumer := &scriptedConsumer{
		msgs: []kafka.Message{
			{Offset: 1, Value: encode(t, "e7", EventOrderCancelled, OrderPayload{ID: "o9"})},
			{Offset: 2, Value: []byte("{not json")},
		},
		cancel: cancel,
	}
	run(ctx, t, newListener(consumer, uc))

	if uc.cancelled != "o9" {
		t.Errorf("expected o9 to be cancelled, got %q", uc.cancelled)
	}
	if got := consumer.commits(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected offsets 1 and 2 committed, got %v", got)
	}
}

func TestStartRetriesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uc := &fakeOrderUseCase{errs: []error{
		errors.New("connection reset"),
		apperr.New(apperr.ConcurrencyConflict, "version changed"),
	}}
	consumer := &scriptedConsumer{
		msgs: []kafka.Message{{Offset: 3, Value: encode(t, "e8", EventOfflineOrderCompleted, OrderPayload{
			ID:    "o8",
			Items: []OrderItemPayload{{VariantID: "v1", Quantity: 2}},
		})}},
		cancel: cancel,
	}
	run(ctx, t, newListener(consumer, uc))

	if uc.callCount() != 3 {
		t.Fatalf("expected two retries, got %d calls", uc.callCount())
	}
	if got := consumer.commits(); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected offset 3 committed once applied, got %v", got)
	}
}

func TestStartCommitsBusinessRejections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uc := &fakeOrderUseCase{errs: []error{apperr.New(apperr.InsufficientStock, "not enough stock")}}
	consumer := &scriptedConsumer{
		msgs:   []kafka.Message{{Offset: 4, Value: encode(t, "e9", EventOrderPlaced, OrderPayload{ID: "o4"})}},
		cancel: cancel,
	}
	run(ctx, t, newListener(consumer, uc))

	if uc.callCount() != 1 {
		t.Errorf("a rejected order must not be retried, got %d calls", uc.callCount())
	}
	if got := consumer.commits(); len(got) != 1 {
		t.Errorf("expected the rejected event committed, got %v", got)
	}
}

func TestStartLeavesFailingEventUncommittedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errs := make([]error, 1000)
	for i := range errs {
		errs[i] = errors.New("database is down")
	}
	uc := &fakeOrderUseCase{errs: errs}
	consumer := &scriptedConsumer{
		msgs:   []kafka.Message{{Offset: 5, Value: encode(t, "e10", EventOrderCancelled, OrderPayload{ID: "o10"})}},
		cancel: cancel,
	}
	l := newListener(consumer, uc)

	go func() {
		for uc.callCount() < 3 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	run(ctx, t, l)

	if got := consumer.commits(); len(got) != 0 {
		t.Errorf("an unapplied event must stay uncommitted, got %v", got)
	}
}
