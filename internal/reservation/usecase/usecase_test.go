package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/publisher"
	"github.com/fekuna/omnipos-inventory-service/internal/memstore"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func batch(id, code string, expiry time.Time, qty int) model.Batch {
	return model.Batch{
		ID:                id,
		BatchCode:         code,
		ManufactureDate:   expiry.AddDate(-3, 0, 0),
		ExpiryDate:        expiry,
		ImportQuantity:    qty,
		RemainingQuantity: qty,
		CreatedAt:         now.Add(-24 * time.Hour),
	}
}

type fixture struct {
	uc     reservation.UseCase
	store  *memstore.Store
	locker *cache.LocalLocker
}

func setup(t *testing.T, batches ...model.Batch) *fixture {
	t.Helper()
	store := memstore.New()
	store.Inventory().Seed("v1", 0, batches...)

	locker := cache.NewLocalLocker(3, time.Millisecond)
	uc := NewReservationUseCase(store.Reservations(), store.Inventory(), locker, store,
		publisher.Nop{}, logger.NewNop(),
		WithClock(func() time.Time { return now }),
	)
	return &fixture{uc: uc, store: store, locker: locker}
}

func (f *fixture) reserve(orderID, detailID string, qty int) ([]model.StockReservation, error) {
	return f.uc.Reserve(context.Background(), &dto.ReserveInput{
		VariantID:     "v1",
		OrderID:       orderID,
		OrderDetailID: detailID,
		Quantity:      qty,
		TTL:           15 * time.Minute,
	})
}

func (f *fixture) checkNoOversell(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	inv, _ := f.store.Inventory().Get(ctx, "v1")
	held, _ := f.store.Reservations().SumOutstandingByBatch(ctx, "v1")
	for _, b := range inv.Batches {
		if held[b.ID] > b.RemainingQuantity {
			t.Errorf("batch %s: %d held > %d remaining", b.BatchCode, held[b.ID], b.RemainingQuantity)
		}
	}
	if err := inv.CheckInvariant(); err != nil {
		t.Error(err)
	}
}

func TestReserveFEFODeterminism(t *testing.T) {
	f := setup(t,
		batch("b2", "B2", day(2025, 2, 1), 5),
		batch("b1", "B1", day(2025, 1, 1), 5),
	)

	rows, err := f.reserve("o1", "d1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(rows))
	}
	if rows[0].BatchID != "b1" || rows[0].ReservedQuantity != 5 ||
		rows[1].BatchID != "b2" || rows[1].ReservedQuantity != 2 {
		t.Fatalf("unexpected allocation %+v", rows)
	}
	for _, r := range rows {
		if r.Status != model.ReservationReserved || !r.ExpiresAt.Equal(now.Add(15*time.Minute)) {
			t.Errorf("unexpected reservation %+v", r)
		}
	}

	// Reserving does not touch physical stock.
	stock, _ := f.store.Inventory().GetStock(context.Background(), "v1")
	if stock.TotalQuantity != 10 {
		t.Errorf("reserve changed stock to %d", stock.TotalQuantity)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	f := setup(t,
		batch("b1", "B1", day(2025, 1, 1), 5),
		batch("b2", "B2", day(2025, 2, 1), 5),
	)

	_, err := f.reserve("o1", "d1", 12)
	if !apperr.Is(err, apperr.InsufficientStock) {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}
	rows, _ := f.uc.ListByOrder(context.Background(), "o1")
	if len(rows) != 0 {
		t.Fatalf("expected no reservation rows, got %d", len(rows))
	}
}

func TestReserveCountsOutstandingHolds(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))

	if _, err := f.reserve("o1", "d1", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reserve("o2", "d2", 3); !apperr.Is(err, apperr.InsufficientStock) {
		t.Fatalf("only 2 units are free, got %v", err)
	}
	if _, err := f.reserve("o2", "d2", 2); err != nil {
		t.Fatal(err)
	}
	f.checkNoOversell(t)
}

func TestReserveSkipsExpiredBatches(t *testing.T) {
	f := setup(t,
		batch("old", "OLD", day(2024, 5, 1), 5),
		batch("b1", "B1", day(2025, 1, 1), 2),
	)

	if _, err := f.reserve("o1", "d1", 3); !apperr.Is(err, apperr.InsufficientStock) {
		t.Fatalf("expired batch must not be reservable, got %v", err)
	}
}

func TestReserveExcludesBatches(t *testing.T) {
	f := setup(t,
		batch("b1", "B1", day(2025, 1, 1), 5),
		batch("b2", "B2", day(2025, 2, 1), 5),
	)

	rows, err := f.uc.Reserve(context.Background(), &dto.ReserveInput{
		VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 3,
		ExcludeBatchIDs: []string{"b1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BatchID != "b2" {
		t.Fatalf("expected allocation from B2 only, got %+v", rows)
	}
	if !rows[0].ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("zero TTL should use the default window, got %v", rows[0].ExpiresAt)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))

	if _, err := f.reserve("o1", "d1", 0); !apperr.Is(err, apperr.InvalidArgument) {
		t.Errorf("expected InvalidArgument for zero quantity, got %v", err)
	}
	if _, err := f.reserve("", "d1", 1); !apperr.Is(err, apperr.InvalidArgument) {
		t.Errorf("expected InvalidArgument for missing order, got %v", err)
	}
	_, err := f.uc.Reserve(context.Background(), &dto.ReserveInput{
		VariantID: "nope", OrderID: "o1", OrderDetailID: "d1", Quantity: 1,
	})
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("expected NotFound for unknown variant, got %v", err)
	}
}

func TestReserveRecordsActor(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := auth.WithActor(context.Background(), auth.Actor{UserID: "staff-7"})

	rows, err := f.uc.Reserve(ctx, &dto.ReserveInput{VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].CreatedBy == nil || *rows[0].CreatedBy != "staff-7" {
		t.Errorf("expected created_by staff-7, got %v", rows[0].CreatedBy)
	}
}

func TestReserveQueuesOnRowLockWhenGateIsBusy(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))

	held, err := f.locker.Obtain(context.Background(), "lock:stock:v1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release(context.Background())

	rows, err := f.reserve("o1", "d1", 2)
	if err != nil {
		t.Fatalf("a busy gate must not reject the reservation, got %v", err)
	}
	if len(rows) != 1 || rows[0].ReservedQuantity != 2 {
		t.Fatalf("unexpected holds %+v", rows)
	}
	f.checkNoOversell(t)
}

func TestReserveCancelledWhileWaitingOnGate(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))

	held, err := f.locker.Obtain(context.Background(), "lock:stock:v1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.uc.Reserve(ctx, &dto.ReserveInput{VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReserveReuseExistingHoldsOnce(t *testing.T) {
	f := setup(t,
		batch("b1", "B1", day(2025, 1, 1), 3),
		batch("b2", "B2", day(2025, 2, 1), 5),
	)
	ctx := context.Background()
	input := &dto.ReserveInput{VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 4, ReuseExisting: true}

	first, err := f.uc.Reserve(ctx, input)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.uc.Reserve(ctx, input)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected the same two holds, got %d then %d", len(first), len(second))
	}
	held, _ := f.store.Reservations().SumOutstandingByBatch(ctx, "v1")
	if held["b1"] != 3 || held["b2"] != 1 {
		t.Errorf("stock held twice: %v", held)
	}

	conflicting := *input
	conflicting.Quantity = 6
	if _, err := f.uc.Reserve(ctx, &conflicting); !apperr.Is(err, apperr.InvalidState) {
		t.Fatalf("expected InvalidState for a different quantity, got %v", err)
	}

	// Released holds do not count as the line's holds.
	if _, err := f.uc.ReleaseByOrder(ctx, "o1", model.ReleaseCancelled); err != nil {
		t.Fatal(err)
	}
	again, err := f.uc.Reserve(ctx, input)
	if err != nil || len(again) != 2 || again[0].ID == first[0].ID {
		t.Fatalf("expected fresh holds after release, got %+v %v", again, err)
	}
	f.checkNoOversell(t)
}

type brokenLocker struct{}

func (brokenLocker) Obtain(context.Context, string, time.Duration) (cache.Lock, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestReserveDegradesWhenLockBackendIsDown(t *testing.T) {
	store := memstore.New()
	store.Inventory().Seed("v1", 0, batch("b1", "B1", day(2025, 1, 1), 5))
	uc := NewReservationUseCase(store.Reservations(), store.Inventory(), brokenLocker{}, store,
		publisher.Nop{}, logger.NewNop(), WithClock(func() time.Time { return now }))

	_, err := uc.Reserve(context.Background(), &dto.ReserveInput{VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 2})
	if err != nil {
		t.Fatalf("reserve should fall back to the row lock, got %v", err)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	f := setup(t,
		batch("b1", "B1", day(2025, 1, 1), 6),
		batch("b2", "B2", day(2025, 2, 1), 4),
	)
	// A generous gate so contention resolves by waiting instead of failing.
	f.uc = NewReservationUseCase(f.store.Reservations(), f.store.Inventory(),
		cache.NewLocalLocker(1000, time.Millisecond), f.store, publisher.Nop{}, logger.NewNop(),
		WithClock(func() time.Time { return now }))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.reserve("o", string(rune('a'+i)), 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !apperr.Is(err, apperr.InsufficientStock) {
				t.Errorf("unexpected error %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful holds, got %d", succeeded)
	}
	f.checkNoOversell(t)
}

func TestCommitPinsBatch(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := context.Background()

	rows, err := f.reserve("o1", "d1", 3)
	if err != nil {
		t.Fatal(err)
	}

	// An earlier-expiring batch arrives after the hold was placed.
	f.store.Inventory().Seed("v1", 0, batch("b0", "B0", day(2024, 12, 1), 5))

	committed, err := f.uc.Commit(ctx, rows[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if committed.Status != model.ReservationCommitted || committed.CommittedAt == nil {
		t.Errorf("unexpected committed row %+v", committed)
	}

	inv, _ := f.store.Inventory().Get(ctx, "v1")
	b0, _ := inv.Batch("b0")
	b1, _ := inv.Batch("b1")
	if b0.RemainingQuantity != 5 || b1.RemainingQuantity != 2 {
		t.Errorf("commit should deduct from B1 only: B0=%d B1=%d", b0.RemainingQuantity, b1.RemainingQuantity)
	}
	if inv.Stock.TotalQuantity != 7 {
		t.Errorf("expected stock 7, got %d", inv.Stock.TotalQuantity)
	}
	f.checkNoOversell(t)
}

func TestCommitRequiresReserved(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := context.Background()

	rows, _ := f.reserve("o1", "d1", 2)
	if _, err := f.uc.Release(ctx, rows[0].ID, model.ReleaseCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.Commit(ctx, rows[0].ID); !apperr.Is(err, apperr.InvalidState) {
		t.Fatalf("committing a released hold should be InvalidState, got %v", err)
	}
	if _, err := f.uc.Commit(ctx, "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	stock, _ := f.store.Inventory().GetStock(ctx, "v1")
	if stock.TotalQuantity != 5 {
		t.Errorf("failed commit changed stock to %d", stock.TotalQuantity)
	}
}

func TestReleaseFreesCapacity(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := context.Background()

	r1, err := f.reserve("o1", "d1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.reserve("o2", "d2", 5); !apperr.Is(err, apperr.InsufficientStock) {
		t.Fatalf("batch should be fully held, got %v", err)
	}

	changed, err := f.uc.Release(ctx, r1[0].ID, model.ReleaseCancelled)
	if err != nil || !changed {
		t.Fatalf("release: changed=%v err=%v", changed, err)
	}

	r2, err := f.reserve("o2", "d2", 5)
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if r2[0].BatchID != "b1" {
		t.Errorf("expected the same batch, got %s", r2[0].BatchID)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := context.Background()
	rows, _ := f.reserve("o1", "d1", 2)

	if changed, err := f.uc.Release(ctx, rows[0].ID, model.ReleaseExpired); err != nil || !changed {
		t.Fatalf("first release: changed=%v err=%v", changed, err)
	}
	if changed, err := f.uc.Release(ctx, rows[0].ID, model.ReleaseExpired); err != nil || changed {
		t.Fatalf("second release should be a no-op: changed=%v err=%v", changed, err)
	}

	got, _ := f.store.Reservations().GetByID(ctx, rows[0].ID)
	if got.ReleaseReason == nil || *got.ReleaseReason != model.ReleaseExpired || got.ReleasedAt == nil {
		t.Errorf("unexpected released row %+v", got)
	}
}

func TestReleaseCommittedFails(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 5))
	ctx := context.Background()
	rows, _ := f.reserve("o1", "d1", 2)
	if _, err := f.uc.Commit(ctx, rows[0].ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.uc.Release(ctx, rows[0].ID, model.ReleaseManual); !apperr.Is(err, apperr.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestGetExpired(t *testing.T) {
	f := setup(t, batch("b1", "B1", day(2025, 1, 1), 10))
	ctx := context.Background()

	short, _ := f.uc.Reserve(ctx, &dto.ReserveInput{VariantID: "v1", OrderID: "o1", OrderDetailID: "d1", Quantity: 1, TTL: time.Minute})
	if _, err := f.uc.Reserve(ctx, &dto.ReserveInput{VariantID: "v1", OrderID: "o2", OrderDetailID: "d2", Quantity: 1, TTL: time.Hour}); err != nil {
		t.Fatal(err)
	}

	expired, err := f.uc.GetExpired(ctx, now.Add(10*time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != short[0].ID {
		t.Fatalf("expected only the short hold, got %+v", expired)
	}

	// ExpiresAt < now is strict.
	if expired, _ := f.uc.GetExpired(ctx, now.Add(time.Minute), 0); len(expired) != 0 {
		t.Errorf("hold expiring exactly now is not expired yet, got %d", len(expired))
	}
}

func TestReleaseByOrder(t *testing.T) {
	f := setup(t,
		batch("b1", "B1", day(2025, 1, 1), 3),
		batch("b2", "B2", day(2025, 2, 1), 5),
	)
	ctx := context.Background()

	rows, _ := f.reserve("o1", "d1", 5)
	more, _ := f.reserve("o1", "d2", 1)
	if _, err := f.uc.Commit(ctx, more[0].ID); err != nil {
		t.Fatal(err)
	}

	n, err := f.uc.ReleaseByOrder(ctx, "o1", model.ReleaseCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(rows) {
		t.Errorf("expected %d released, got %d", len(rows), n)
	}

	all, _ := f.uc.ListByOrder(ctx, "o1")
	for _, r := range all {
		if r.ID == more[0].ID && r.Status != model.ReservationCommitted {
			t.Errorf("committed hold must stay committed, got %s", r.Status)
		}
		if r.ID != more[0].ID && r.Status != model.ReservationReleased {
			t.Errorf("hold %s should be released, got %s", r.ID, r.Status)
		}
	}
}
