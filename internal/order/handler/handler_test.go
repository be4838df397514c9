package handler

import (
	"context"
	"net"
	"testing"
	"time"

	adjustmentuc "github.com/fekuna/omnipos-inventory-service/internal/adjustment/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/publisher"
	inventoryuc "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/memstore"
	"github.com/fekuna/omnipos-inventory-service/internal/middleware"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
	orderuc "github.com/fekuna/omnipos-inventory-service/internal/order/usecase"
	reservationuc "github.com/fekuna/omnipos-inventory-service/internal/reservation/usecase"
	"github.com/fekuna/omnipos-inventory-service/pkg/grpcjson"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memstore.New()
	store.Inventory().Seed("v1", 0, model.Batch{
		ID:                "b1",
		BatchCode:         "CODE-b1",
		ManufactureDate:   now.AddDate(-1, 0, 0),
		ExpiryDate:        now.AddDate(1, 0, 0),
		ImportQuantity:    4,
		RemainingQuantity: 4,
	})

	log := logger.NewNop()
	inv := inventoryuc.NewInventoryUseCase(store.Inventory(), store.Reservations(), store, publisher.Nop{}, log,
		inventoryuc.WithClock(clock))
	res := reservationuc.NewReservationUseCase(store.Reservations(), store.Inventory(), nil, store, publisher.Nop{}, log,
		reservationuc.WithClock(clock))
	adj := adjustmentuc.NewAdjustmentUseCase(store.Adjustments(), store.Inventory(), store.Reservations(), store,
		publisher.Nop{}, log, adjustmentuc.WithClock(clock))

	srv := grpc.NewServer(grpc.UnaryInterceptor(middleware.UnaryInterceptor(log)))
	NewOrderHandler(orderuc.NewOrderUseCase(inv, res, adj, store, log), res, log).Register(srv)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcjson.Name)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, req, resp any) error {
	return conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp)
}

func TestReserveAndCancelOverGRPC(t *testing.T) {
	conn := dial(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-user-id", "cashier-3")

	var reserved ReservationsResponse
	err := call(ctx, conn, "ReserveOrder", &ReserveOrderRequest{
		OrderID: "o1",
		Lines:   []dto.OrderLine{{OrderDetailID: "d1", VariantID: "v1", Quantity: 3}},
	}, &reserved)
	if err != nil {
		t.Fatal(err)
	}
	if len(reserved.Reservations) != 1 || reserved.Reservations[0].BatchID != "b1" {
		t.Fatalf("unexpected reservations %+v", reserved.Reservations)
	}
	if by := reserved.Reservations[0].CreatedBy; by == nil || *by != "cashier-3" {
		t.Errorf("caller id not recorded: %v", by)
	}

	var check apperr.Result
	if err := call(ctx, conn, "ValidateStockAvailability", &ItemsRequest{Items: []dto.OrderItem{{VariantID: "v1", Quantity: 2}}}, &check); err != nil {
		t.Fatal(err)
	}
	if check.Success || check.Kind != apperr.InsufficientStock {
		t.Errorf("held units must not validate: %+v", check)
	}

	var cancelled dto.CancelResult
	if err := call(ctx, conn, "CancelOrder", &OrderRequest{OrderID: "o1"}, &cancelled); err != nil {
		t.Fatal(err)
	}
	if cancelled.Released != 1 {
		t.Errorf("unexpected cancel result %+v", cancelled)
	}
}

func TestTypedErrorsBecomeStatusCodes(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var out ReservationsResponse
	err := call(ctx, conn, "ReserveOrder", &ReserveOrderRequest{
		OrderID: "o1",
		Lines:   []dto.OrderLine{{OrderDetailID: "d1", VariantID: "v1", Quantity: 9}},
	}, &out)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	var rel ReleaseResponse
	err = call(ctx, conn, "ReleaseReservation", &ReleaseRequest{ReservationID: "missing"}, &rel)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
