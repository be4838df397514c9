// Package memstore keeps every repository of the service in process memory.
// Transactions are serialized and roll back by restoring a snapshot, so use
// cases behave as they do against Postgres. It backs the package tests.
package memstore

import (
	"context"
	"sync"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	stocks       map[string]model.Stock // by variant id
	batches      map[string]model.Batch
	reservations map[string]model.StockReservation
	adjustments  []model.StockAdjustment
	variants     map[string]model.VariantInfo
	events       map[string]string // processed order event id -> type

	policy txn.Policy
}

func New() *Store {
	return &Store{
		stocks:       make(map[string]model.Stock),
		batches:      make(map[string]model.Batch),
		reservations: make(map[string]model.StockReservation),
		variants:     make(map[string]model.VariantInfo),
		events:       make(map[string]string),
		policy:       txn.DefaultPolicy(),
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

type snapshot struct {
	stocks       map[string]model.Stock
	batches      map[string]model.Batch
	reservations map[string]model.StockReservation
	adjustments  []model.StockAdjustment
	events       map[string]string
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		stocks:       make(map[string]model.Stock, len(s.stocks)),
		batches:      make(map[string]model.Batch, len(s.batches)),
		reservations: make(map[string]model.StockReservation, len(s.reservations)),
		adjustments:  append([]model.StockAdjustment(nil), s.adjustments...),
		events:       make(map[string]string, len(s.events)),
	}
	for k, v := range s.stocks {
		snap.stocks[k] = v
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.reservations {
		snap.reservations[k] = v
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks = snap.stocks
	s.batches = snap.batches
	s.reservations = snap.reservations
	s.adjustments = snap.adjustments
	s.events = snap.events
}

// WithinTx implements txn.Manager. Transactions run one at a time; a failed
// attempt restores the state it started from and is retried like the SQL
// manager does.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	return txn.Retry(ctx, s.policy, apperr.IsRetryable, func(ctx context.Context) error {
		s.txMu.Lock()
		snap := s.snapshot()
		txCtx, runHooks := txn.Begin(context.WithValue(ctx, txKey{}, s))

		if err := fn(txCtx); err != nil {
			s.restore(snap)
			s.txMu.Unlock()
			return err
		}
		s.txMu.Unlock()
		runHooks()
		return nil
	})
}

// write runs fn under the data lock. Outside a transaction it also takes the
// transaction lock so a concurrent rollback cannot discard the change.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) requireTx(ctx context.Context, op string) error {
	if !s.inTx(ctx) {
		return apperr.Newf(apperr.InternalError, "%s called outside a transaction", op)
	}
	return nil
}

func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{s: s}
}

func (s *Store) Reservations() *ReservationRepository {
	return &ReservationRepository{s: s}
}

func (s *Store) Adjustments() *AdjustmentRepository {
	return &AdjustmentRepository{s: s}
}

func (s *Store) Events() *EventRepository {
	return &EventRepository{s: s}
}

func (s *Store) Catalog() *CatalogRepository {
	return &CatalogRepository{s: s}
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}
