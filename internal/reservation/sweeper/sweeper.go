package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 500
	lockKey          = "lock:reservation-sweeper"
)

// Result counts what one sweep did.
type Result struct {
	Found           int
	Released        int
	AlreadyReleased int
	Failed          int
	Skipped         bool // another replica held the sweep lock
}

// Sweeper periodically releases Reserved holds whose window has passed.
type Sweeper struct {
	uc        reservation.UseCase
	locker    cache.Locker
	logger    logger.ZapLogger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper builds a sweeper. With a nil locker every replica sweeps.
func NewSweeper(uc reservation.UseCase, locker cache.Locker, log logger.ZapLogger, opts ...Option) *Sweeper {
	s := &Sweeper{
		uc:        uc,
		locker:    locker,
		logger:    log,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting reservation sweeper", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reservation sweeper")
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("Reservation sweep failed", zap.Error(err))
				continue
			}
			if res.Found > 0 {
				s.logger.Info("Reservation sweep finished",
					zap.Int("found", res.Found),
					zap.Int("released", res.Released),
					zap.Int("already_released", res.AlreadyReleased),
					zap.Int("failed", res.Failed),
				)
			}
		}
	}
}

// Sweep runs one pass. A failing reservation is logged and left for the next
// pass; it does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	ctx = auth.WithSystemActor(ctx)

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, lockKey, s.interval)
		switch {
		case errors.Is(err, cache.ErrLockNotObtained):
			s.logger.Debug("Sweep lock held elsewhere, skipping")
			return Result{Skipped: true}, nil
		case err != nil:
			s.logger.Warn("Sweep lock unavailable, sweeping anyway", zap.Error(err))
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	now := s.now()
	expired, err := s.uc.GetExpired(ctx, now, s.batchSize)
	if err != nil {
		return Result{}, err
	}

	res := Result{Found: len(expired)}
	for _, r := range expired {
		changed, err := s.uc.Release(ctx, r.ID, model.ReleaseExpired)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Error("Failed to release expired reservation",
				zap.String("reservation_id", r.ID),
				zap.String("order_id", r.OrderID),
				zap.Error(err),
			)
		case changed:
			res.Released++
		default:
			res.AlreadyReleased++
		}
	}

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()
	return res, nil
}

// LastRun is the start time of the last completed sweep, zero before the first.
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
