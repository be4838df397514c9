package txn

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestRetrySucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond}, isConflict, func(context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsAtBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond}, isConflict, func(context.Context) error {
		calls++
		return errConflict
	})
	if !errors.Is(err, errConflict) {
		t.Fatalf("expected last conflict error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryDoesNotRepeatOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), DefaultPolicy(), isConflict, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single call returning boom, got calls=%d err=%v", calls, err)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), Policy{}, isConflict, func(context.Context) error {
		calls++
		return errConflict
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 5, Backoff: time.Hour}, isConflict, func(context.Context) error {
		calls++
		cancel()
		return errConflict
	})
	if !errors.Is(err, errConflict) || calls != 1 {
		t.Fatalf("expected to stop after cancellation, calls=%d err=%v", calls, err)
	}
}
