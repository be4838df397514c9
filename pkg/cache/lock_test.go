package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker(2, time.Millisecond)

	first, err := l.Obtain(ctx, "lock:stock:v1", time.Second)
	if err != nil {
		t.Fatalf("first obtain: %v", err)
	}

	if _, err := l.Obtain(ctx, "lock:stock:v1", time.Second); !errors.Is(err, ErrLockNotObtained) {
		t.Fatalf("expected ErrLockNotObtained, got %v", err)
	}

	other, err := l.Obtain(ctx, "lock:stock:v2", time.Second)
	if err != nil {
		t.Fatalf("different key should not contend: %v", err)
	}
	_ = other.Release(ctx)

	_ = first.Release(ctx)
	_ = first.Release(ctx) // double release is harmless

	again, err := l.Obtain(ctx, "lock:stock:v1", time.Second)
	if err != nil {
		t.Fatalf("obtain after release: %v", err)
	}
	_ = again.Release(ctx)
}

func TestLocalLockerWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker(50, 2*time.Millisecond)

	held, err := l.Obtain(ctx, "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = held.Release(ctx)
	}()

	lock, err := l.Obtain(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("expected lock after holder released, got %v", err)
	}
	_ = lock.Release(ctx)
}
