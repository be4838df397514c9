package txn

import (
	"context"
	"time"
)

type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The wait grows linearly: Backoff, 2*Backoff, ...
// The last error is returned unchanged.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil || retryable == nil || !retryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(i) * p.Backoff):
		}
	}
	return err
}
