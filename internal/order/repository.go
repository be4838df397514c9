package order

import "context"

// Repository remembers which order events were applied.
type Repository interface {
	// MarkProcessed records the event inside the current transaction and
	// reports false if it was already recorded.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}
