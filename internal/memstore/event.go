package memstore

import "context"

type EventRepository struct {
	s *Store
}

func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if err := r.s.requireTx(ctx, "MarkProcessed"); err != nil {
		return false, err
	}
	fresh := false
	err := r.s.write(ctx, func() error {
		if _, seen := r.s.events[eventID]; !seen {
			r.s.events[eventID] = eventType
			fresh = true
		}
		return nil
	})
	return fresh, err
}
